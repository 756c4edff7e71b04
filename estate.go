package estate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/diligence-ai/estate/identity"
	"github.com/diligence-ai/estate/inventory"
	"github.com/diligence-ai/estate/observation"
	"github.com/diligence-ai/estate/queue"
	"github.com/diligence-ai/estate/reconcile"
	"github.com/diligence-ai/estate/registry"
	"github.com/diligence-ai/estate/snapshot"
	"github.com/diligence-ai/estate/telemetry"
)

// Engagement is the top-level handle for one deal's record stores.
//
// It owns the canonical item store, the observation store, and the
// reconciler between them, plus the optional queue and registry
// collaborators. Construct it with Open; it is safe for concurrent use.
type Engagement struct {
	dealID   string
	basePath string
	actor    string
	logger   *slog.Logger
	recorder *telemetry.Recorder

	schemas      *identity.SchemaRegistry
	items        *inventory.Store
	observations *observation.Store
	reconciler   *reconcile.Reconciler

	queue    queue.Client
	registry registry.Registry
	session  registry.SessionInfo

	// mu guards closed; the stores carry their own locks.
	mu     sync.Mutex
	closed bool
}

// isClosed reports whether Close has run.
func (e *Engagement) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Open creates the stores for a deal and wires the configured
// collaborators.
//
// The deal ID becomes the tenant of every store, so records from two deals
// can never mix even when they describe the same vendor product. If a
// registry is configured, a session is registered for this engagement and
// kept alive until Close.
func Open(dealID string, opts ...Option) (*Engagement, error) {
	if strings.TrimSpace(dealID) == "" {
		return nil, newConfigurationError("Open",
			fmt.Errorf("%w: deal id is required", ErrInvalidConfig))
	}

	cfg := engagementConfig{basePath: "."}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.actor == "" {
		cfg.actor = "estate"
	}

	schemas := identity.NewDefaultSchemaRegistry()
	if cfg.schemaOverride != nil {
		if err := schemas.LoadYAML(cfg.schemaOverride); err != nil {
			return nil, newConfigurationError("Open", err)
		}
	}
	gen := identity.NewGenerator(schemas)

	items, err := inventory.NewStore(dealID, gen, schemas, cfg.logger)
	if err != nil {
		return nil, newConfigurationError("Open", err)
	}
	observations, err := observation.NewStore(dealID, gen, cfg.logger)
	if err != nil {
		return nil, newConfigurationError("Open", err)
	}

	recorder, err := telemetry.New(telemetry.Options{
		Tracer: cfg.tracer,
		Meter:  cfg.meter,
	})
	if err != nil {
		return nil, newConfigurationError("Open", err)
	}

	eng := &Engagement{
		dealID:       dealID,
		basePath:     cfg.basePath,
		actor:        cfg.actor,
		logger:       cfg.logger,
		recorder:     recorder,
		schemas:      schemas,
		items:        items,
		observations: observations,
		reconciler:   reconcile.New(items, observations, cfg.logger),
		queue:        cfg.queue,
		registry:     cfg.registry,
	}

	if eng.registry != nil {
		eng.session = registry.SessionInfo{
			DealID:    dealID,
			Role:      "host",
			SessionID: uuid.New().String(),
			Actor:     cfg.actor,
			Metadata: map[string]string{
				"base_path":      cfg.basePath,
				"schema_version": snapshot.SchemaVersion,
			},
			OpenedAt: time.Now().UTC(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := eng.registry.Register(ctx, eng.session); err != nil {
			return nil, fmt.Errorf("register engagement session: %w", err)
		}
	}

	return eng, nil
}

// DealID returns the engagement's deal identifier, the tenant of every
// store it owns.
func (e *Engagement) DealID() string {
	return e.dealID
}

// Items returns the canonical item store.
func (e *Engagement) Items() *inventory.Store {
	return e.items
}

// Observations returns the observation store.
func (e *Engagement) Observations() *observation.Store {
	return e.observations
}

// Reconciler returns the cross-store reconciler.
func (e *Engagement) Reconciler() *reconcile.Reconciler {
	return e.reconciler
}

// Schemas returns the identity schema registry in effect, including any
// overrides applied at Open.
func (e *Engagement) Schemas() *identity.SchemaRegistry {
	return e.schemas
}

// itemsPath and observationsPath are the per-deal snapshot file locations.
func (e *Engagement) itemsPath() string {
	return filepath.Join(e.basePath, e.dealID, "items.json")
}

func (e *Engagement) observationsPath() string {
	return filepath.Join(e.basePath, e.dealID, "observations.json")
}

// SaveAll persists both stores, one snapshot file per store under
// <base>/<deal-id>/. Each file is written atomically; a crash mid-save
// leaves the previous file intact.
func (e *Engagement) SaveAll(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}
	ctx, end := e.recorder.StartSpan(ctx, "estate.save", e.dealID)
	start := time.Now()
	err := e.saveAll()
	end(err)
	e.recorder.RecordDuration(ctx, "save", time.Since(start))
	return err
}

func (e *Engagement) saveAll() error {
	env, err := e.items.Snapshot()
	if err != nil {
		return newStorageError("Engagement.SaveAll", err)
	}
	if err := snapshot.Write(e.itemsPath(), env); err != nil {
		return newStorageError("Engagement.SaveAll", err)
	}

	env, err = e.observations.Snapshot()
	if err != nil {
		return newStorageError("Engagement.SaveAll", err)
	}
	if err := snapshot.Write(e.observationsPath(), env); err != nil {
		return newStorageError("Engagement.SaveAll", err)
	}

	e.logger.Info("engagement saved",
		"deal", e.dealID,
		"items_path", e.itemsPath(),
		"observations_path", e.observationsPath())
	return nil
}

// LoadAll restores both stores from their snapshot files. A missing file
// is not an error: that store simply starts empty, which is the normal
// state of a fresh engagement.
func (e *Engagement) LoadAll(ctx context.Context) error {
	if e.isClosed() {
		return ErrClosed
	}
	ctx, end := e.recorder.StartSpan(ctx, "estate.load", e.dealID)
	start := time.Now()
	err := e.loadAll()
	end(err)
	e.recorder.RecordDuration(ctx, "load", time.Since(start))
	return err
}

func (e *Engagement) loadAll() error {
	env, err := snapshot.Read(e.itemsPath())
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
		// Fresh engagement, nothing to load.
	case err != nil:
		return newStorageError("Engagement.LoadAll", err)
	default:
		if err := e.items.RestoreSnapshot(env); err != nil {
			return newStorageError("Engagement.LoadAll", err)
		}
	}

	env, err = snapshot.Read(e.observationsPath())
	switch {
	case errors.Is(err, snapshot.ErrNoSnapshot):
	case err != nil:
		return newStorageError("Engagement.LoadAll", err)
	default:
		if err := e.observations.Restore(env); err != nil {
			return newStorageError("Engagement.LoadAll", err)
		}
	}

	return nil
}

// AddItem records a canonical item through the engagement, counting the
// write and timing it. Equivalent to Items().Add for callers that do not
// need instrumentation.
func (e *Engagement) AddItem(ctx context.Context, in inventory.AddInput) (inventory.AddResult, error) {
	if e.isClosed() {
		return inventory.AddResult{}, ErrClosed
	}
	ctx, end := e.recorder.StartSpan(ctx, "estate.item.add", e.dealID)
	start := time.Now()
	res, err := e.items.Add(in)
	end(err)
	e.recorder.RecordDuration(ctx, "item.add", time.Since(start))
	if err == nil {
		e.recorder.RecordItemWrite(ctx, e.dealID, string(res.Outcome))
	}
	return res, err
}

// AddObservation records an observation through the engagement, counting
// the write and timing it.
func (e *Engagement) AddObservation(ctx context.Context, in observation.AddInput) (observation.AddResult, error) {
	if e.isClosed() {
		return observation.AddResult{}, ErrClosed
	}
	ctx, end := e.recorder.StartSpan(ctx, "estate.observation.add", e.dealID)
	start := time.Now()
	res, err := e.observations.Add(in)
	end(err)
	e.recorder.RecordDuration(ctx, "observation.add", time.Since(start))
	if err == nil {
		e.recorder.RecordObservationWrite(ctx, e.dealID, res.Created)
	}
	return res, err
}

// FoldDuplicates runs the reconciler's duplicate fold, counting the items
// folded away. Pass 0 for the default threshold.
func (e *Engagement) FoldDuplicates(ctx context.Context, threshold int) (reconcile.FoldReport, error) {
	if e.isClosed() {
		return reconcile.FoldReport{}, ErrClosed
	}
	ctx, end := e.recorder.StartSpan(ctx, "estate.fold", e.dealID)
	start := time.Now()
	report, err := e.reconciler.FoldDuplicates(threshold)
	end(err)
	e.recorder.RecordDuration(ctx, "fold", time.Since(start))
	if err == nil {
		e.recorder.RecordFolds(ctx, e.dealID, report.Folded)
	}
	return report, err
}

// Merge folds another engagement's item store into this one and, when a
// queue is configured, publishes a merge event on the deal's change
// channel. The queue call happens after the merge completes, outside any
// store lock.
func (e *Engagement) Merge(ctx context.Context, src *Engagement, strategy inventory.Strategy, actor string) (inventory.MergeReport, error) {
	if e.isClosed() {
		return inventory.MergeReport{}, ErrClosed
	}
	if actor == "" {
		actor = e.actor
	}

	ctx, end := e.recorder.StartSpan(ctx, "estate.merge", e.dealID)
	start := time.Now()
	report, err := e.items.MergeFrom(src.Items(), strategy, actor)
	end(err)
	e.recorder.RecordDuration(ctx, "merge", time.Since(start))
	if err != nil {
		return report, err
	}

	if e.queue != nil {
		event := queue.ChangeEvent{
			Tenant:   e.dealID,
			Kind:     queue.ChangeMerge,
			RecordID: report.RunID,
			Actor:    actor,
		}
		if err := e.queue.PublishChange(ctx, event); err != nil {
			// The merge itself succeeded; a lost notification is
			// logged, not surfaced.
			e.logger.Warn("failed to publish merge event",
				"deal", e.dealID,
				"run", report.RunID,
				"error", err)
		}
	}

	return report, nil
}

// EnqueueReviews pushes every reviewable observation onto the deal's
// review queue, scored by review priority. Returns the number of tasks
// enqueued. Requires a queue; returns ErrNoQueue otherwise.
func (e *Engagement) EnqueueReviews(ctx context.Context) (int, error) {
	if e.isClosed() {
		return 0, ErrClosed
	}
	if e.queue == nil {
		return 0, ErrNoQueue
	}

	// Collect under the store's read path, then talk to redis with no
	// lock held.
	var tasks []queue.ReviewTask
	for _, obs := range e.observations.Query(observation.Filter{}) {
		if !obs.Verification.Reviewable() {
			continue
		}
		tasks = append(tasks, queue.ReviewTask{
			ObservationID: obs.ID,
			Tenant:        e.dealID,
			Subject:       obs.Subject,
			Domain:        obs.Domain,
			Label:         obs.Label,
			Priority:      obs.ReviewPriority(),
		})
	}

	enqueued := 0
	for _, task := range tasks {
		if err := e.queue.Enqueue(ctx, task); err != nil {
			return enqueued, fmt.Errorf("enqueue review %s: %w", task.ObservationID, err)
		}
		enqueued++
	}

	if enqueued > 0 {
		e.logger.Info("review tasks enqueued",
			"deal", e.dealID,
			"count", enqueued)
	}
	return enqueued, nil
}

// Close deregisters the engagement's registry session and closes the
// queue client if one was configured. The in-memory stores remain
// readable, but engagement-level operations return ErrClosed.
func (e *Engagement) Close(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	if e.registry != nil {
		if err := e.registry.Deregister(ctx, e.session); err != nil {
			e.logger.Warn("failed to deregister engagement session",
				"deal", e.dealID,
				"error", err)
		}
	}
	if e.queue != nil {
		CloseWithLog(e.queue, e.logger, "review queue")
	}
	return nil
}
