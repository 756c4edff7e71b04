package inventory

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/diligence-ai/estate/identity"
	"github.com/diligence-ai/estate/record"
	"github.com/diligence-ai/estate/snapshot"
)

// Sentinel errors for item store operations.
var (
	// ErrNotFound is returned when the requested item does not exist.
	ErrNotFound = errors.New("inventory: item not found")

	// ErrMissingTenant indicates a store was constructed without a tenant.
	// Configuration error: fatal to the operation, never defaulted.
	ErrMissingTenant = errors.New("inventory: tenant is required")

	// ErrMissingSubject indicates an add without a subject.
	ErrMissingSubject = errors.New("inventory: subject is required")

	// ErrInvalidTransition indicates a status change outside the lifecycle graph.
	ErrInvalidTransition = errors.New("inventory: invalid status transition")

	// ErrIDCollision indicates two distinct canonical keys hashed to the same
	// ID. Accidental collisions are a defect to surface, not to trust away.
	ErrIDCollision = errors.New("inventory: identifier collision")
)

// Outcome classifies what an Add actually did.
type Outcome string

const (
	// OutcomeCreated means a new item was stored.
	OutcomeCreated Outcome = "created"

	// OutcomeMerged means the identity already existed; the call merged into it.
	OutcomeMerged Outcome = "merged"

	// OutcomeRestored means a soft-removed item with this identity was
	// brought back and overwritten with the incoming attributes.
	OutcomeRestored Outcome = "restored"
)

// AddInput carries the fields for a new canonical item.
type AddInput struct {
	Type       identity.RecordType
	Attributes map[string]string
	Subject    string
	Source     string
	Origin     record.Origin
	Status     record.Status // defaults to active
	Confidence float64
	Category   string
}

// AddResult reports what an Add did, so ingestion can distinguish "nothing
// changed" from a new record without parsing errors.
type AddResult struct {
	// ID is the item's deterministic identifier.
	ID string

	// Outcome says whether the call created, merged, or restored.
	Outcome Outcome

	// Flagged is true when the item is missing required fields and was
	// stored anyway, queued for human review.
	Flagged bool

	// MissingFields lists the absent required fields when Flagged.
	MissingFields []string
}

// Store is the tenant-scoped, coarse-locked collection of canonical items.
type Store struct {
	mu      sync.RWMutex
	tenant  string
	gen     *identity.Generator
	schemas *identity.SchemaRegistry
	logger  *slog.Logger
	byID    map[string]*record.Item
	// byKey maps canonical keys to IDs for the insert-time collision check.
	byKey map[string]string
}

// NewStore creates an item store for one tenant.
// Returns ErrMissingTenant when the tenant is empty.
func NewStore(tenant string, gen *identity.Generator, schemas *identity.SchemaRegistry, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrMissingTenant
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		tenant:  tenant,
		gen:     gen,
		schemas: schemas,
		logger:  logger,
		byID:    make(map[string]*record.Item),
		byKey:   make(map[string]string),
	}, nil
}

// Tenant returns the deal this store belongs to.
func (s *Store) Tenant() string { return s.tenant }

// Add computes the item's identity and stores it, merging when the identity
// already exists:
//
//   - soft-removed item: restored, attributes overwritten, restoration logged
//   - live item: merge count bumped, differing non-empty attributes
//     overwritten field-by-field (last write wins) with the conflict recorded
//     in the change log
//   - otherwise: a new item, flagged but never rejected when required
//     fields are missing
func (s *Store) Add(in AddInput) (AddResult, error) {
	if strings.TrimSpace(in.Subject) == "" {
		return AddResult{}, ErrMissingSubject
	}
	if in.Attributes == nil {
		in.Attributes = map[string]string{}
	}

	id, err := s.gen.ItemID(in.Type, in.Attributes, in.Subject, s.tenant)
	if err != nil {
		return AddResult{}, err
	}
	key, err := s.gen.CanonicalKey(in.Type, in.Attributes, in.Subject, s.tenant)
	if err != nil {
		return AddResult{}, err
	}
	missing, err := s.schemas.MissingRequired(in.Type, in.Attributes)
	if err != nil {
		return AddResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existingID, ok := s.byKey[key]; ok {
		return s.mergeExistingLocked(existingID, in)
	}
	if other, ok := s.byID[id]; ok && other.CanonicalKey != key {
		// Same digest, different content. Astronomically unlikely, but checked.
		return AddResult{}, fmt.Errorf("%w: %s for both %q and %q", ErrIDCollision, id, other.CanonicalKey, key)
	}

	now := time.Now().UTC()
	status := in.Status
	if status == "" {
		status = record.StatusActive
	}
	if !status.IsValid() {
		return AddResult{}, fmt.Errorf("%w: initial status %q", ErrInvalidTransition, in.Status)
	}
	origin := in.Origin
	if origin == "" {
		origin = record.OriginImport
	}

	attrs := make(map[string]string, len(in.Attributes))
	for k, v := range in.Attributes {
		attrs[k] = v
	}
	item := &record.Item{
		ID:            id,
		CanonicalKey:  key,
		Type:          in.Type,
		Subject:       in.Subject,
		Tenant:        s.tenant,
		Attributes:    attrs,
		Status:        status,
		Origin:        origin,
		Source:        in.Source,
		MergeCount:    1,
		Confidence:    in.Confidence,
		Category:      in.Category,
		NeedsReview:   len(missing) > 0,
		MissingFields: missing,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	s.byID[id] = item
	s.byKey[key] = id

	return AddResult{ID: id, Outcome: OutcomeCreated, Flagged: item.NeedsReview, MissingFields: missing}, nil
}

// mergeExistingLocked folds a re-import onto the item already holding the
// identity. Caller holds the write lock.
func (s *Store) mergeExistingLocked(id string, in AddInput) (AddResult, error) {
	item := s.byID[id]
	now := time.Now().UTC()
	item.MergeCount++

	outcome := OutcomeMerged
	if item.Status == record.StatusRemoved {
		item.Status = record.StatusActive
		item.RemovalReason = ""
		item.Changes = append(item.Changes, record.NewChange(in.Source, "restore", nil, "re-imported after removal"))
		s.logger.Info("restored removed item on re-import",
			"id", id, "tenant", s.tenant, "source", in.Source)
		outcome = OutcomeRestored
	}

	// Field-level last write wins; conflicts are recorded, never dropped.
	var overwritten []string
	for k, v := range in.Attributes {
		if strings.TrimSpace(v) == "" {
			continue
		}
		if prev, ok := item.Attributes[k]; !ok || prev != v {
			item.Attributes[k] = v
			if ok && prev != "" {
				overwritten = append(overwritten, k)
			}
		}
	}
	if len(overwritten) > 0 {
		sort.Strings(overwritten)
		item.Changes = append(item.Changes, record.NewChange(in.Source, "merge-overwrite", overwritten, ""))
	}

	if missing, err := s.schemas.MissingRequired(item.Type, item.Attributes); err == nil {
		item.MissingFields = missing
		item.NeedsReview = len(missing) > 0
	}
	if in.Confidence > item.Confidence {
		item.Confidence = in.Confidence
	}
	item.UpdatedAt = now

	return AddResult{
		ID:            id,
		Outcome:       outcome,
		Flagged:       item.NeedsReview,
		MissingFields: item.MissingFields,
	}, nil
}

// Get returns a copy of the item with the given ID.
// Returns ErrNotFound when it does not exist; a miss is a normal result.
func (s *Store) Get(id string) (*record.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	item, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return item.Clone(), nil
}

// Update merges an attribute delta into the item and stamps the change log.
// The item's identifier never changes, even when identity-field values do:
// an established identity must survive corrections.
func (s *Store) Update(id string, delta map[string]string, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}

	fields := make([]string, 0, len(delta))
	for k, v := range delta {
		item.Attributes[k] = v
		fields = append(fields, k)
	}
	sort.Strings(fields)
	item.Changes = append(item.Changes, record.NewChange(actor, "update", fields, ""))
	if missing, err := s.schemas.MissingRequired(item.Type, item.Attributes); err == nil {
		item.MissingFields = missing
		item.NeedsReview = len(missing) > 0
	}
	item.UpdatedAt = time.Now().UTC()
	return nil
}

// Remove soft-deletes an item. Observation links are retained and the
// record stays queryable with AllStatuses; nothing is physically deleted.
func (s *Store) Remove(id, reason, actor string) error {
	return s.transition(id, record.StatusRemoved, reason, actor, "remove")
}

// Restore undoes a soft removal.
func (s *Store) Restore(id, actor string) error {
	return s.transition(id, record.StatusActive, "", actor, "restore")
}

// Activate confirms a planned item into active use.
func (s *Store) Activate(id, actor string) error {
	return s.transition(id, record.StatusActive, "", actor, "confirm")
}

// Deprecate marks an item as absent from the latest authoritative import.
func (s *Store) Deprecate(id, reason, actor string) error {
	return s.transition(id, record.StatusDeprecated, reason, actor, "deprecate")
}

// Reactivate brings a deprecated item back into active use. This is the
// one path out of deprecated and it is deliberately outside the automated
// transition graph: imports and merges can never resurrect a deprecated
// item, only a named human action can.
func (s *Store) Reactivate(id, actor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if item.Status != record.StatusDeprecated {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, item.Status, record.StatusActive, id)
	}
	item.Status = record.StatusActive
	item.RemovalReason = ""
	item.Changes = append(item.Changes, record.NewChange(actor, "reactivate", nil, ""))
	item.UpdatedAt = time.Now().UTC()

	s.logger.Info("item reactivated",
		"tenant", s.tenant,
		"id", id,
		"actor", actor)
	return nil
}

func (s *Store) transition(id string, next record.Status, reason, actor, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !item.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s for %s", ErrInvalidTransition, item.Status, next, id)
	}
	item.Status = next
	item.RemovalReason = reason
	item.Changes = append(item.Changes, record.NewChange(actor, op, nil, reason))
	item.UpdatedAt = time.Now().UTC()
	return nil
}

// LinkObservation records that an observation supports this item.
func (s *Store) LinkObservation(id, obsID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	item.LinkObservation(obsID)
	item.UpdatedAt = time.Now().UTC()
	return nil
}

// SumCost totals the cost_annual attribute over active items matching the
// optional type and subject filters. Unparseable values count as zero.
func (s *Store) SumCost(t identity.RecordType, subject string) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total float64
	for _, item := range s.byID {
		if !item.Active() {
			continue
		}
		if t != "" && item.Type != t {
			continue
		}
		if subject != "" && !strings.EqualFold(item.Subject, subject) {
			continue
		}
		total += parseCost(item.Attributes["cost_annual"])
	}
	return total
}

// Summary aggregates counts and costs for reporting collaborators.
type Summary struct {
	Tenant          string                      `json:"tenant"`
	Total           int                         `json:"total"`
	ByStatus        map[record.Status]int       `json:"by_status"`
	ByType          map[identity.RecordType]int `json:"by_type"`
	BySubject       map[string]int              `json:"by_subject"`
	NeedsReview     int                         `json:"needs_review"`
	TotalAnnualCost float64                     `json:"total_annual_cost"`
}

// Summary returns aggregate counts over every stored item (all statuses)
// and the total annual cost of the active set.
func (s *Store) Summary() Summary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := Summary{
		Tenant:    s.tenant,
		ByStatus:  make(map[record.Status]int),
		ByType:    make(map[identity.RecordType]int),
		BySubject: make(map[string]int),
	}
	for _, item := range s.byID {
		sum.Total++
		sum.ByStatus[item.Status]++
		sum.ByType[item.Type]++
		sum.BySubject[item.Subject]++
		if item.NeedsReview {
			sum.NeedsReview++
		}
		if item.Active() {
			sum.TotalAnnualCost += parseCost(item.Attributes["cost_annual"])
		}
	}
	return sum
}

// Len returns the number of stored items, all statuses included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// Snapshot captures the store into a persistence envelope.
func (s *Store) Snapshot() (*snapshot.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env := snapshot.NewEnvelope(s.tenant)
	for id, item := range s.byID {
		if err := env.Put(id, item); err != nil {
			return nil, err
		}
	}
	sum := s.summaryLocked()
	env.Summary = map[string]any{
		"total":             sum.Total,
		"needs_review":      sum.NeedsReview,
		"total_annual_cost": sum.TotalAnnualCost,
	}
	return env, nil
}

func (s *Store) summaryLocked() Summary {
	sum := Summary{Tenant: s.tenant}
	for _, item := range s.byID {
		sum.Total++
		if item.NeedsReview {
			sum.NeedsReview++
		}
		if item.Active() {
			sum.TotalAnnualCost += parseCost(item.Attributes["cost_annual"])
		}
	}
	return sum
}

// RestoreSnapshot replaces the store's contents from an envelope. Individually
// malformed records are skipped with a logged warning; legacy records that
// predate tenant scoping keep the explicit unscoped marker.
func (s *Store) RestoreSnapshot(env *snapshot.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byID := make(map[string]*record.Item, len(env.Items))
	byKey := make(map[string]string, len(env.Items))
	for id := range env.Items {
		var item record.Item
		if err := env.Decode(id, &item); err != nil {
			s.logger.Warn("skipping malformed item in snapshot",
				"id", id, "tenant", s.tenant, "error", err)
			continue
		}
		if item.ID == "" {
			item.ID = id
		}
		if item.Tenant == "" {
			item.Tenant = snapshot.TenantUnscoped
		}
		if item.Subject == "" {
			item.Subject = snapshot.TenantUnscoped
		}
		if item.Status == "" {
			item.Status = record.StatusActive
		}
		if item.Attributes == nil {
			item.Attributes = map[string]string{}
		}
		byID[item.ID] = &item
		if item.CanonicalKey != "" {
			byKey[item.CanonicalKey] = item.ID
		}
	}
	s.byID = byID
	s.byKey = byKey
	return nil
}

func parseCost(v string) float64 {
	v = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), "$"))
	v = strings.ReplaceAll(v, ",", "")
	if v == "" {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
