package observation

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diligence-ai/estate/identity"
	"github.com/diligence-ai/estate/record"
	"github.com/diligence-ai/estate/snapshot"
)

// Sentinel errors for observation store operations.
var (
	// ErrNotFound is returned when the requested observation does not exist.
	// A miss is a normal negative result, not a failure mode.
	ErrNotFound = errors.New("observation: not found")

	// ErrMissingTenant indicates a store was constructed without a tenant.
	// Configuration error: the caller must fix it, it is never defaulted.
	ErrMissingTenant = errors.New("observation: tenant is required")

	// ErrMissingSubject indicates an add without a subject.
	ErrMissingSubject = errors.New("observation: subject is required")

	// ErrNotReviewable indicates a review transition on a settled observation.
	ErrNotReviewable = errors.New("observation: verification state is settled")
)

// AddInput carries the fields for a new observation. ID, timestamps, and the
// initial verification state are assigned by the store.
type AddInput struct {
	Domain     string
	Category   string
	Label      string
	Text       string
	Attributes map[string]string
	Lifecycle  string
	Evidence   record.Evidence
	Subject    string
	Confidence float64
	Origin     record.Origin
}

// AddResult reports the outcome of an Add so callers can distinguish a new
// record from an idempotent re-add.
type AddResult struct {
	// ID is the observation's deterministic identifier.
	ID string

	// Created is true when a new record was stored, false when the same
	// content had already been observed.
	Created bool
}

// Filter selects observations. Zero values match everything; the tenant is
// implied by the store instance and applied before anything else.
type Filter struct {
	Domain        string
	Subject       string
	MinConfidence float64
	Verification  record.VerificationState
}

// Store is the tenant-scoped, coarse-locked collection of observations.
//
// The whole keyed collection is guarded by one RWMutex: within a store,
// operations are linearizable, and a caller may rely on its write being
// visible to its next read. No ordering holds between this store and the
// item store without explicit reconciliation.
type Store struct {
	mu     sync.RWMutex
	tenant string
	gen    *identity.Generator
	logger *slog.Logger
	byID   map[string]*record.Observation
}

// NewStore creates an observation store for one tenant.
// Returns ErrMissingTenant when the tenant is empty.
func NewStore(tenant string, gen *identity.Generator, logger *slog.Logger) (*Store, error) {
	if strings.TrimSpace(tenant) == "" {
		return nil, ErrMissingTenant
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		tenant: tenant,
		gen:    gen,
		logger: logger,
		byID:   make(map[string]*record.Observation),
	}, nil
}

// Tenant returns the deal this store belongs to.
func (s *Store) Tenant() string { return s.tenant }

// Add stores a new observation, or collapses onto the existing record when
// the same (domain, normalized text, subject, source) combination was
// already observed. Calling Add any number of times with identical content
// yields exactly one record.
func (s *Store) Add(in AddInput) (AddResult, error) {
	if strings.TrimSpace(in.Subject) == "" {
		return AddResult{}, ErrMissingSubject
	}
	text := in.Text
	if strings.TrimSpace(text) == "" {
		text = in.Label
	}
	id := s.gen.ObservationID(in.Domain, text, in.Subject, in.Evidence.Document)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[id]; exists {
		return AddResult{ID: id, Created: false}, nil
	}

	now := time.Now().UTC()
	origin := in.Origin
	if origin == "" {
		origin = record.OriginImport
	}
	obs := &record.Observation{
		ID:           id,
		Domain:       in.Domain,
		Category:     in.Category,
		Label:        in.Label,
		Text:         text,
		Attributes:   in.Attributes,
		Lifecycle:    in.Lifecycle,
		Evidence:     in.Evidence,
		Subject:      in.Subject,
		Tenant:       s.tenant,
		Confidence:   in.Confidence,
		Verification: record.VerificationPending,
		Origin:       origin,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.byID[id] = obs
	return AddResult{ID: id, Created: true}, nil
}

// Get returns a copy of the observation with the given ID.
// Returns ErrNotFound when it does not exist.
func (s *Store) Get(id string) (*record.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obs, ok := s.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return obs.Clone(), nil
}

// Query returns copies of all observations matching the filter, ordered by
// descending review priority so callers can feed a review queue directly.
func (s *Store) Query(f Filter) []*record.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*record.Observation
	for _, obs := range s.byID {
		if obs.Tenant != s.tenant && obs.Tenant != snapshot.TenantUnscoped {
			continue
		}
		if f.Domain != "" && !strings.EqualFold(obs.Domain, f.Domain) {
			continue
		}
		if f.Subject != "" && !strings.EqualFold(obs.Subject, f.Subject) {
			continue
		}
		if obs.Confidence < f.MinConfidence {
			continue
		}
		if f.Verification != "" && obs.Verification != f.Verification {
			continue
		}
		out = append(out, obs.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := out[i].ReviewPriority(), out[j].ReviewPriority()
		if pi != pj {
			return pi > pj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Confirm marks an observation as verified by a reviewer.
func (s *Store) Confirm(id string) error {
	return s.transition(id, record.VerificationConfirmed)
}

// Reject marks an observation as incorrect.
func (s *Store) Reject(id string) error {
	return s.transition(id, record.VerificationIncorrect)
}

// MarkNeedsInfo parks an observation until more source material arrives.
func (s *Store) MarkNeedsInfo(id string) error {
	return s.transition(id, record.VerificationNeedsInfo)
}

// Skip records that a reviewer deliberately passed over an observation.
func (s *Store) Skip(id string) error {
	return s.transition(id, record.VerificationSkipped)
}

func (s *Store) transition(id string, next record.VerificationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !obs.Verification.Reviewable() {
		return fmt.Errorf("%w: %s is %s", ErrNotReviewable, id, obs.Verification)
	}
	obs.Verification = next
	obs.UpdatedAt = time.Now().UTC()
	return nil
}

// SetLinkedItem records the canonical item an observation was folded into.
// An empty itemID clears the link. Used by reconciliation.
func (s *Store) SetLinkedItem(id, itemID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	obs, ok := s.byID[id]
	if !ok {
		return ErrNotFound
	}
	obs.LinkedItem = itemID
	obs.UpdatedAt = time.Now().UTC()
	return nil
}

// Len returns the number of stored observations.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}

// HasLabel reports whether any observation for the subject carries the given
// label, compared case-insensitively. Reconciliation uses this to avoid
// synthesizing duplicate citations.
func (s *Store) HasLabel(label, subject string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, obs := range s.byID {
		if strings.EqualFold(obs.Label, label) && strings.EqualFold(obs.Subject, subject) {
			return true
		}
	}
	return false
}

// Snapshot captures the store into a persistence envelope.
func (s *Store) Snapshot() (*snapshot.Envelope, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	env := snapshot.NewEnvelope(s.tenant)
	for id, obs := range s.byID {
		if err := env.Put(id, obs); err != nil {
			return nil, err
		}
	}
	env.Summary = map[string]any{
		"observations": len(s.byID),
	}
	return env, nil
}

// Restore replaces the store's contents from an envelope. Individually
// malformed records are skipped with a logged warning; records that predate
// tenant scoping keep the explicit unscoped marker.
func (s *Store) Restore(env *snapshot.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	loaded := make(map[string]*record.Observation, len(env.Items))
	for id := range env.Items {
		var obs record.Observation
		if err := env.Decode(id, &obs); err != nil {
			s.logger.Warn("skipping malformed observation in snapshot",
				"id", id, "tenant", s.tenant, "error", err)
			continue
		}
		if obs.ID == "" {
			obs.ID = id
		}
		if obs.Tenant == "" {
			obs.Tenant = snapshot.TenantUnscoped
		}
		if obs.Subject == "" {
			obs.Subject = snapshot.TenantUnscoped
		}
		if obs.Verification == "" {
			obs.Verification = record.VerificationPending
		}
		loaded[obs.ID] = &obs
	}
	s.byID = loaded
	return nil
}
