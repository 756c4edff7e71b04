package record

import (
	"time"

	"github.com/google/uuid"

	"github.com/diligence-ai/estate/identity"
)

// Status represents the lifecycle state of a canonical item.
type Status string

const (
	// StatusActive indicates the item is part of the current inventory.
	StatusActive Status = "active"

	// StatusRemoved indicates the item was soft-deleted. Removal is
	// reversible and keeps observation links intact.
	StatusRemoved Status = "removed"

	// StatusDeprecated indicates the item was absent from the latest
	// authoritative import of its source. Terminal unless manually reactivated.
	StatusDeprecated Status = "deprecated"

	// StatusPlanned indicates a projected item not yet confirmed in use.
	StatusPlanned Status = "planned"
)

// IsValid returns true if the status is one of the defined lifecycle states.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusRemoved, StatusDeprecated, StatusPlanned:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether the status graph permits moving from s to
// next. Valid edges:
//
//	active -> removed     (remove)
//	removed -> active     (restore)
//	active -> deprecated  (merge miss)
//	planned -> active     (confirmation)
//
// Every other edge is rejected by the store. Deprecated has no automated
// edge out: only an explicit human action (the item store's Reactivate)
// brings a deprecated item back, so an import can never resurrect one.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusActive:
		return next == StatusRemoved || next == StatusDeprecated
	case StatusRemoved:
		return next == StatusActive
	case StatusPlanned:
		return next == StatusActive
	default:
		return false
	}
}

// Origin records how an item entered the store. Smart merges use it to
// protect manual additions from automated deprecation.
type Origin string

const (
	// OriginImport marks items created by an automated document import.
	OriginImport Origin = "import"

	// OriginManual marks items added or corrected by a human reviewer.
	OriginManual Origin = "manual"

	// OriginSync marks items synthesized by inventory reconciliation.
	OriginSync Origin = "sync"
)

// Change is one entry in an item's modification log. The store appends a
// Change for every update, status transition, and merge overwrite so that
// conflicting imports are recorded rather than silently resolved.
type Change struct {
	// ID uniquely identifies this change entry.
	ID string `json:"id"`

	// Actor names who or what made the change (a reviewer, an import run).
	Actor string `json:"actor"`

	// Op is the operation: "update", "remove", "restore", "deprecate",
	// "reactivate", "merge-overwrite", "confirm".
	Op string `json:"op"`

	// Fields lists the attribute names the change touched, if any.
	Fields []string `json:"fields,omitempty"`

	// Note carries an optional human-relevant reason.
	Note string `json:"note,omitempty"`

	// At is when the change happened.
	At time.Time `json:"at"`
}

// NewChange creates a change entry stamped with a fresh UUID and the current time.
func NewChange(actor, op string, fields []string, note string) Change {
	return Change{
		ID:     uuid.New().String(),
		Actor:  actor,
		Op:     op,
		Fields: fields,
		Note:   note,
		At:     time.Now().UTC(),
	}
}

// Item is the canonical, deduplicated record of a real-world thing in the
// IT estate. One or more observations support each item.
type Item struct {
	// ID is the deterministic content-derived identifier. Fixed at creation;
	// never recomputed from later edits.
	ID string `json:"id"`

	// CanonicalKey is the pre-hash canonical string the ID was derived from.
	// Kept so digest collisions are detected at insert time, not trusted away.
	CanonicalKey string `json:"canonical_key"`

	// Type classifies the record: application, infrastructure, organization, vendor.
	Type identity.RecordType `json:"type"`

	// Subject is which side of the engagement the item describes: "target" or "buyer".
	Subject string `json:"subject"`

	// Tenant is the deal the item belongs to. Never empty.
	Tenant string `json:"tenant"`

	// Attributes holds the item's fields. The required subset varies by Type.
	Attributes map[string]string `json:"attributes"`

	// Status is the lifecycle state.
	Status Status `json:"status"`

	// Origin records how the item entered the store.
	Origin Origin `json:"origin"`

	// Source names the document or import the item was first created from.
	Source string `json:"source,omitempty"`

	// Observations lists the IDs of observations supporting this item.
	Observations []string `json:"observations,omitempty"`

	// MergeCount counts how many times an import re-observed this identity.
	MergeCount int `json:"merge_count"`

	// Confidence is the enrichment confidence (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Category is an enrichment classification within the type.
	Category string `json:"category,omitempty"`

	// NeedsReview flags items created without all required fields, or
	// otherwise queued for a human pass.
	NeedsReview bool `json:"needs_review,omitempty"`

	// MissingFields lists required fields absent at creation.
	MissingFields []string `json:"missing_fields,omitempty"`

	// RemovalReason explains a removed or deprecated status.
	RemovalReason string `json:"removal_reason,omitempty"`

	// Changes is the modification log, oldest first.
	Changes []Change `json:"changes,omitempty"`

	// CreatedAt is when the item was first stored.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is when the item last changed.
	UpdatedAt time.Time `json:"updated_at"`
}

// Active reports whether the item is in the active lifecycle state.
func (it *Item) Active() bool {
	return it.Status == StatusActive
}

// HasObservation reports whether the item already links the given observation ID.
func (it *Item) HasObservation(obsID string) bool {
	for _, id := range it.Observations {
		if id == obsID {
			return true
		}
	}
	return false
}

// LinkObservation appends an observation ID if not already linked.
func (it *Item) LinkObservation(obsID string) {
	if obsID == "" || it.HasObservation(obsID) {
		return
	}
	it.Observations = append(it.Observations, obsID)
}

// Clone returns a deep copy of the item. Stores hand out clones so callers
// can never mutate stored state without going through the store.
func (it *Item) Clone() *Item {
	cp := *it
	cp.Attributes = make(map[string]string, len(it.Attributes))
	for k, v := range it.Attributes {
		cp.Attributes[k] = v
	}
	cp.Observations = append([]string(nil), it.Observations...)
	cp.MissingFields = append([]string(nil), it.MissingFields...)
	cp.Changes = append([]Change(nil), it.Changes...)
	return &cp
}
