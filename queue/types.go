package queue

import (
	"fmt"
	"strings"
	"time"
)

// ReviewTask is a single observation awaiting a human pass.
type ReviewTask struct {
	// ObservationID identifies the observation to review.
	ObservationID string `json:"observation_id"`

	// Tenant is the deal the observation belongs to.
	Tenant string `json:"tenant"`

	// Subject is which side of the engagement the claim describes.
	Subject string `json:"subject"`

	// Domain is the observation's extraction domain.
	Domain string `json:"domain"`

	// Label is the short name of the observed thing, for queue display.
	Label string `json:"label"`

	// Priority is the review-ordering score. Higher pops first.
	Priority float64 `json:"priority"`

	// EnqueuedAt is the Unix timestamp in milliseconds when the task was queued.
	EnqueuedAt int64 `json:"enqueued_at"`
}

// Validate checks that the task carries the fields the review UI depends on.
func (t ReviewTask) Validate() error {
	if strings.TrimSpace(t.ObservationID) == "" {
		return fmt.Errorf("review task missing observation id")
	}
	if strings.TrimSpace(t.Tenant) == "" {
		return fmt.Errorf("review task missing tenant")
	}
	return nil
}

// ChangeKind classifies a store mutation event.
type ChangeKind string

const (
	// ChangeItemAdded signals a new canonical item.
	ChangeItemAdded ChangeKind = "item_added"

	// ChangeItemUpdated signals an attribute or status change.
	ChangeItemUpdated ChangeKind = "item_updated"

	// ChangeItemRemoved signals a soft removal.
	ChangeItemRemoved ChangeKind = "item_removed"

	// ChangeMerge signals a completed bulk merge.
	ChangeMerge ChangeKind = "merge"
)

// ChangeEvent is one store mutation published to the per-tenant feed.
type ChangeEvent struct {
	// Tenant is the deal the change happened in.
	Tenant string `json:"tenant"`

	// Kind classifies the change.
	Kind ChangeKind `json:"kind"`

	// RecordID is the affected item or, for merges, the merge run ID.
	RecordID string `json:"record_id"`

	// Actor names who or what made the change.
	Actor string `json:"actor,omitempty"`

	// At is the Unix timestamp in milliseconds of the change.
	At int64 `json:"at"`
}

// NowMillis returns the current time as Unix milliseconds, the timestamp
// convention used on the wire.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// reviewQueueKey is the sorted-set key ordering a tenant's review tasks by
// priority. Members are observation IDs.
func reviewQueueKey(tenant string) string {
	return "estate:" + tenant + ":review"
}

// reviewBodyKey is the hash key holding the serialized task bodies, one
// field per observation ID.
func reviewBodyKey(tenant string) string {
	return "estate:" + tenant + ":review:tasks"
}

// changeChannel is the pub/sub channel carrying a tenant's change events.
func changeChannel(tenant string) string {
	return "estate:" + tenant + ":changes"
}
