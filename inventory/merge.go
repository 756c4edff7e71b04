package inventory

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diligence-ai/estate/record"
)

// ErrTenantMismatch indicates an attempt to merge stores belonging to
// different deals. Records are never mergeable across tenants.
var ErrTenantMismatch = errors.New("inventory: cannot merge stores of different tenants")

// Strategy selects how MergeFrom treats items already present.
type Strategy string

const (
	// MergeAddNew inserts items absent from this store and ignores the rest.
	MergeAddNew Strategy = "add-new"

	// MergeUpdate inserts absent items and overwrites differing attributes
	// of present ones.
	MergeUpdate Strategy = "update"

	// MergeSmart is MergeUpdate plus deprecation: an automatically imported
	// item absent from the incoming source is marked deprecated, never
	// deleted, so history survives and manual corrections are untouched.
	MergeSmart Strategy = "smart"
)

// MergeReport summarizes what a bulk merge did. Callers translate it into
// end-user messaging; the store never formats human-facing text.
type MergeReport struct {
	// RunID uniquely identifies this merge for the change log.
	RunID string `json:"run_id"`

	// Strategy is the strategy that ran.
	Strategy Strategy `json:"strategy"`

	Added      int `json:"added"`
	Updated    int `json:"updated"`
	Restored   int `json:"restored"`
	Deprecated int `json:"deprecated"`
	Unchanged  int `json:"unchanged"`
}

// MergeFrom folds another store of the same tenant into this one.
//
// The incoming store is read-snapshotted before this store's lock is taken,
// so the two store locks are never held together and the operation cannot
// deadlock against concurrent cross-store work.
//
// The merge is all-or-nothing: a copy-on-write backup of every touched key
// is taken as it is first modified, and on failure the backup is written
// back into the live collection. The collection reference itself is never
// swapped, so concurrent holders of the store keep seeing the real map.
func (s *Store) MergeFrom(other *Store, strategy Strategy, actor string) (MergeReport, error) {
	switch strategy {
	case MergeAddNew, MergeUpdate, MergeSmart:
	default:
		return MergeReport{}, fmt.Errorf("inventory: unknown merge strategy %q", strategy)
	}
	if other.Tenant() != s.tenant {
		return MergeReport{}, fmt.Errorf("%w: %q vs %q", ErrTenantMismatch, other.Tenant(), s.tenant)
	}

	incoming := other.exportAll()

	report := MergeReport{
		RunID:    uuid.New().String(),
		Strategy: strategy,
	}
	mergeActor := actor
	if mergeActor == "" {
		mergeActor = "merge:" + report.RunID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy-on-write backups, taken lazily the first time a key is touched.
	backup := make(map[string]*record.Item)
	var added []string
	touch := func(item *record.Item) {
		if _, ok := backup[item.ID]; !ok {
			backup[item.ID] = item.Clone()
		}
	}
	rollback := func() {
		for _, id := range added {
			if item, ok := s.byID[id]; ok {
				delete(s.byKey, item.CanonicalKey)
				delete(s.byID, id)
			}
		}
		for id, saved := range backup {
			s.byID[id] = saved
			s.byKey[saved.CanonicalKey] = id
		}
	}

	now := time.Now().UTC()
	incomingKeys := make(map[string]bool, len(incoming))

	for _, in := range incoming {
		incomingKeys[in.CanonicalKey] = true

		existingID, present := s.byKey[in.CanonicalKey]
		if !present {
			if conflicting, ok := s.byID[in.ID]; ok && conflicting.CanonicalKey != in.CanonicalKey {
				rollback()
				return MergeReport{}, fmt.Errorf("%w: %s during merge %s", ErrIDCollision, in.ID, report.RunID)
			}
			cp := in.Clone()
			cp.Changes = append(cp.Changes, record.NewChange(mergeActor, "merge-add", nil, ""))
			cp.UpdatedAt = now
			s.byID[cp.ID] = cp
			s.byKey[cp.CanonicalKey] = cp.ID
			added = append(added, cp.ID)
			report.Added++
			continue
		}

		if strategy == MergeAddNew {
			report.Unchanged++
			continue
		}

		existing := s.byID[existingID]
		restored := false
		if existing.Status == record.StatusRemoved {
			touch(existing)
			existing.Status = record.StatusActive
			existing.RemovalReason = ""
			existing.Changes = append(existing.Changes, record.NewChange(mergeActor, "restore", nil, "present in merged source"))
			restored = true
		}

		var overwritten []string
		for k, v := range in.Attributes {
			if strings.TrimSpace(v) == "" {
				continue
			}
			if prev, ok := existing.Attributes[k]; !ok || prev != v {
				touch(existing)
				existing.Attributes[k] = v
				if ok && prev != "" {
					overwritten = append(overwritten, k)
				}
			}
		}
		if len(overwritten) > 0 {
			sort.Strings(overwritten)
			existing.Changes = append(existing.Changes, record.NewChange(mergeActor, "merge-overwrite", overwritten, ""))
		}

		switch {
		case restored:
			existing.MergeCount++
			existing.UpdatedAt = now
			report.Restored++
		case len(overwritten) > 0 || changedShape(backup[existing.ID], existing):
			existing.MergeCount++
			existing.UpdatedAt = now
			report.Updated++
		default:
			report.Unchanged++
		}
	}

	if strategy == MergeSmart {
		for _, item := range s.byID {
			if incomingKeys[item.CanonicalKey] {
				continue
			}
			// Only automated imports age out; a manual addition is a human
			// statement the incoming file knows nothing about.
			if item.Origin != record.OriginImport || item.Status != record.StatusActive {
				continue
			}
			touch(item)
			item.Status = record.StatusDeprecated
			item.RemovalReason = "not present in latest source"
			item.Changes = append(item.Changes, record.NewChange(mergeActor, "deprecate", nil, item.RemovalReason))
			item.UpdatedAt = now
			report.Deprecated++
		}
	}

	s.logger.Info("merged store",
		"tenant", s.tenant,
		"strategy", string(strategy),
		"run_id", report.RunID,
		"added", report.Added,
		"updated", report.Updated,
		"restored", report.Restored,
		"deprecated", report.Deprecated,
		"unchanged", report.Unchanged,
	)
	return report, nil
}

// exportAll returns deep copies of every item, all statuses included.
func (s *Store) exportAll() []*record.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*record.Item, 0, len(s.byID))
	for _, item := range s.byID {
		out = append(out, item.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// changedShape reports whether non-attribute fields differ from the backup.
// A nil backup means the item was never touched.
func changedShape(before, after *record.Item) bool {
	if before == nil {
		return false
	}
	return before.Status != after.Status || len(before.Attributes) != len(after.Attributes)
}
