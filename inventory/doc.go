// Package inventory implements the canonical item store: the deduplicated,
// editable record of every real-world thing in the IT estate.
//
// A store instance is scoped to a single tenant (deal). Adding a record
// whose content-derived identity already exists merges into the existing
// item instead of creating a duplicate; idempotency is a correctness
// property here, not an optimization, because ingestion re-runs after
// partial failures and several ingestion paths may observe the same entity.
//
// Removal is soft and reversible; re-imports may deprecate items but never
// delete them; an item's identifier is fixed at creation and survives every
// later edit.
//
// The whole keyed collection sits behind one coarse RWMutex. Operations on
// one store are linearizable; no lock is ever held across file, network, or
// queue I/O.
package inventory
