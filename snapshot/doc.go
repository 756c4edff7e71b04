// Package snapshot implements durable JSON snapshots for the estate stores.
//
// Each store persists one file per tenant. Saves write to a temporary file in
// the target directory and atomically rename it into place, so a crash
// mid-write never leaves a corrupt snapshot visible to the next load.
//
// Loads are tolerant by design: a single malformed record is skipped with a
// logged warning while every other record loads, and records from snapshots
// that predate tenant scoping keep an explicit "unscoped" marker rather than
// being silently reassigned. Snapshots accumulate over the life of an
// engagement; one bad record must never block access to the rest.
package snapshot
