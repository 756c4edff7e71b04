// Package observation implements the append-mostly store of evidence-backed
// claims. Observations are keyed by their content-derived identifier, so the
// same wording extracted twice from the same source collapses to one record.
//
// A store instance is scoped to a single tenant (deal) and guards its whole
// collection with one coarse lock; operations on the same store serialize.
// Observation content never changes after creation; only the verification
// state and the back-reference to a canonical item may be mutated, and only
// through the store's methods.
package observation
