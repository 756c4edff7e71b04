// Package record defines the two record shapes of the estate store.
//
// An Observation is an evidence-backed claim extracted from a single source
// document (or synthesized from the inventory). Its content is immutable
// once created; only the verification state and the back-reference to the
// canonical item it was folded into may change.
//
// An Item is the deduplicated, editable record of a real-world thing (an
// application, a piece of infrastructure, a role, a vendor contract). Items
// are mutable, but an item's ID is fixed at creation and never recomputed
// from later edits, so an established identity survives attribute changes.
//
// Both shapes carry explicit deal (tenant) and subject scoping. A record
// without scoping is a defect, not a default.
package record
