// Package identity provides deterministic ID generation for estate records.
//
// This package implements content-addressable IDs derived from a record's
// type and its normalized identity fields. IDs are stable across imports and
// extraction runs, enabling reliable deduplication in both record collections.
//
// # ID Format
//
// IDs follow the format: {T}-{TYPE}-{digest}
//
//   - {T} is "I" for canonical inventory items and "F" for observations (facts)
//   - {TYPE} is a short token for the record type or observation domain
//   - {digest} is base64url(sha256(canonical)[:9]), 12 characters
//
// Example:
//
//	I-APP-YlVwLX3qR0Sy
//	I-VND-8K7J6H5G4F3D
//	F-NET-X9Y8Z7W6V5U4
//
// # Canonical Representation
//
// Identity-field values are normalized before hashing so that the same
// logical record always produces the same ID:
//
//   - values are trimmed and case-folded
//   - empty or absent values map to the sentinel token "unspecified" (an
//     empty string and a missing field are the same statement of ignorance)
//   - field order is the schema's declared order, never the input order
//
// # Scoping
//
// Item IDs hash the tenant (deal) and subject alongside the identity fields,
// so identical content in two deals or for two subjects never collides.
// Observation IDs deliberately omit the tenant: the same wording extracted
// twice from the same document within one run must collapse to a single
// record even before the tenant is known. Do not "fix" this asymmetry.
package identity
