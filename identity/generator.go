package identity

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// SentinelUnspecified is the token substituted for an empty or absent
// identity-field value before hashing. An empty string and a missing field
// must hash to the same bytes, otherwise "no vendor given" and "vendor given
// as empty string" would silently become two identities.
const SentinelUnspecified = "unspecified"

// Sentinel errors for ID generation.
var (
	// ErrMissingTenant indicates an item ID was requested without a tenant.
	// This is a configuration error: the caller must fix it, it is never defaulted.
	ErrMissingTenant = errors.New("identity: tenant is required")

	// ErrMissingSubject indicates an item ID was requested without a subject.
	ErrMissingSubject = errors.New("identity: subject is required")
)

// Generator creates deterministic, content-addressable IDs for estate
// records. The same normalized inputs always produce the same ID; a change
// of tenant or subject always produces a different ID even when every other
// field matches.
//
// ID generation algorithm for items:
//
//  1. Look up the type's identity fields in the schema registry
//  2. Normalize each value (trim, case-fold, empty -> sentinel)
//  3. Build the canonical string: tenant|type|subject|f1=v1|f2=v2 in the
//     schema's declared field order
//  4. SHA-256 the canonical string, base64url-encode the first 9 bytes
//  5. Return I-{TYPE}-{digest}
type Generator struct {
	registry *SchemaRegistry
}

// NewGenerator creates a Generator backed by the given schema registry.
func NewGenerator(registry *SchemaRegistry) *Generator {
	return &Generator{registry: registry}
}

// ItemID derives the deterministic ID for a canonical inventory item.
//
// Returns ErrMissingTenant or ErrMissingSubject when scoping is absent, and
// ErrTypeNotRegistered for unknown record types. Attribute values outside
// the type's identity fields never influence the result.
func (g *Generator) ItemID(t RecordType, attrs map[string]string, subject, tenant string) (string, error) {
	if strings.TrimSpace(tenant) == "" {
		return "", ErrMissingTenant
	}
	if strings.TrimSpace(subject) == "" {
		return "", ErrMissingSubject
	}
	canonical, err := g.CanonicalKey(t, attrs, subject, tenant)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("I-%s-%s", t.Token(), digest(canonical)), nil
}

// CanonicalKey returns the pre-hash canonical string for an item. The store
// keeps this alongside each item so an accidental digest collision is
// detected at insert time instead of being trusted away.
func (g *Generator) CanonicalKey(t RecordType, attrs map[string]string, subject, tenant string) (string, error) {
	fields, err := g.registry.IdentityFields(t)
	if err != nil {
		return "", err
	}
	pairs := make([]string, 0, len(fields))
	for _, f := range fields {
		pairs = append(pairs, f+"="+normalizeField(attrs[f]))
	}
	return strings.Join([]string{
		normalizeField(tenant),
		string(t),
		normalizeField(subject),
		strings.Join(pairs, "|"),
	}, "|"), nil
}

// ObservationID derives the deterministic ID for an observation.
//
// The tenant is intentionally absent from the hash: the same claim extracted
// twice from the same source in one run must collapse to one record even
// before tenant scoping is applied. Tenant isolation for observations is
// enforced by the store, not the identifier.
func (g *Generator) ObservationID(domain, text, subject, source string) string {
	canonical := strings.Join([]string{
		normalizeField(domain),
		normalizeClaim(text),
		normalizeField(subject),
		normalizeField(source),
	}, "|")
	return fmt.Sprintf("F-%s-%s", DomainToken(domain), digest(canonical))
}

// DomainToken maps an observation domain to the short uppercase token used
// in generated IDs. Unknown domains fall back to their first three letters.
func DomainToken(domain string) string {
	switch strings.ToLower(strings.TrimSpace(domain)) {
	case "applications", "application":
		return "APP"
	case "infrastructure":
		return "INF"
	case "network":
		return "NET"
	case "organization", "org":
		return "ORG"
	case "vendors", "vendor":
		return "VND"
	case "security":
		return "SEC"
	case "cost", "costs":
		return "CST"
	case "":
		return "GEN"
	}
	d := strings.ToUpper(strings.TrimSpace(domain))
	for len(d) < 3 {
		d += "X"
	}
	return d[:3]
}

// digest hashes a canonical string into the 12-character ID suffix.
func digest(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return base64.RawURLEncoding.EncodeToString(sum[:9])
}

// normalizeField trims and case-folds a single field value, substituting the
// sentinel for empty input.
func normalizeField(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if v == "" {
		return SentinelUnspecified
	}
	return v
}

// normalizeClaim collapses internal whitespace in free-form claim text so
// line wrapping differences between extraction passes do not split identity.
func normalizeClaim(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return SentinelUnspecified
	}
	return strings.Join(strings.Fields(text), " ")
}
