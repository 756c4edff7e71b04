package identity

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Sentinel errors for schema registry operations.
var (
	// ErrTypeNotRegistered indicates the requested record type is not in the registry.
	ErrTypeNotRegistered = errors.New("record type not registered")

	// ErrBadSchema indicates a schema definition is structurally invalid
	// (no identity fields, or a duplicated identity field).
	ErrBadSchema = errors.New("invalid type schema")
)

// RecordType classifies a canonical inventory item.
type RecordType string

// Canonical record types for an IT estate.
const (
	TypeApplication    RecordType = "application"
	TypeInfrastructure RecordType = "infrastructure"
	TypeOrganization   RecordType = "organization"
	TypeVendor         RecordType = "vendor"
)

// Token returns the short uppercase token embedded in generated IDs.
func (t RecordType) Token() string {
	switch t {
	case TypeApplication:
		return "APP"
	case TypeInfrastructure:
		return "INF"
	case TypeOrganization:
		return "ORG"
	case TypeVendor:
		return "VND"
	default:
		return "UNK"
	}
}

// Valid reports whether t is one of the canonical record types.
func (t RecordType) Valid() bool {
	switch t {
	case TypeApplication, TypeInfrastructure, TypeOrganization, TypeVendor:
		return true
	}
	return false
}

// TypeSchema declares the attribute contract for one record type.
//
// Identity fields form the natural key: they are hashed (in declared order)
// to produce the deterministic item ID. Required fields must be present for a
// record to be considered well-formed; a record missing one is still stored
// but flagged for review, never rejected. Optional fields are documented for
// collaborators but not enforced.
type TypeSchema struct {
	// Identity lists the attributes hashed into the item ID, in hash order.
	Identity []string `yaml:"identity"`

	// Required lists the attributes a well-formed record must populate.
	// An identity field need not be required: an absent identity value
	// normalizes to a sentinel and still hashes deterministically.
	Required []string `yaml:"required"`

	// Optional lists known non-required attributes.
	Optional []string `yaml:"optional,omitempty"`
}

func (s TypeSchema) validate() error {
	if len(s.Identity) == 0 {
		return fmt.Errorf("%w: no identity fields", ErrBadSchema)
	}
	seen := make(map[string]bool, len(s.Identity))
	for _, f := range s.Identity {
		if seen[f] {
			return fmt.Errorf("%w: duplicate identity field %q", ErrBadSchema, f)
		}
		seen[f] = true
	}
	return nil
}

// SchemaRegistry maps record types to their attribute schemas. It is the
// single source of truth for which attributes participate in identity
// hashing and which are required at the construction boundary.
//
// Thread-safety: all methods are safe for concurrent use.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[RecordType]TypeSchema
}

// NewDefaultSchemaRegistry returns a registry pre-populated with the
// canonical estate record types.
//
// Default schema table:
//
//	application:    identity [name vendor],       required [name vendor category]
//	infrastructure: identity [name environment],  required [name category environment]
//	organization:   identity [name department],   required [name department]
//	vendor:         identity [vendor product],    required [vendor product]
func NewDefaultSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		schemas: map[RecordType]TypeSchema{
			TypeApplication: {
				Identity: []string{"name", "vendor"},
				Required: []string{"name", "vendor", "category"},
				Optional: []string{"version", "users", "cost_annual", "criticality", "hosting"},
			},
			TypeInfrastructure: {
				Identity: []string{"name", "environment"},
				Required: []string{"name", "category", "environment"},
				Optional: []string{"location", "os", "count", "cost_annual"},
			},
			TypeOrganization: {
				Identity: []string{"name", "department"},
				Required: []string{"name", "department"},
				Optional: []string{"headcount", "location", "reports_to", "cost_annual"},
			},
			TypeVendor: {
				Identity: []string{"vendor", "product"},
				Required: []string{"vendor", "product"},
				Optional: []string{"contract_end", "seats", "renewal", "cost_annual"},
			},
		},
	}
}

// Register adds or replaces the schema for a record type.
// Returns ErrBadSchema if the schema is structurally invalid.
func (r *SchemaRegistry) Register(t RecordType, schema TypeSchema) error {
	if err := schema.validate(); err != nil {
		return fmt.Errorf("register %q: %w", t, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[t] = schema
	return nil
}

// IdentityFields returns the hash-ordered identity field names for a type.
// Returns ErrTypeNotRegistered for unknown types.
func (r *SchemaRegistry) IdentityFields(t RecordType) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotRegistered, t)
	}
	out := make([]string, len(s.Identity))
	copy(out, s.Identity)
	return out, nil
}

// RequiredFields returns the required field names for a type.
// Returns ErrTypeNotRegistered for unknown types.
func (r *SchemaRegistry) RequiredFields(t RecordType) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.schemas[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTypeNotRegistered, t)
	}
	out := make([]string, len(s.Required))
	copy(out, s.Required)
	return out, nil
}

// MissingRequired returns the required fields absent or empty in attrs.
// The result is sorted for stable flagging and logging.
// Returns ErrTypeNotRegistered for unknown types.
func (r *SchemaRegistry) MissingRequired(t RecordType, attrs map[string]string) ([]string, error) {
	required, err := r.RequiredFields(t)
	if err != nil {
		return nil, err
	}
	var missing []string
	for _, f := range required {
		if normalizeField(attrs[f]) == SentinelUnspecified {
			missing = append(missing, f)
		}
	}
	sort.Strings(missing)
	return missing, nil
}

// AllTypes returns the sorted list of registered record types.
func (r *SchemaRegistry) AllTypes() []RecordType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]RecordType, 0, len(r.schemas))
	for t := range r.schemas {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// LoadYAML merges schema overrides from a YAML document into the registry.
// The document maps record type names to TypeSchema definitions:
//
//	application:
//	  identity: [name, vendor]
//	  required: [name, vendor, category, criticality]
//
// Types present in the document replace the registered schema wholesale;
// absent types keep their defaults. Invalid schemas abort the whole load so
// a partially-applied override never goes unnoticed.
func (r *SchemaRegistry) LoadYAML(data []byte) error {
	var doc map[RecordType]TypeSchema
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse schema overrides: %w", err)
	}
	for t, s := range doc {
		if err := s.validate(); err != nil {
			return fmt.Errorf("schema override %q: %w", t, err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for t, s := range doc {
		r.schemas[t] = s
	}
	return nil
}
