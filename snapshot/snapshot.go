package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// SchemaVersion is written into every snapshot this build produces.
const SchemaVersion = "2"

// TenantUnscoped marks records loaded from snapshots that predate tenant
// scoping. Legacy records keep this explicit marker; they are never silently
// reassigned to the loading tenant.
const TenantUnscoped = "unscoped"

// ErrNoSnapshot is returned by Read when the snapshot file does not exist.
// A missing snapshot is a normal condition for a fresh engagement.
var ErrNoSnapshot = errors.New("snapshot: file does not exist")

// Envelope is the on-disk shape of one store snapshot for one tenant.
//
// Records are kept as raw JSON so the loader can decode them one at a time
// and skip individually malformed entries without abandoning the file.
type Envelope struct {
	// SchemaVersion identifies the snapshot format for forward tolerance.
	SchemaVersion string `json:"schema_version"`

	// TenantID is the deal this snapshot belongs to.
	TenantID string `json:"tenant_id"`

	// ItemCount is the number of records at save time.
	ItemCount int `json:"item_count"`

	// Items maps record IDs to their serialized form.
	Items map[string]json.RawMessage `json:"items"`

	// Summary holds aggregate counts and costs for reporting collaborators.
	Summary map[string]any `json:"summary,omitempty"`

	// SavedAt is when the snapshot was written.
	SavedAt time.Time `json:"saved_at"`
}

// NewEnvelope creates an empty envelope for the given tenant at the current
// schema version.
func NewEnvelope(tenantID string) *Envelope {
	return &Envelope{
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		Items:         make(map[string]json.RawMessage),
	}
}

// Put serializes a record into the envelope under the given ID.
func (e *Envelope) Put(id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode record %s: %w", id, err)
	}
	e.Items[id] = data
	e.ItemCount = len(e.Items)
	return nil
}

// Decode unmarshals the record stored under the given ID into v.
func (e *Envelope) Decode(id string, v any) error {
	raw, ok := e.Items[id]
	if !ok {
		return fmt.Errorf("snapshot: no record %s", id)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode record %s: %w", id, err)
	}
	return nil
}

// Write persists the envelope to path atomically: the JSON is written to a
// temporary file in the same directory and renamed into place. The parent
// directory is created if absent.
func Write(path string, e *Envelope) error {
	if e.TenantID == "" {
		return errors.New("snapshot: envelope has no tenant")
	}
	e.SavedAt = time.Now().UTC()
	e.ItemCount = len(e.Items)

	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

// Read loads an envelope from path. Missing optional envelope fields from
// older schema versions are substituted with documented defaults: an absent
// tenant becomes TenantUnscoped, absent items become an empty set.
//
// Returns ErrNoSnapshot when the file does not exist.
func Read(path string) (*Envelope, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("parse snapshot %s: %w", filepath.Base(path), err)
	}
	if e.SchemaVersion == "" {
		e.SchemaVersion = "1"
	}
	if e.TenantID == "" {
		e.TenantID = TenantUnscoped
	}
	if e.Items == nil {
		e.Items = make(map[string]json.RawMessage)
	}
	e.ItemCount = len(e.Items)
	return &e, nil
}
