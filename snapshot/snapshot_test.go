package snapshot

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

type testRecord struct {
	Name string `json:"name"`
	Cost int    `json:"cost"`
}

func TestWriteReadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deal-001", "items.json")

	env := NewEnvelope("deal-001")
	if err := env.Put("I-APP-abc", testRecord{Name: "Jira", Cost: 38000}); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if err := Write(path, env); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	loaded, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if loaded.TenantID != "deal-001" {
		t.Errorf("TenantID = %q, want deal-001", loaded.TenantID)
	}
	if loaded.SchemaVersion != SchemaVersion {
		t.Errorf("SchemaVersion = %q, want %q", loaded.SchemaVersion, SchemaVersion)
	}
	if loaded.ItemCount != 1 {
		t.Errorf("ItemCount = %d, want 1", loaded.ItemCount)
	}

	var rec testRecord
	if err := loaded.Decode("I-APP-abc", &rec); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if rec.Name != "Jira" || rec.Cost != 38000 {
		t.Errorf("Decode() = %+v, want original record", rec)
	}
}

func TestWriteLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "items.json")

	env := NewEnvelope("deal-001")
	if err := Write(path, env); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "items.json" {
		t.Errorf("directory contents = %v, want only items.json", entries)
	}
}

func TestReadMissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	if !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("Read() error = %v, want ErrNoSnapshot", err)
	}
}

func TestReadLegacyDefaults(t *testing.T) {
	// A snapshot written before tenant scoping existed: no schema_version,
	// no tenant_id, no items key.
	path := filepath.Join(t.TempDir(), "legacy.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	env, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if env.TenantID != TenantUnscoped {
		t.Errorf("TenantID = %q, want %q", env.TenantID, TenantUnscoped)
	}
	if env.SchemaVersion != "1" {
		t.Errorf("SchemaVersion = %q, want 1", env.SchemaVersion)
	}
	if env.Items == nil {
		t.Error("Items = nil, want empty map")
	}
}

func TestEnvelopeDecodeIsolation(t *testing.T) {
	// A malformed record must not poison access to its siblings.
	env := &Envelope{
		SchemaVersion: SchemaVersion,
		TenantID:      "deal-001",
		Items: map[string]json.RawMessage{
			"good": json.RawMessage(`{"name":"Jira","cost":1}`),
			"bad":  json.RawMessage(`{"name":`),
		},
	}

	var rec testRecord
	if err := env.Decode("good", &rec); err != nil {
		t.Errorf("Decode(good) error = %v", err)
	}
	if err := env.Decode("bad", &rec); err == nil {
		t.Error("Decode(bad) error = nil, want parse error")
	}
}

func TestWriteRequiresTenant(t *testing.T) {
	env := &Envelope{Items: map[string]json.RawMessage{}}
	if err := Write(filepath.Join(t.TempDir(), "x.json"), env); err == nil {
		t.Error("Write() with no tenant = nil error, want error")
	}
}
