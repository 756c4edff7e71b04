// Package registry provides engagement session registration and discovery.
//
// During a due-diligence engagement several people and pipelines touch the
// same deal workspace at once: extraction workers importing observations,
// analysts reviewing the queue, the merge runner folding re-imports. Each of
// them registers a session here so the others can see who is active on a
// deal, route change notifications, and avoid opening a second merge run
// against the same snapshot.
//
// Sessions are backed by etcd leases with a TTL, so a crashed worker
// disappears from the registry automatically once its lease lapses. A
// graceful shutdown should still call Deregister to drop the entry
// immediately.
package registry

import (
	"context"
	"time"
)

// SessionInfo describes one registered session on a deal.
//
// Multiple sessions may be open on the same deal concurrently, each with a
// unique SessionID. The Role field tells readers what kind of participant
// this is; the registry itself does not interpret it.
type SessionInfo struct {
	// DealID is the engagement the session is working in.
	DealID string `json:"deal_id"`

	// Role is the participant type: "importer", "reviewer", or "reconciler".
	Role string `json:"role"`

	// SessionID uniquely identifies this session (typically a UUID).
	SessionID string `json:"session_id"`

	// Actor names the human or pipeline behind the session.
	Actor string `json:"actor"`

	// Endpoint is where the session can be reached for notifications,
	// if it exposes anything. Format: "host:port". May be empty.
	Endpoint string `json:"endpoint,omitempty"`

	// Metadata carries session-specific attributes, such as the subject
	// being worked ("target", "buyer") or the source document batch.
	Metadata map[string]string `json:"metadata,omitempty"`

	// OpenedAt is when the session registered.
	OpenedAt time.Time `json:"opened_at"`
}

// Registry defines the session registration and discovery interface.
//
// Implementations must be safe for concurrent use. Entries are leased:
// a session that stops renewing its lease is removed automatically.
type Registry interface {
	// Register adds a session to the registry. The session is discoverable
	// immediately and stays registered while its lease is renewed in the
	// background. Registering an existing SessionID updates the entry.
	Register(ctx context.Context, info SessionInfo) error

	// Deregister removes a session. Called on graceful shutdown so the
	// entry disappears without waiting for the lease to lapse. If the
	// session is not registered this is a no-op.
	Deregister(ctx context.Context, info SessionInfo) error

	// Sessions returns all sessions currently open on a deal, in
	// arbitrary order. The slice may be empty.
	Sessions(ctx context.Context, dealID string) ([]SessionInfo, error)

	// AllSessions returns every open session across all deals, for
	// status displays.
	AllSessions(ctx context.Context) ([]SessionInfo, error)

	// Watch returns a channel that receives the full session list for a
	// deal whenever it changes. The current state is sent immediately.
	// The channel closes when the context is cancelled or the registry
	// is closed.
	Watch(ctx context.Context, dealID string) (<-chan []SessionInfo, error)

	// Close releases resources and stops lease renewal for every session
	// this client registered. After Close all other methods return errors.
	Close() error
}

// Config holds registry connection configuration.
type Config struct {
	// Endpoints is the list of etcd endpoints.
	// Format: ["host1:2379", "host2:2379"]
	Endpoints []string `json:"endpoints" yaml:"endpoints"`

	// Namespace is the etcd key prefix for session entries.
	// Sessions are stored under /{namespace}/deals/{deal-id}/{session-id}.
	// Default: "estate"
	Namespace string `json:"namespace" yaml:"namespace"`

	// TTL is the session lease time-to-live in seconds. A session that
	// fails to renew within this interval is removed.
	// Default: 30
	TTL int `json:"ttl" yaml:"ttl"`

	// TLS holds TLS configuration for secure etcd communication.
	// If nil, TLS is disabled.
	TLS *TLSConfig `json:"tls" yaml:"tls"`
}

// TLSConfig holds certificate paths for mutual TLS with etcd.
type TLSConfig struct {
	// Enabled determines whether TLS is active.
	// If false, all other fields are ignored.
	Enabled bool `json:"enabled" yaml:"enabled"`

	// CertFile is the path to the client certificate (PEM).
	CertFile string `json:"cert_file" yaml:"cert_file"`

	// KeyFile is the path to the client private key (PEM).
	KeyFile string `json:"key_file" yaml:"key_file"`

	// CAFile is the path to the CA bundle used to verify the etcd
	// server's certificate (PEM).
	CAFile string `json:"ca_file" yaml:"ca_file"`
}
