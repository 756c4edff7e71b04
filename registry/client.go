package registry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// Client implements Registry backed by an etcd cluster.
//
// It handles lease management automatically, renewing each registered
// session's lease every TTL/3 to maintain presence.
//
// Example usage:
//
//	cfg := registry.Config{
//	    Endpoints: []string{"localhost:2379"},
//	    Namespace: "estate",
//	    TTL:       30,
//	}
//	client, err := registry.NewClient(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
// Thread-safety: all methods are safe for concurrent use.
type Client struct {
	client    *clientv3.Client
	namespace string
	ttl       int

	// Lease tracking for keepalive
	mu         sync.RWMutex
	leases     map[string]clientv3.LeaseID // key: session ID
	cancelFns  map[string]context.CancelFunc
	wg         sync.WaitGroup
	closed     bool
	closedChan chan struct{}
}

// NewClient creates a registry client from the provided configuration.
//
// This establishes a connection to the etcd cluster and verifies
// connectivity with a quick read. The client must be closed with Close()
// to release resources and stop background keepalive goroutines.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Endpoints) == 0 {
		return nil, fmt.Errorf("registry endpoints cannot be empty")
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "estate"
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30
	}

	clientCfg := clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	}

	tlsConfig, err := clientTLSConfig(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to configure TLS: %w", err)
	}
	clientCfg.TLS = tlsConfig

	cli, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err = cli.Get(ctx, "health-check")
	if err != nil && err != context.DeadlineExceeded {
		cli.Close()
		return nil, fmt.Errorf("etcd health check failed: %w", err)
	}

	return &Client{
		client:     cli,
		namespace:  namespace,
		ttl:        ttl,
		leases:     make(map[string]clientv3.LeaseID),
		cancelFns:  make(map[string]context.CancelFunc),
		closedChan: make(chan struct{}),
	}, nil
}

// NewClientFromEnv creates a registry client using the
// ESTATE_REGISTRY_ENDPOINTS environment variable, a comma-separated list
// of etcd endpoints:
//
//	ESTATE_REGISTRY_ENDPOINTS=localhost:2379,localhost:2380
//
// If the variable is not set this returns (nil, nil): the caller works
// without a registry, its sessions just aren't visible to anyone else.
func NewClientFromEnv() (*Client, error) {
	endpoints := os.Getenv("ESTATE_REGISTRY_ENDPOINTS")
	if endpoints == "" {
		return nil, nil
	}

	endpointList := strings.Split(endpoints, ",")
	for i, ep := range endpointList {
		endpointList[i] = strings.TrimSpace(ep)
	}

	cfg := Config{
		Endpoints: endpointList,
		Namespace: "estate",
		TTL:       30,
	}

	return NewClient(cfg)
}

// Register adds a session to the registry.
//
// The session is discoverable immediately and remains registered as long
// as the lease is kept alive. A background goroutine renews the lease
// every TTL/3 seconds. Registering an existing SessionID updates the
// entry and restarts its keepalive.
func (c *Client) Register(ctx context.Context, info SessionInfo) error {
	if strings.TrimSpace(info.DealID) == "" {
		return fmt.Errorf("session deal id cannot be empty")
	}
	if strings.TrimSpace(info.SessionID) == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("registry client is closed")
	}

	// Cancel existing keepalive if re-registering
	if cancelFn, exists := c.cancelFns[info.SessionID]; exists {
		cancelFn()
		delete(c.cancelFns, info.SessionID)
	}

	leaseResp, err := c.client.Grant(ctx, int64(c.ttl))
	if err != nil {
		return fmt.Errorf("failed to create lease: %w", err)
	}

	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to marshal session info: %w", err)
	}

	key := c.buildKey(info.DealID, info.SessionID)

	_, err = c.client.Put(ctx, key, string(data), clientv3.WithLease(leaseResp.ID))
	if err != nil {
		return fmt.Errorf("failed to register session: %w", err)
	}

	c.leases[info.SessionID] = leaseResp.ID

	keepaliveCtx, cancel := context.WithCancel(context.Background())
	c.cancelFns[info.SessionID] = cancel

	c.wg.Add(1)
	go c.keepalive(keepaliveCtx, leaseResp.ID, info.SessionID)

	return nil
}

// Deregister removes a session from the registry.
//
// This revokes the etcd lease, which immediately deletes the session
// entry, and stops the keepalive goroutine. If the session is not
// registered this is a no-op.
func (c *Client) Deregister(ctx context.Context, info SessionInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("registry client is closed")
	}

	if cancelFn, exists := c.cancelFns[info.SessionID]; exists {
		cancelFn()
		delete(c.cancelFns, info.SessionID)
	}

	leaseID, exists := c.leases[info.SessionID]
	if !exists {
		return nil
	}

	_, err := c.client.Revoke(ctx, leaseID)
	if err != nil {
		return fmt.Errorf("failed to revoke lease: %w", err)
	}

	delete(c.leases, info.SessionID)

	return nil
}

// Sessions returns all sessions currently open on a deal.
func (c *Client) Sessions(ctx context.Context, dealID string) ([]SessionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	prefix := fmt.Sprintf("/%s/deals/%s/", c.namespace, dealID)

	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list deal sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info SessionInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			// Skip invalid entries
			continue
		}
		sessions = append(sessions, info)
	}

	return sessions, nil
}

// AllSessions returns every open session across all deals.
func (c *Client) AllSessions(ctx context.Context) ([]SessionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	prefix := fmt.Sprintf("/%s/deals/", c.namespace)

	resp, err := c.client.Get(ctx, prefix, clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]SessionInfo, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var info SessionInfo
		if err := json.Unmarshal(kv.Value, &info); err != nil {
			continue
		}
		sessions = append(sessions, info)
	}

	return sessions, nil
}

// Watch returns a channel that receives the deal's session list whenever
// it changes.
//
// The channel emits the current list immediately, then again whenever a
// session registers, deregisters, or its lease expires. It is closed when
// the context is cancelled or Close is called.
func (c *Client) Watch(ctx context.Context, dealID string) (<-chan []SessionInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, fmt.Errorf("registry client is closed")
	}

	ch := make(chan []SessionInfo, 1)

	// Send initial state
	sessions, err := c.Sessions(ctx, dealID)
	if err != nil {
		return nil, err
	}
	ch <- sessions

	prefix := fmt.Sprintf("/%s/deals/%s/", c.namespace, dealID)
	watchChan := c.client.Watch(ctx, prefix, clientv3.WithPrefix())

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case <-c.closedChan:
				return
			case watchResp, ok := <-watchChan:
				if !ok {
					return
				}
				if watchResp.Err() != nil {
					return
				}

				// Fetch current state after any change
				sessions, err := c.Sessions(context.Background(), dealID)
				if err != nil {
					// Skip this update if we can't query
					continue
				}

				select {
				case ch <- sessions:
				case <-ctx.Done():
					return
				case <-c.closedChan:
					return
				}
			}
		}
	}()

	return ch, nil
}

// Close releases all resources and stops background goroutines.
//
// After Close is called, all other methods return errors. All active
// watches are terminated and their channels closed.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true

	for _, cancel := range c.cancelFns {
		cancel()
	}
	c.cancelFns = make(map[string]context.CancelFunc)

	close(c.closedChan)
	c.mu.Unlock()

	c.wg.Wait()

	return c.client.Close()
}

// keepalive renews the lease every TTL/3 seconds to maintain presence.
//
// It stops when the context is cancelled (Deregister or Close) or the
// lease becomes invalid.
func (c *Client) keepalive(ctx context.Context, leaseID clientv3.LeaseID, sessionID string) {
	defer c.wg.Done()

	interval := time.Duration(c.ttl) * time.Second / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.closedChan:
			return
		case <-ticker.C:
			_, err := c.client.KeepAliveOnce(context.Background(), leaseID)
			if err != nil {
				// Lease is invalid, stop keepalive
				c.mu.Lock()
				delete(c.leases, sessionID)
				delete(c.cancelFns, sessionID)
				c.mu.Unlock()
				return
			}
		}
	}
}

// buildKey constructs the etcd key for a session.
//
// Format: /namespace/deals/deal-id/session-id
func (c *Client) buildKey(dealID, sessionID string) string {
	return fmt.Sprintf("/%s/deals/%s/%s", c.namespace, dealID, sessionID)
}

// clientTLSConfig builds the mutual-TLS configuration for the etcd
// connection. Returns (nil, nil) when TLS is disabled; all three
// certificate paths are mandatory when it is enabled.
func clientTLSConfig(cfg *TLSConfig) (*tls.Config, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}

	for name, path := range map[string]string{
		"cert": cfg.CertFile,
		"key":  cfg.KeyFile,
		"CA":   cfg.CAFile,
	} {
		if path == "" {
			return nil, fmt.Errorf("TLS %s file is required when TLS is enabled", name)
		}
	}

	cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caData, err := os.ReadFile(cfg.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	caPool := x509.NewCertPool()
	if !caPool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("failed to parse CA certificate")
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}
