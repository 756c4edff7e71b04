package queue

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client defines the review-queue operations the store host and review UI rely on.
type Client interface {
	// Enqueue adds a review task, scored by its priority (ZADD).
	// Re-enqueueing the same observation updates its score instead of
	// duplicating the task.
	Enqueue(ctx context.Context, task ReviewTask) error

	// Next removes and returns the highest-priority task for a tenant
	// (ZPOPMAX). Returns nil when the queue is empty.
	Next(ctx context.Context, tenant string) (*ReviewTask, error)

	// Pending returns the number of queued tasks for a tenant.
	Pending(ctx context.Context, tenant string) (int64, error)

	// PublishChange sends a store mutation event to the tenant's channel.
	PublishChange(ctx context.Context, event ChangeEvent) error

	// SubscribeChanges streams a tenant's change events until the context
	// is cancelled.
	SubscribeChanges(ctx context.Context, tenant string) (<-chan ChangeEvent, error)

	// Close closes the Redis connection.
	Close() error
}

// RedisOptions configures the Redis connection.
type RedisOptions struct {
	// URL is the Redis connection string (e.g., "redis://localhost:6379")
	URL string

	// TLS configuration for secure connections
	TLS *tls.Config

	// ConnectTimeout is the maximum time to wait for connection establishment
	ConnectTimeout time.Duration

	// ReadTimeout is the maximum time to wait for read operations
	ReadTimeout time.Duration

	// WriteTimeout is the maximum time to wait for write operations
	WriteTimeout time.Duration
}

// RedisClient implements Client using go-redis/v9.
type RedisClient struct {
	client *redis.Client
}

// NewRedisClient creates a review-queue client with the given options.
func NewRedisClient(opts RedisOptions) (*RedisClient, error) {
	if opts.URL == "" {
		opts.URL = "redis://localhost:6379"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout == 0 {
		opts.WriteTimeout = 5 * time.Second
	}

	redisOpts, err := redis.ParseURL(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	redisOpts.TLSConfig = opts.TLS
	redisOpts.DialTimeout = opts.ConnectTimeout
	redisOpts.ReadTimeout = opts.ReadTimeout
	redisOpts.WriteTimeout = opts.WriteTimeout

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.ConnectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisClient{client: client}, nil
}

// Enqueue adds a review task scored by its priority.
//
// The sorted-set member is the observation ID, with the task body held in
// a per-tenant hash, so re-enqueueing the same observation updates its
// score and body instead of duplicating the task.
func (c *RedisClient) Enqueue(ctx context.Context, task ReviewTask) error {
	if err := task.Validate(); err != nil {
		return err
	}
	if task.EnqueuedAt == 0 {
		task.EnqueuedAt = NowMillis()
	}
	data, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal review task: %w", err)
	}

	bodyKey := reviewBodyKey(task.Tenant)
	if err := c.client.HSet(ctx, bodyKey, task.ObservationID, data).Err(); err != nil {
		return fmt.Errorf("failed to store task body in %s: %w", bodyKey, err)
	}

	key := reviewQueueKey(task.Tenant)
	err = c.client.ZAdd(ctx, key, redis.Z{Score: task.Priority, Member: task.ObservationID}).Err()
	if err != nil {
		return fmt.Errorf("failed to enqueue to %s: %w", key, err)
	}
	return nil
}

// Next pops the highest-priority task for a tenant.
func (c *RedisClient) Next(ctx context.Context, tenant string) (*ReviewTask, error) {
	key := reviewQueueKey(tenant)
	result, err := c.client.ZPopMax(ctx, key, 1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from %s: %w", key, err)
	}
	if len(result) == 0 {
		return nil, nil
	}

	id, ok := result[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("unexpected member type %T in %s", result[0].Member, key)
	}

	bodyKey := reviewBodyKey(tenant)
	data, err := c.client.HGet(ctx, bodyKey, id).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("task body for %s missing from %s", id, bodyKey)
		}
		return nil, fmt.Errorf("failed to load task body from %s: %w", bodyKey, err)
	}
	if err := c.client.HDel(ctx, bodyKey, id).Err(); err != nil {
		return nil, fmt.Errorf("failed to delete task body from %s: %w", bodyKey, err)
	}

	var task ReviewTask
	if err := json.Unmarshal([]byte(data), &task); err != nil {
		return nil, fmt.Errorf("failed to unmarshal review task: %w", err)
	}
	return &task, nil
}

// Pending returns the number of queued tasks for a tenant.
func (c *RedisClient) Pending(ctx context.Context, tenant string) (int64, error) {
	n, err := c.client.ZCard(ctx, reviewQueueKey(tenant)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to count review queue: %w", err)
	}
	return n, nil
}

// PublishChange sends a store mutation event to the tenant's channel.
func (c *RedisClient) PublishChange(ctx context.Context, event ChangeEvent) error {
	if event.At == 0 {
		event.At = NowMillis()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	channel := changeChannel(event.Tenant)
	if err := c.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish to channel %s: %w", channel, err)
	}
	return nil
}

// SubscribeChanges streams a tenant's change events until the context is cancelled.
func (c *RedisClient) SubscribeChanges(ctx context.Context, tenant string) (<-chan ChangeEvent, error) {
	channel := changeChannel(tenant)
	pubsub := c.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation
	if _, err := pubsub.Receive(ctx); err != nil {
		return nil, fmt.Errorf("failed to subscribe to channel %s: %w", channel, err)
	}

	events := make(chan ChangeEvent)
	go func() {
		defer close(events)
		defer pubsub.Close()

		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var event ChangeEvent
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					// Skip malformed payloads but keep the stream alive.
					continue
				}
				select {
				case events <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return events, nil
}

// Close closes the Redis connection.
func (c *RedisClient) Close() error {
	return c.client.Close()
}
