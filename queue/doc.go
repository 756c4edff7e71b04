// Package queue provides the Redis-backed review queue and store-change
// event feed consumed by the human-review workflow.
//
// Observations needing a human pass are enqueued as priority-scored tasks
// in a per-tenant sorted set; reviewers pop the highest-priority task first.
// Store mutations are published on a per-tenant pub/sub channel so the
// review UI can refresh without polling.
//
// The queue is strictly a consumer of the stores: store code never blocks
// on Redis while holding a store lock.
package queue
