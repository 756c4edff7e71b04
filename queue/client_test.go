package queue

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestClient creates a miniredis instance and returns a connected RedisClient.
func setupTestClient(t *testing.T) (*RedisClient, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client, err := NewRedisClient(RedisOptions{
		URL:            fmt.Sprintf("redis://%s", mr.Addr()),
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   5 * time.Second,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})

	return client, mr
}

func TestNewRedisClient(t *testing.T) {
	t.Run("successful connection", func(t *testing.T) {
		mr := miniredis.RunT(t)
		defer mr.Close()

		client, err := NewRedisClient(RedisOptions{
			URL: fmt.Sprintf("redis://%s", mr.Addr()),
		})
		require.NoError(t, err)
		require.NotNil(t, client)
		defer client.Close()
	})

	t.Run("invalid URL", func(t *testing.T) {
		_, err := NewRedisClient(RedisOptions{URL: "not a url"})
		require.Error(t, err)
	})
}

func TestEnqueueNext(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	low := ReviewTask{
		ObservationID: "F-ORG-aaaaaaaaaaaa",
		Tenant:        "deal-001",
		Subject:       "target",
		Domain:        "organization",
		Label:         "IT team",
		Priority:      1.2,
	}
	high := ReviewTask{
		ObservationID: "F-SEC-bbbbbbbbbbbb",
		Tenant:        "deal-001",
		Subject:       "target",
		Domain:        "security",
		Label:         "No MFA",
		Priority:      9.4,
	}

	require.NoError(t, client.Enqueue(ctx, low))
	require.NoError(t, client.Enqueue(ctx, high))

	n, err := client.Pending(ctx, "deal-001")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Highest priority pops first.
	first, err := client.Next(ctx, "deal-001")
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, high.ObservationID, first.ObservationID)
	assert.NotZero(t, first.EnqueuedAt)

	second, err := client.Next(ctx, "deal-001")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, low.ObservationID, second.ObservationID)

	// Empty queue yields nil, not an error.
	empty, err := client.Next(ctx, "deal-001")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestReEnqueueUpdatesInsteadOfDuplicating(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	task := ReviewTask{
		ObservationID: "F-SEC-ffffffffffff",
		Tenant:        "deal-001",
		Subject:       "target",
		Domain:        "security",
		Label:         "No MFA",
		Priority:      3.0,
	}
	require.NoError(t, client.Enqueue(ctx, task))

	// A later re-enqueue of the same observation, at a different
	// millisecond and with a revised priority, must replace the queued
	// task rather than add a second one.
	time.Sleep(2 * time.Millisecond)
	task.Priority = 8.5
	task.Label = "No MFA on VPN"
	require.NoError(t, client.Enqueue(ctx, task))

	n, err := client.Pending(ctx, "deal-001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := client.Next(ctx, "deal-001")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 8.5, got.Priority)
	assert.Equal(t, "No MFA on VPN", got.Label)

	empty, err := client.Next(ctx, "deal-001")
	require.NoError(t, err)
	assert.Nil(t, empty)
}

func TestEnqueueValidates(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	err := client.Enqueue(ctx, ReviewTask{Tenant: "deal-001"})
	require.Error(t, err)
	err = client.Enqueue(ctx, ReviewTask{ObservationID: "F-APP-cccccccccccc"})
	require.Error(t, err)
}

func TestQueueTenantIsolation(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx := context.Background()

	require.NoError(t, client.Enqueue(ctx, ReviewTask{
		ObservationID: "F-APP-dddddddddddd",
		Tenant:        "deal-001",
		Priority:      5,
	}))

	other, err := client.Next(ctx, "deal-002")
	require.NoError(t, err)
	assert.Nil(t, other, "one deal's queue must never serve another's tasks")

	n, err := client.Pending(ctx, "deal-001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestPublishSubscribeChanges(t *testing.T) {
	client, _ := setupTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	events, err := client.SubscribeChanges(ctx, "deal-001")
	require.NoError(t, err)

	event := ChangeEvent{
		Tenant:   "deal-001",
		Kind:     ChangeItemAdded,
		RecordID: "I-APP-eeeeeeeeeeee",
		Actor:    "import-run-1",
	}
	require.NoError(t, client.PublishChange(ctx, event))

	select {
	case got := <-events:
		assert.Equal(t, ChangeItemAdded, got.Kind)
		assert.Equal(t, "I-APP-eeeeeeeeeeee", got.RecordID)
		assert.NotZero(t, got.At)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
}
