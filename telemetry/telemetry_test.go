package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestNewWithoutMeter(t *testing.T) {
	r, err := New(Options{})
	require.NoError(t, err)
	require.NotNil(t, r)

	// Every method is a no-op and must not panic.
	ctx := context.Background()
	r.RecordItemWrite(ctx, "deal-001", "created")
	r.RecordObservationWrite(ctx, "deal-001", true)
	r.RecordFolds(ctx, "deal-001", 3)
	r.RecordDuration(ctx, "item.add", 5*time.Millisecond)

	ctx2, end := r.StartSpan(ctx, "item.add", "deal-001")
	assert.Equal(t, ctx, ctx2)
	end(nil)
}

func TestNewWithMeter(t *testing.T) {
	meterProvider := noop.NewMeterProvider()
	r, err := New(Options{Meter: meterProvider.Meter("test")})
	require.NoError(t, err)

	ctx := context.Background()
	r.RecordItemWrite(ctx, "deal-001", "merged")
	r.RecordObservationWrite(ctx, "deal-001", false)
	r.RecordFolds(ctx, "deal-001", 1)
	r.RecordDuration(ctx, "merge", 120*time.Millisecond)
}

func TestStartSpan(t *testing.T) {
	tp := sdktrace.NewTracerProvider()
	defer tp.Shutdown(context.Background())

	r, err := New(Options{Tracer: tp.Tracer("test")})
	require.NoError(t, err)

	ctx, end := r.StartSpan(context.Background(), "item.add", "deal-001")
	assert.NotNil(t, ctx)
	end(nil)

	_, end = r.StartSpan(context.Background(), "merge", "deal-001")
	end(errors.New("source tenant mismatch"))
}

func TestNilRecorderIsSafe(t *testing.T) {
	var r *Recorder

	ctx := context.Background()
	r.RecordItemWrite(ctx, "deal-001", "created")
	r.RecordFolds(ctx, "deal-001", 2)

	_, end := r.StartSpan(ctx, "item.add", "deal-001")
	end(nil)
}
