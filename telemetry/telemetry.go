package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Options configures telemetry for an engagement.
//
// Both fields are optional. A nil Tracer disables spans, a nil Meter
// disables metrics.
type Options struct {
	// Tracer creates spans around store operations.
	Tracer trace.Tracer

	// Meter creates the metric instruments.
	Meter metric.Meter
}

// Recorder holds the metric instruments for engagement store operations.
// Create it once with New and reuse it for all operations.
type Recorder struct {
	tracer trace.Tracer

	// itemsCounter counts canonical item writes by outcome
	itemsCounter metric.Int64Counter

	// observationsCounter counts observation writes by outcome
	observationsCounter metric.Int64Counter

	// foldsCounter counts duplicate items folded away
	foldsCounter metric.Int64Counter

	// durationHistogram records operation duration in milliseconds
	durationHistogram metric.Float64Histogram
}

// New creates a Recorder with all instruments initialized.
//
// With a nil Meter the returned Recorder records nothing; it is still safe
// to call every method on it.
func New(opts Options) (*Recorder, error) {
	r := &Recorder{tracer: opts.Tracer}
	if opts.Meter == nil {
		return r, nil
	}

	var err error

	r.itemsCounter, err = opts.Meter.Int64Counter(
		"estate.items",
		metric.WithDescription("Canonical item writes by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create items counter: %w", err)
	}

	r.observationsCounter, err = opts.Meter.Int64Counter(
		"estate.observations",
		metric.WithDescription("Observation writes by outcome"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create observations counter: %w", err)
	}

	r.foldsCounter, err = opts.Meter.Int64Counter(
		"estate.folds",
		metric.WithDescription("Duplicate items folded into a canonical record"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create folds counter: %w", err)
	}

	r.durationHistogram, err = opts.Meter.Float64Histogram(
		"estate.op.duration",
		metric.WithDescription("Store operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}

	return r, nil
}

// RecordItemWrite counts one canonical item write.
//
// Outcome is the store's verdict for the write: "created", "merged", or
// "restored".
func (r *Recorder) RecordItemWrite(ctx context.Context, tenant, outcome string) {
	if r == nil || r.itemsCounter == nil {
		return
	}
	r.itemsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("outcome", outcome),
	))
}

// RecordObservationWrite counts one observation write. Created is false
// when the write deduplicated against an existing observation.
func (r *Recorder) RecordObservationWrite(ctx context.Context, tenant string, created bool) {
	if r == nil || r.observationsCounter == nil {
		return
	}
	outcome := "deduplicated"
	if created {
		outcome = "created"
	}
	r.observationsCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tenant", tenant),
		attribute.String("outcome", outcome),
	))
}

// RecordFolds counts items folded away during a reconciliation pass.
func (r *Recorder) RecordFolds(ctx context.Context, tenant string, folded int) {
	if r == nil || r.foldsCounter == nil || folded <= 0 {
		return
	}
	r.foldsCounter.Add(ctx, int64(folded), metric.WithAttributes(
		attribute.String("tenant", tenant),
	))
}

// RecordDuration records how long a named store operation took.
func (r *Recorder) RecordDuration(ctx context.Context, op string, d time.Duration) {
	if r == nil || r.durationHistogram == nil {
		return
	}
	r.durationHistogram.Record(ctx, float64(d.Milliseconds()), metric.WithAttributes(
		attribute.String("op", op),
	))
}

// StartSpan opens a span for a store operation, tagged with the tenant.
//
// With no tracer configured the returned end function is a no-op and the
// context is returned unchanged.
func (r *Recorder) StartSpan(ctx context.Context, op, tenant string) (context.Context, func(err error)) {
	if r == nil || r.tracer == nil {
		return ctx, func(error) {}
	}

	ctx, span := r.tracer.Start(ctx, op)
	span.SetAttributes(attribute.String("tenant", tenant))

	return ctx, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}
}
