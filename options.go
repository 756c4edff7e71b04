package estate

import (
	"log/slog"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/diligence-ai/estate/queue"
	"github.com/diligence-ai/estate/registry"
)

// Option configures an Engagement.
type Option func(*engagementConfig)

// engagementConfig holds configuration collected from Options before the
// Engagement is constructed.
type engagementConfig struct {
	basePath       string
	logger         *slog.Logger
	tracer         trace.Tracer
	meter          metric.Meter
	queue          queue.Client
	registry       registry.Registry
	actor          string
	schemaOverride []byte
}

// WithBasePath sets the directory where snapshot files are written.
// Each engagement persists under <base>/<deal-id>/. Defaults to ".".
func WithBasePath(path string) Option {
	return func(c *engagementConfig) {
		c.basePath = path
	}
}

// WithLogger sets a custom logger for the engagement and its stores.
// If not provided, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(c *engagementConfig) {
		c.logger = logger
	}
}

// WithTracer sets an OpenTelemetry tracer for spans around store
// operations run through the engagement.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *engagementConfig) {
		c.tracer = tracer
	}
}

// WithMeter sets an OpenTelemetry meter for the engagement's metric
// instruments. A nil meter disables metrics.
func WithMeter(meter metric.Meter) Option {
	return func(c *engagementConfig) {
		c.meter = meter
	}
}

// WithQueue connects a review-queue client. Observations that need human
// review can then be pushed with EnqueueReviews, and store changes are
// published to the deal's change channel.
func WithQueue(client queue.Client) Option {
	return func(c *engagementConfig) {
		c.queue = client
	}
}

// WithRegistry connects a session registry. Open registers a session for
// this engagement under a lease; Close deregisters it.
func WithRegistry(reg registry.Registry) Option {
	return func(c *engagementConfig) {
		c.registry = reg
	}
}

// WithActor names the human or pipeline operating this engagement, used
// for the registry session and change-log attribution defaults.
func WithActor(actor string) Option {
	return func(c *engagementConfig) {
		c.actor = actor
	}
}

// WithSchemaOverrides merges a YAML schema document into the default
// identity schema table before any store is created. The document maps
// record types to their identity, required, and optional fields.
func WithSchemaOverrides(yamlDoc []byte) Option {
	return func(c *engagementConfig) {
		c.schemaOverride = yamlDoc
	}
}
