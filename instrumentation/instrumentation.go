// Package instrumentation provides OpenTelemetry metrics and tracing for
// the core. When disabled it wires no-op providers, so instrumented code
// paths carry zero overhead and callers never need nil checks.
package instrumentation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// scopePrefix namespaces meter and tracer scopes.
const scopePrefix = "github.com/keystonehq/authcore/"

// Config holds instrumentation configuration.
type Config struct {
	// ServiceName identifies the service in resource attributes.
	ServiceName string

	// ServiceVersion is the version reported in resource attributes.
	ServiceVersion string

	// Enabled controls whether instrumentation is active. When false,
	// no-op providers are used.
	Enabled bool

	// MeterProvider overrides the default provider, e.g. to plug in a
	// Prometheus or OTLP exporter. Ignored when Enabled is false.
	MeterProvider metric.MeterProvider

	// TracerProvider overrides the default provider.
	TracerProvider trace.TracerProvider

	// Resource allows custom resource attributes. If nil, a default
	// resource is built from the service name and version.
	Resource *resource.Resource
}

// Instrumentation bundles the meter and tracer providers plus the
// pre-registered metric instruments.
type Instrumentation struct {
	resource       *resource.Resource
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
	metrics        *Metrics
}

// New creates an Instrumentation from config.
func New(config Config) (*Instrumentation, error) {
	if config.ServiceName == "" {
		config.ServiceName = "authcore"
	}
	if config.ServiceVersion == "" {
		config.ServiceVersion = "unknown"
	}

	res := config.Resource
	if res == nil {
		var err error
		res, err = resource.New(
			context.Background(),
			resource.WithAttributes(
				semconv.ServiceName(config.ServiceName),
				semconv.ServiceVersion(config.ServiceVersion),
			),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create resource: %w", err)
		}
	}

	inst := &Instrumentation{
		resource:       res,
		meterProvider:  noop.NewMeterProvider(),
		tracerProvider: tracenoop.NewTracerProvider(),
	}
	if config.Enabled {
		if config.MeterProvider != nil {
			inst.meterProvider = config.MeterProvider
		}
		if config.TracerProvider != nil {
			inst.tracerProvider = config.TracerProvider
		}
	}

	var err error
	inst.metrics, err = newMetrics(inst)
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics: %w", err)
	}
	return inst, nil
}

// Noop returns an instrumentation instance wired to no-op providers.
func Noop() *Instrumentation {
	inst, err := New(Config{Enabled: false})
	if err != nil {
		// newMetrics cannot fail against the noop meter provider.
		panic(err)
	}
	return inst
}

// Meter returns a named meter for the given scope (e.g. "auth", "ratelimit").
func (i *Instrumentation) Meter(scope string) metric.Meter {
	return i.meterProvider.Meter(scopePrefix + scope)
}

// Tracer returns a named tracer for the given scope.
func (i *Instrumentation) Tracer(scope string) trace.Tracer {
	return i.tracerProvider.Tracer(scopePrefix + scope)
}

// Metrics returns the metric instruments.
func (i *Instrumentation) Metrics() *Metrics {
	return i.metrics
}
