package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "releasecal"

// SetupPrometheusExporter creates a Prometheus exporter backed meter
// provider and installs it globally.
func SetupPrometheusExporter() (*sdkmetric.MeterProvider, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	return provider, nil
}

// Shutdown gracefully shuts down the meter provider.
func Shutdown(ctx context.Context, provider *sdkmetric.MeterProvider) error {
	if provider == nil {
		return nil
	}
	return provider.Shutdown(ctx)
}

// Instruments records calendar fetch activity. A nil *Instruments is valid
// and records nothing.
type Instruments struct {
	tracer        trace.Tracer
	fetches       metric.Int64Counter
	fetchErrors   metric.Int64Counter
	releases      metric.Int64Counter
	fetchDuration metric.Float64Histogram
}

// NewInstruments creates instruments on the global meter and tracer providers.
func NewInstruments() (*Instruments, error) {
	meter := otel.Meter(instrumentationName)

	fetches, err := meter.Int64Counter(
		"releasecal.calendar.fetches",
		metric.WithDescription("Calendar fetches attempted, per project"),
		metric.WithUnit("{fetch}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch counter: %w", err)
	}

	fetchErrors, err := meter.Int64Counter(
		"releasecal.calendar.fetch_errors",
		metric.WithDescription("Calendar fetches that failed to open, parse or map"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create fetch error counter: %w", err)
	}

	releases, err := meter.Int64Counter(
		"releasecal.releases",
		metric.WithDescription("Releases produced from calendar events"),
		metric.WithUnit("{release}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create release counter: %w", err)
	}

	fetchDuration, err := meter.Float64Histogram(
		"releasecal.calendar.fetch.duration",
		metric.WithDescription("Time to open, parse and map one project calendar"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create duration histogram: %w", err)
	}

	return &Instruments{
		tracer:        otel.Tracer(instrumentationName),
		fetches:       fetches,
		fetchErrors:   fetchErrors,
		releases:      releases,
		fetchDuration: fetchDuration,
	}, nil
}

// StartFetch opens a span for one project fetch. The returned func must be
// called exactly once with the outcome.
func (i *Instruments) StartFetch(ctx context.Context, project string) (context.Context, func(releases int, seconds float64, err error)) {
	if i == nil {
		return ctx, func(int, float64, error) {}
	}

	attrs := metric.WithAttributes(attribute.String("project", project))
	ctx, span := i.tracer.Start(ctx, "calendar.fetch",
		trace.WithAttributes(attribute.String("project", project)),
	)
	i.fetches.Add(ctx, 1, attrs)

	return ctx, func(releases int, seconds float64, err error) {
		defer span.End()

		i.fetchDuration.Record(ctx, seconds, attrs)
		if err != nil {
			i.fetchErrors.Add(ctx, 1, attrs)
			span.RecordError(err)
			span.SetAttributes(attribute.Bool("error", true))
			return
		}
		i.releases.Add(ctx, int64(releases), attrs)
		span.SetAttributes(attribute.Int("release_count", releases))
	}
}
