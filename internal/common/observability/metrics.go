package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/trace"
)

// Observability owns the otel meter provider (exported through the
// Prometheus registry) and the tracer used by domain services.
type Observability struct {
	meterProvider *metric.MeterProvider
	tracer        trace.Tracer
	runCounter    otelmetric.Int64Counter
	runDuration   otelmetric.Float64Histogram
}

func New(serviceName string) (*Observability, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, err
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)
	meter := provider.Meter(serviceName)

	runCounter, err := meter.Int64Counter(
		"reminder.runs",
		otelmetric.WithDescription("Reminder evaluation runs"),
	)
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram(
		"reminder.run.duration",
		otelmetric.WithDescription("Reminder evaluation run duration"),
		otelmetric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	return &Observability{
		meterProvider: provider,
		tracer:        otel.Tracer(serviceName),
		runCounter:    runCounter,
		runDuration:   runDuration,
	}, nil
}

// Tracer returns the service tracer, or the global one on a nil receiver.
func (o *Observability) Tracer() trace.Tracer {
	if o == nil || o.tracer == nil {
		return otel.Tracer("adr-workers")
	}
	return o.tracer
}

func (o *Observability) RecordRun(ctx context.Context, kind string, duration time.Duration, dryRun bool) {
	if o == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("kind", kind),
		attribute.Bool("dry_run", dryRun),
	)
	o.runCounter.Add(ctx, 1, attrs)
	o.runDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return o.meterProvider.Shutdown(ctx)
}
