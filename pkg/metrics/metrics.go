// Package metrics exposes the RED (Rate, Errors, Duration) counters
// the scheduler and alert engine emit. Grounded on
// core/pkg/observability.Provider, trimmed to the metrics half only:
// no tracer, no OTLP exporter, since nothing in this pipeline needs
// distributed tracing - an in-process manual reader is enough for a
// single scheduled batch job.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Provider holds the RED instruments the scheduler records against:
// one processed source is one "request", one source's failure is one
// "error".
type Provider struct {
	meterProvider *sdkmetric.MeterProvider
	meter         metric.Meter

	sourcesCounter  metric.Int64Counter
	errorCounter    metric.Int64Counter
	changesCounter  metric.Int64Counter
	alertsCounter   metric.Int64Counter
	durationHist    metric.Float64Histogram
}

// New builds a Provider backed by an in-process manual reader. It takes
// no reader or exporter option, so it stays self-contained and tests
// never need a live OTLP collector.
func New() (*Provider, error) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	p := &Provider{
		meterProvider: mp,
		meter:         mp.Meter("policywatch"),
	}

	var err error
	p.sourcesCounter, err = p.meter.Int64Counter("policywatch.sources.processed",
		metric.WithDescription("Total number of sources processed"),
		metric.WithUnit("{source}"),
	)
	if err != nil {
		return nil, fmt.Errorf("init sources counter: %w", err)
	}

	p.errorCounter, err = p.meter.Int64Counter("policywatch.sources.errors",
		metric.WithDescription("Total number of source processing failures"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, fmt.Errorf("init error counter: %w", err)
	}

	p.changesCounter, err = p.meter.Int64Counter("policywatch.changes.detected",
		metric.WithDescription("Total number of policy changes detected"),
		metric.WithUnit("{change}"),
	)
	if err != nil {
		return nil, fmt.Errorf("init changes counter: %w", err)
	}

	p.alertsCounter, err = p.meter.Int64Counter("policywatch.alerts.sent",
		metric.WithDescription("Total number of alert emails sent"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, fmt.Errorf("init alerts counter: %w", err)
	}

	p.durationHist, err = p.meter.Float64Histogram("policywatch.source.duration",
		metric.WithDescription("Per-source pipeline duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120),
	)
	if err != nil {
		return nil, fmt.Errorf("init duration histogram: %w", err)
	}

	return p, nil
}

// Shutdown flushes and releases the underlying meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.meterProvider.Shutdown(ctx)
}

// RecordSource increments the processed-source counter, tagged with
// whether the pipeline run for that source succeeded.
func (p *Provider) RecordSource(ctx context.Context, sourceID int64, ok bool) {
	p.sourcesCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.Int64("source.id", sourceID),
		attribute.Bool("success", ok),
	))
	if !ok {
		p.errorCounter.Add(ctx, 1, metric.WithAttributes(attribute.Int64("source.id", sourceID)))
	}
}

// RecordChange increments the changes-detected counter for sourceID.
func (p *Provider) RecordChange(ctx context.Context, sourceID int64) {
	p.changesCounter.Add(ctx, 1, metric.WithAttributes(attribute.Int64("source.id", sourceID)))
}

// RecordAlerts adds n to the alerts-sent counter for sourceID.
func (p *Provider) RecordAlerts(ctx context.Context, sourceID int64, n int) {
	if n <= 0 {
		return
	}
	p.alertsCounter.Add(ctx, int64(n), metric.WithAttributes(attribute.Int64("source.id", sourceID)))
}

// RecordDuration records how long a single source's pipeline took.
func (p *Provider) RecordDuration(ctx context.Context, sourceID int64, d time.Duration) {
	p.durationHist.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.Int64("source.id", sourceID)))
}
