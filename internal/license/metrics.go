package license

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MeterName identifies this package's instruments.
const MeterName = "pvcli-license"

// Metrics holds the codec and checker OpenTelemetry instruments.
type Metrics struct {
	ExportTotal    metric.Int64Counter
	ExportFailures metric.Int64Counter
	ExportDuration metric.Float64Histogram

	ImportTotal    metric.Int64Counter
	ImportFailures metric.Int64Counter
	ImportDuration metric.Float64Histogram

	CheckTotal metric.Int64Counter

	CacheHits   metric.Int64Counter
	CacheMisses metric.Int64Counter
}

// NewMetrics creates the license instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	if m.ExportTotal, err = meter.Int64Counter("license_export_total",
		metric.WithDescription("License export attempts")); err != nil {
		return nil, fmt.Errorf("create license_export_total: %w", err)
	}
	if m.ExportFailures, err = meter.Int64Counter("license_export_failures_total",
		metric.WithDescription("License exports that failed validation or encryption")); err != nil {
		return nil, fmt.Errorf("create license_export_failures_total: %w", err)
	}
	if m.ExportDuration, err = meter.Float64Histogram("license_export_duration_seconds",
		metric.WithDescription("License export duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create license_export_duration_seconds: %w", err)
	}

	if m.ImportTotal, err = meter.Int64Counter("license_import_total",
		metric.WithDescription("License import attempts")); err != nil {
		return nil, fmt.Errorf("create license_import_total: %w", err)
	}
	if m.ImportFailures, err = meter.Int64Counter("license_import_failures_total",
		metric.WithDescription("License imports that failed, by pipeline stage")); err != nil {
		return nil, fmt.Errorf("create license_import_failures_total: %w", err)
	}
	if m.ImportDuration, err = meter.Float64Histogram("license_import_duration_seconds",
		metric.WithDescription("License import duration"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create license_import_duration_seconds: %w", err)
	}

	if m.CheckTotal, err = meter.Int64Counter("license_check_total",
		metric.WithDescription("License checks, by outcome")); err != nil {
		return nil, fmt.Errorf("create license_check_total: %w", err)
	}

	if m.CacheHits, err = meter.Int64Counter("license_cache_hits_total",
		metric.WithDescription("Verification cache hits")); err != nil {
		return nil, fmt.Errorf("create license_cache_hits_total: %w", err)
	}
	if m.CacheMisses, err = meter.Int64Counter("license_cache_misses_total",
		metric.WithDescription("Verification cache misses")); err != nil {
		return nil, fmt.Errorf("create license_cache_misses_total: %w", err)
	}

	return m, nil
}

func (m *Metrics) recordExport(ctx context.Context, d time.Duration, err error) {
	m.ExportTotal.Add(ctx, 1)
	m.ExportDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.ExportFailures.Add(ctx, 1)
	}
}

func (m *Metrics) recordImport(ctx context.Context, d time.Duration, err error) {
	m.ImportTotal.Add(ctx, 1)
	m.ImportDuration.Record(ctx, d.Seconds())
	if err != nil {
		m.ImportFailures.Add(ctx, 1,
			metric.WithAttributes(attribute.String("stage", importStage(err))))
	}
}

func (m *Metrics) recordCheck(ctx context.Context, outcome Outcome) {
	m.CheckTotal.Add(ctx, 1,
		metric.WithAttributes(attribute.String("outcome", outcome.String())))
}
