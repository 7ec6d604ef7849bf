package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	ledgerOnce    sync.Once
	ledgerOps     metric.Int64Counter
	ledgerLatency metric.Float64Histogram
)

// Meter returns the node meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(InstrumentationName)
}

// RecordOperation exports one ledger operation through the OTLP metric
// pipeline. It is a no-op until Init installs a meter provider.
func RecordOperation(ctx context.Context, module, op string, err error, elapsed time.Duration) {
	ledgerOnce.Do(func() {
		meter := Meter()
		ledgerOps, _ = meter.Int64Counter("esim.ledger.operations",
			metric.WithDescription("Ledger operations by module, operation and outcome."))
		ledgerLatency, _ = meter.Float64Histogram("esim.ledger.operation.duration",
			metric.WithDescription("Ledger operation latency including commit."),
			metric.WithUnit("s"))
	})
	outcome := "committed"
	if err != nil {
		outcome = "rejected"
	}
	attrs := metric.WithAttributes(
		attribute.String("module", module),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	if ledgerOps != nil {
		ledgerOps.Add(ctx, 1, attrs)
	}
	if ledgerLatency != nil {
		ledgerLatency.Record(ctx, elapsed.Seconds(), attrs)
	}
}
