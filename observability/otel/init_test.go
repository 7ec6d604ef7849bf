package otel

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("authorization=Bearer x, ,broken,tenant = esim")
	if len(headers) != 2 {
		t.Fatalf("unexpected headers %v", headers)
	}
	if headers["authorization"] != "Bearer x" || headers["tenant"] != "esim" {
		t.Fatalf("unexpected headers %v", headers)
	}
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "esimd"})
	if err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if _, err := Init(context.Background(), Config{}); err == nil {
		t.Fatalf("expected service name error")
	}
}

func TestRecordOperationExportsCounter(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	RecordOperation(context.Background(), "market", "buy", nil, 3*time.Millisecond)
	RecordOperation(context.Background(), "market", "buy", errors.New("rejected"), time.Millisecond)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("collect: %v", err)
	}
	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "esim.ledger.operations" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("unexpected data type %T", m.Data)
			}
			for _, dp := range sum.DataPoints {
				total += dp.Value
			}
		}
	}
	if total != 2 {
		t.Fatalf("expected 2 operations, got %d", total)
	}
}
