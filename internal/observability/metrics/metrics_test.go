package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("source", "db"),
		attribute.String("company_id", "456"),
		attribute.String("outcome", "hit"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "source" || attrs[1].Key != "outcome" {
		t.Fatalf("unexpected attributes retained: %v", attrs)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordForecastRead(context.Background(), "hit")
	m.RecordDatasetRows(context.Background(), "csv", 10)

	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordRefreshTriggered(context.Background(), "miss")
	m.RecordModelCommitted(context.Background(), "ACTIVE")
}
