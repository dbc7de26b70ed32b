package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestShippingMetricsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewShippingMetrics(reg)

	m.IncCreated("bulk")
	m.IncCreated("bulk")
	m.IncFailed("Bulk ")
	m.IncCanceled()

	if got := testutil.ToFloat64(m.created.WithLabelValues("bulk")); got != 2 {
		t.Fatalf("created: got %v", got)
	}
	if got := testutil.ToFloat64(m.failed.WithLabelValues("bulk")); got != 1 {
		t.Fatalf("failed label should be normalized: got %v", got)
	}
	if got := testutil.ToFloat64(m.canceled); got != 1 {
		t.Fatalf("canceled: got %v", got)
	}
}

func TestNilRegistererIsSafe(t *testing.T) {
	m := NewShippingMetrics(nil)
	m.IncCreated("single")
	m.IncFailed("single")
	m.IncCanceled()
}
