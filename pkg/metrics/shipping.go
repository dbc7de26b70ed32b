package metrics

import (
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// ShippingMetrics counts shipment operations per outcome.
type ShippingMetrics struct {
	created  *prometheus.CounterVec
	failed   *prometheus.CounterVec
	canceled prometheus.Counter
}

// NewShippingMetrics registers the shipping counters on the provided registerer.
func NewShippingMetrics(reg prometheus.Registerer) *ShippingMetrics {
	if reg == nil {
		return &ShippingMetrics{}
	}
	created := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipments_created_total",
		Help: "Shipments successfully created with the carrier.",
	}, []string{"flow"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "shipments_failed_total",
		Help: "Shipment creations that errored.",
	}, []string{"flow"})
	canceled := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "shipments_canceled_total",
		Help: "Shipments canceled during forced re-shipment.",
	})
	reg.MustRegister(created, failed, canceled)
	return &ShippingMetrics{
		created:  created,
		failed:   failed,
		canceled: canceled,
	}
}

// IncCreated increments the success counter for the named flow.
func (m *ShippingMetrics) IncCreated(flow string) {
	if m == nil || m.created == nil {
		return
	}
	m.created.WithLabelValues(normalizeLabel(flow)).Inc()
}

// IncFailed increments the failure counter for the named flow.
func (m *ShippingMetrics) IncFailed(flow string) {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.WithLabelValues(normalizeLabel(flow)).Inc()
}

// IncCanceled increments the forced-cancel counter.
func (m *ShippingMetrics) IncCanceled() {
	if m == nil || m.canceled == nil {
		return
	}
	m.canceled.Inc()
}

func normalizeLabel(value string) string {
	trimmed := strings.TrimSpace(strings.ToLower(value))
	if trimmed == "" {
		return "unknown"
	}
	return trimmed
}
