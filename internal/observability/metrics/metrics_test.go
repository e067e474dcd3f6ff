package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric, labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, labels map[string]string) bool {
	matched := 0
	for _, pair := range metric.GetLabel() {
		if want, ok := labels[pair.GetName()]; ok {
			if want != pair.GetValue() {
				return false
			}
			matched++
		}
	}
	return matched == len(labels)
}

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveTransition(2, 1)
	m.ObserveTransition(2, 1)
	m.ObserveTransition(1, -1)
	m.ObserveSubmission("booked")
	m.ObserveAPICall("create_booking", "ok", 0.25)
	m.ObserveEmptyAvailability("slots")

	if got := counterValue(t, reg, "clinic_booking_step_transitions_total", map[string]string{"to_step": "2", "direction": "forward"}); got != 2 {
		t.Fatalf("forward transitions = %v, want 2", got)
	}
	if got := counterValue(t, reg, "clinic_booking_step_transitions_total", map[string]string{"to_step": "1", "direction": "backward"}); got != 1 {
		t.Fatalf("backward transitions = %v, want 1", got)
	}
	if got := counterValue(t, reg, "clinic_booking_submissions_total", map[string]string{"outcome": "booked"}); got != 1 {
		t.Fatalf("booked submissions = %v, want 1", got)
	}
	if got := counterValue(t, reg, "clinic_booking_empty_availability_total", map[string]string{"kind": "slots"}); got != 1 {
		t.Fatalf("empty refresh = %v, want 1", got)
	}
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveTransition(3, 1)
	m.ObserveSubmission("failed")
	m.ObserveAPICall("dates", "error", 0.1)
	m.ObserveEmptyAvailability("dates")
	m.ObserveHTTPRequest("GET", "/health", 200, 0.001)
}

func TestBookingMetricsHTTPRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)

	m.ObserveHTTPRequest("PUT", "/booking/session/details", 422, 0.01)
	m.ObserveHTTPRequest("PUT", "/booking/session/details", 422, 0.02)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "clinic_http_request_duration_seconds" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchLabels(metric, map[string]string{"method": "PUT", "route": "/booking/session/details", "status": "422"}) {
				if got := metric.GetHistogram().GetSampleCount(); got != 2 {
					t.Fatalf("sample count = %d, want 2", got)
				}
				return
			}
		}
	}
	t.Fatalf("http request histogram not found")
}
