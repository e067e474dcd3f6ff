package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// BookingMetrics exposes counters/histograms for the booking wizard.
type BookingMetrics struct {
	stepTransitions   *prometheus.CounterVec
	submissions       *prometheus.CounterVec
	apiLatency        *prometheus.HistogramVec
	emptyAvailability *prometheus.CounterVec
	httpRequests      *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		stepTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "step_transitions_total",
			Help:      "Wizard step transitions by target step and direction",
		}, []string{"to_step", "direction"}),
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking submission attempts by outcome",
		}, []string{"outcome"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "api_request_duration_seconds",
			Help:      "Latency of remote booking API calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		emptyAvailability: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "empty_availability_total",
			Help:      "Availability queries that returned nothing selectable",
		}, []string{"kind"}),
		httpRequests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency of inbound HTTP requests by route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.stepTransitions, m.submissions, m.apiLatency, m.emptyAvailability, m.httpRequests)
	return m
}

func (m *BookingMetrics) ObserveTransition(toStep int, direction int) {
	if m == nil {
		return
	}
	label := "none"
	switch {
	case direction > 0:
		label = "forward"
	case direction < 0:
		label = "backward"
	}
	m.stepTransitions.WithLabelValues(strconv.Itoa(toStep), label).Inc()
}

func (m *BookingMetrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissions.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveAPICall(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.apiLatency.WithLabelValues(operation, status).Observe(seconds)
}

// ObserveEmptyAvailability counts "dates" or "slots" queries with no results.
func (m *BookingMetrics) ObserveEmptyAvailability(kind string) {
	if m == nil {
		return
	}
	m.emptyAvailability.WithLabelValues(kind).Inc()
}

func (m *BookingMetrics) ObserveHTTPRequest(method, route string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Observe(seconds)
}
