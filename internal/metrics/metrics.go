package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingsCreated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autoseat",
			Name:      "bookings_created_total",
			Help:      "Bookings successfully created on the backend.",
		},
	)

	paymentsInitiated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autoseat",
			Name:      "payments_initiated_total",
			Help:      "STK-push charges accepted by the gateway.",
		},
	)

	paymentOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autoseat",
			Name:      "payment_outcomes_total",
			Help:      "Terminal payment states by outcome.",
		},
		[]string{"outcome"}, // succeeded, failed, timed_out
	)

	pollCycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "autoseat",
			Name:      "poll_cycles_total",
			Help:      "Payment status poll cycles issued.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "autoseat",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(bookingsCreated, paymentsInitiated, paymentOutcomes, pollCycles, httpRequests)
	})
}

// IncBookingCreated increments the created-bookings counter.
func IncBookingCreated() {
	bookingsCreated.Inc()
}

// IncPaymentInitiated increments the initiated-payments counter.
func IncPaymentInitiated() {
	paymentsInitiated.Inc()
}

// IncPaymentOutcome increments the outcome counter for a terminal state label.
func IncPaymentOutcome(outcome string) {
	paymentOutcomes.WithLabelValues(outcome).Inc()
}

// IncPollCycle increments the poll-cycle counter.
func IncPollCycle() {
	pollCycles.Inc()
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}
