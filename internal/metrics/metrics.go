// Package metrics exposes Prometheus metrics for the booking flow.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	wizardTransition = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karibu",
			Name:      "wizard_transition_total",
			Help:      "Count of booking wizard screen transitions by target.",
		},
		[]string{"to"},
	)

	paymentInitiated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "karibu",
			Name:      "payment_initiated_total",
			Help:      "Count of STK push requests submitted.",
		},
	)

	paymentOutcome = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "karibu",
			Name:      "payment_outcome_total",
			Help:      "Count of terminal payment reconciliation outcomes.",
		},
		[]string{"outcome"},
	)

	pollAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "karibu",
			Name:      "payment_poll_attempts",
			Help:      "Poll attempts used before a reconciliation run ended.",
			Buckets:   []float64{1, 2, 5, 10, 20, 30},
		},
	)

	priceEntriesMerged = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "karibu",
			Name:      "price_entries_merged_total",
			Help:      "Count of daily price entries merged into session caches.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(wizardTransition, paymentInitiated, paymentOutcome, pollAttempts, priceEntriesMerged)
	})
}

func IncWizardTransition(to string) {
	wizardTransition.WithLabelValues(to).Inc()
}

func IncPaymentInitiated() {
	paymentInitiated.Inc()
}

func IncPaymentOutcome(outcome string) {
	paymentOutcome.WithLabelValues(outcome).Inc()
}

func ObservePollAttempts(attempts int) {
	pollAttempts.Observe(float64(attempts))
}

func AddPriceEntriesMerged(n int) {
	priceEntriesMerged.Add(float64(n))
}
