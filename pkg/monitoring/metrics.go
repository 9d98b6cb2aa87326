package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reservationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reservation_attempts_total",
			Help: "Reservation attempts by result",
		},
		[]string{"result"},
	)

	paymentCallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payment_callbacks_total",
			Help: "Payment provider callbacks by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)

	expiredOrdersReclaimed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "expired_orders_reclaimed_total",
			Help: "Orders reclaimed by the expiry sweeper",
		},
	)

	sweepDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "expiry_sweep_duration_seconds",
			Help:    "Duration of a single expiry sweep",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)
)

func IncReservationAttempt(result string) {
	reservationAttempts.WithLabelValues(result).Inc()
}

func IncPaymentCallback(provider, outcome string) {
	paymentCallbacks.WithLabelValues(provider, outcome).Inc()
}

func AddExpiredOrdersReclaimed(n int) {
	expiredOrdersReclaimed.Add(float64(n))
}

func ObserveSweepDuration(seconds float64) {
	sweepDuration.Observe(seconds)
}
