package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classes_requests_total",
			Help: "Total number of requests",
		},
		[]string{"route", "code", "method"},
	)

	CartOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classes_cart_operations_total",
			Help: "Cart operations by outcome",
		},
		[]string{"op", "outcome"},
	)

	FeedbackSubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classes_feedback_submissions_total",
			Help: "Feedback form submissions by validation result",
		},
		[]string{"result"},
	)

	DBTxDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "classes_db_tx_seconds",
			Help:    "Duration of DB transactions",
			Buckets: prometheus.DefBuckets,
		},
	)

	OutboxLag = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "classes_outbox_lag_seconds",
			Help: "Age of the oldest outbox record published in the last batch",
		},
	)

	RabbitPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "classes_rabbit_publish_failures_total",
			Help: "Total failed rabbit publishes",
		},
	)

	RateLimitExceeded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "classes_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)

func InitMetrics(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestsTotal,
		CartOperations,
		FeedbackSubmissions,
		DBTxDuration,
		OutboxLag,
		RabbitPublishFailures,
		RateLimitExceeded,
	)
}
