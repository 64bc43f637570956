package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce           sync.Once
	httpDurationHistogram  *prometheus.HistogramVec
	processorCallHistogram *prometheus.HistogramVec
	reconcileCounter       *prometheus.CounterVec
	initiationCounter      *prometheus.CounterVec
	rateLimitCounter       prometheus.Counter
)

// Init registers all Prometheus collectors.
func Init() {
	registerOnce.Do(func() {
		httpDurationHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"})

		processorCallHistogram = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bytepay_processor_call_duration_seconds",
			Help:    "Outbound Bytepay API call latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint", "result"})

		reconcileCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bytepay_reconcile_outcomes_total",
			Help: "Status reconciliation outcomes by kind and reporting channel",
		}, []string{"channel", "outcome"})

		initiationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bytepay_initiations_total",
			Help: "Payment initiation attempts by result",
		}, []string{"result"})

		rateLimitCounter = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bytepay_rate_limited_total",
			Help: "Payment initiations rejected by the sliding-window limiter",
		})

		prometheus.MustRegister(
			httpDurationHistogram,
			processorCallHistogram,
			reconcileCounter,
			initiationCounter,
			rateLimitCounter,
		)
	})
}

func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if httpDurationHistogram == nil {
		return
	}
	httpDurationHistogram.WithLabelValues(method, path, strconv.Itoa(status)).Observe(duration.Seconds())
}

func ObserveProcessorCall(endpoint, result string, duration time.Duration) {
	if processorCallHistogram == nil {
		return
	}
	processorCallHistogram.WithLabelValues(endpoint, result).Observe(duration.Seconds())
}

func IncrementReconcileOutcome(channel, outcome string) {
	if reconcileCounter == nil {
		return
	}
	reconcileCounter.WithLabelValues(channel, outcome).Inc()
}

func IncrementInitiation(result string) {
	if initiationCounter == nil {
		return
	}
	initiationCounter.WithLabelValues(result).Inc()
}

func IncrementRateLimited() {
	if rateLimitCounter == nil {
		return
	}
	rateLimitCounter.Inc()
}
