package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "reqproxy"

// Outcome label values for the completed counter.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeAborted = "aborted"
)

// Registry holds every reqproxy collector. It is separate from the
// prometheus default registry so embedding programs opt in explicitly.
var Registry = prometheus.NewRegistry()

var (
	issuedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_issued_total",
			Help:      "Count of requests handed to the transport.",
		},
		[]string{"mode"},
	)

	completedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_completed_total",
			Help:      "Count of requests whose completion hook fired, by outcome.",
		},
		[]string{"mode", "outcome"},
	)

	abortedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_aborted_total",
			Help:      "Count of in-flight requests cancelled by AbortAll, either for a newer submission to the same queue or explicitly.",
		},
		[]string{"queue"},
	)

	droppedCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_dropped_total",
			Help:      "Count of requests never sent because they had no URL.",
		},
		[]string{"mode"},
	)

	durationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Time from issue to completion.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"mode"},
	)
)

var registerMetrics sync.Once

// Register all metrics.
func Register() {
	registerMetrics.Do(func() {
		Registry.MustRegister(issuedCounter)
		Registry.MustRegister(completedCounter)
		Registry.MustRegister(abortedCounter)
		Registry.MustRegister(droppedCounter)
		Registry.MustRegister(durationHistogram)
	})
}

// RecordIssued counts a request handed to the transport.
func RecordIssued(mode string) {
	issuedCounter.WithLabelValues(mode).Inc()
}

// RecordCompleted counts a finished request and observes its duration.
func RecordCompleted(mode, outcome string, d time.Duration) {
	completedCounter.WithLabelValues(mode, outcome).Inc()
	durationHistogram.WithLabelValues(mode).Observe(d.Seconds())
}

// RecordAborted counts a request cancelled on queue.
func RecordAborted(queue string) {
	abortedCounter.WithLabelValues(queue).Inc()
}

// RecordDropped counts a request rejected for lacking a URL.
func RecordDropped(mode string) {
	droppedCounter.WithLabelValues(mode).Inc()
}
