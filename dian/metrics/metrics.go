package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Operation labels.
const (
	OpSubmit = "submit"
	OpStatus = "status"
)

// Metrics holds Prometheus metrics of the fiscal pipeline. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	Attempts         *prometheus.CounterVec
	Duration         *prometheus.HistogramVec
	Transitions      *prometheus.CounterVec
	EventLogFailures prometheus.Counter
}

// New registers the pipeline metrics with reg, the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Attempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dian_transmission_attempts_total",
			Help: "Total number of HTTP attempts against DIAN web services",
		}, []string{"operation", "result"}),
		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dian_transmission_duration_seconds",
			Help:    "Wall clock time of a submission or status query including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"operation"}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dian_lifecycle_transitions_total",
			Help: "Total number of invoice lifecycle transitions by target state",
		}, []string{"state"}),
		EventLogFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dian_eventlog_append_failures_total",
			Help: "Total number of fiscal event appends that failed to persist",
		}),
	}
}

// IncAttempt counts one HTTP attempt; result is an outcome or a failure kind.
func (m *Metrics) IncAttempt(operation, result string) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(operation, result).Inc()
}

func (m *Metrics) ObserveDuration(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.Duration.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) IncTransition(state string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncEventLogFailure() {
	if m == nil {
		return
	}
	m.EventLogFailures.Inc()
}
