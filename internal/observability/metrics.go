package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the pipeline's Prometheus collectors.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	jobsSubmitted   prometheus.Counter
	jobsFinished    *prometheus.CounterVec
	jobsRetried     *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	leaseExpired    prometheus.Counter
	conflicts       prometheus.Counter
	queueDepth      *prometheus.GaugeVec
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	compileDuration *prometheus.HistogramVec
}

// NewMetrics registers collectors on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		jobsSubmitted: f.NewCounter(prometheus.CounterOpts{
			Name: "resume_jobs_submitted_total",
			Help: "The total number of submitted jobs",
		}),
		jobsFinished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resume_jobs_finished_total",
			Help: "Jobs that reached a terminal state",
		}, []string{"status", "kind"}),
		jobsRetried: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resume_jobs_retried_total",
			Help: "Jobs scheduled for another attempt",
		}, []string{"kind"}),
		jobDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "resume_job_run_seconds",
			Help:    "Duration of a single job execution attempt.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
		leaseExpired: f.NewCounter(prometheus.CounterOpts{
			Name: "resume_job_leases_expired_total",
			Help: "Leases reclaimed by the janitor",
		}),
		conflicts: f.NewCounter(prometheus.CounterOpts{
			Name: "resume_artifact_conflicts_total",
			Help: "Artifact version conflicts; any non-zero value indicates a lease exclusivity bug",
		}),
		queueDepth: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "resume_jobs",
			Help: "Jobs by status",
		}, []string{"status"}),
		providerCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "resume_provider_calls_total",
			Help: "Generation provider calls by outcome",
		}, []string{"provider", "outcome"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resume_provider_call_seconds",
			Help:    "Latency of generation provider calls.",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 10),
		}, []string{"provider"}),
		compileDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "resume_compile_seconds",
			Help:    "Duration of LaTeX compilation.",
			Buckets: prometheus.LinearBuckets(0.5, 1, 10),
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// JobSubmitted counts an accepted submission
func (m *Metrics) JobSubmitted() {
	if m == nil {
		return
	}
	m.jobsSubmitted.Inc()
}

// JobFinished counts a terminal transition
func (m *Metrics) JobFinished(status, kind string) {
	if m == nil {
		return
	}
	m.jobsFinished.WithLabelValues(status, kind).Inc()
}

// JobRetried counts a transition to RETRYING
func (m *Metrics) JobRetried(kind string) {
	if m == nil {
		return
	}
	m.jobsRetried.WithLabelValues(kind).Inc()
}

// ObserveRun records the duration of one execution attempt
func (m *Metrics) ObserveRun(d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.Observe(d.Seconds())
}

// LeasesExpired counts janitor reclaims
func (m *Metrics) LeasesExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.leaseExpired.Add(float64(n))
}

// Conflict counts an artifact version conflict
func (m *Metrics) Conflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}

// SetQueueDepth publishes job counts by status
func (m *Metrics) SetQueueDepth(counts map[string]int) {
	if m == nil {
		return
	}
	for status, n := range counts {
		m.queueDepth.WithLabelValues(status).Set(float64(n))
	}
}

// ObserveProviderCall records one generation provider attempt
func (m *Metrics) ObserveProviderCall(provider, outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.providerCalls.WithLabelValues(provider, outcome).Inc()
	m.providerLatency.WithLabelValues(provider).Observe(latency.Seconds())
}

// ObserveCompile records one compiler run; result is "ok" or an error kind
func (m *Metrics) ObserveCompile(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.compileDuration.WithLabelValues(result).Observe(d.Seconds())
}
