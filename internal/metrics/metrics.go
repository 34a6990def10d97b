package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "aggiex"

// Metrics holds the service counters on a private registry. A nil *Metrics records nothing.
type Metrics struct {
	registry       *prometheus.Registry
	submissions    *prometheus.CounterVec
	emails         *prometheus.CounterVec
	backgroundJobs *prometheus.CounterVec
	adminLogins    *prometheus.CounterVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	metrics := &Metrics{
		registry: registry,
		submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "intake_submissions_total",
			Help:      "Intake requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		emails: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_total",
			Help:      "Transactional email attempts by template and outcome.",
		}, []string{"template", "outcome"}),
		backgroundJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "background_jobs_total",
			Help:      "Best-effort background jobs by name and outcome.",
		}, []string{"job", "outcome"}),
		adminLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_logins_total",
			Help:      "Admin login attempts by result.",
		}, []string{"result"}),
	}
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.submissions,
		metrics.emails,
		metrics.backgroundJobs,
		metrics.adminLogins,
	)
	return metrics
}

func (metrics *Metrics) RecordSubmission(endpoint string, outcome string) {
	if metrics == nil {
		return
	}
	metrics.submissions.WithLabelValues(endpoint, outcome).Inc()
}

func (metrics *Metrics) RecordEmail(templateName string, outcome string) {
	if metrics == nil {
		return
	}
	metrics.emails.WithLabelValues(templateName, outcome).Inc()
}

func (metrics *Metrics) RecordJob(jobName string, outcome string) {
	if metrics == nil {
		return
	}
	metrics.backgroundJobs.WithLabelValues(jobName, outcome).Inc()
}

func (metrics *Metrics) RecordAdminLogin(result string) {
	if metrics == nil {
		return
	}
	metrics.adminLogins.WithLabelValues(result).Inc()
}

// Handler serves the Prometheus exposition format.
func (metrics *Metrics) Handler() http.Handler {
	if metrics == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(metrics.registry, promhttp.HandlerOpts{})
}
