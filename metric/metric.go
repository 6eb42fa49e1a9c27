// Package metric tracks pipeline activity with Prometheus collectors.
// Metrics are optional: every record method is nil-safe, so one-shot runs
// skip the registry entirely and watch mode opts in with --metrics-addr.
package metric

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry owns the Prometheus registry and the pipeline metrics.
type Registry struct {
	prometheusRegistry *prometheus.Registry
	pass               *PassMetrics
}

// NewRegistry creates a registry with the pipeline metrics and Go runtime
// collectors registered.
func NewRegistry() *Registry {
	prometheusRegistry := prometheus.NewRegistry()

	registry := &Registry{
		prometheusRegistry: prometheusRegistry,
		pass:               newPassMetrics(),
	}

	prometheusRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry.pass.register(prometheusRegistry)

	return registry
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// Pass returns the pipeline metrics. A nil registry yields nil metrics,
// which every record method tolerates.
func (r *Registry) Pass() *PassMetrics {
	if r == nil {
		return nil
	}
	return r.pass
}

// PassMetrics counts what each query pass did.
type PassMetrics struct {
	passesTotal     prometheus.Counter
	passDuration    prometheus.Histogram
	recordsFetched  prometheus.Counter
	recordsFiltered prometheus.Counter
	ruleRuns        *prometheus.CounterVec
	apiRequests     *prometheus.CounterVec
	actions         *prometheus.CounterVec
}

func newPassMetrics() *PassMetrics {
	return &PassMetrics{
		passesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdh",
			Name:      "passes_total",
			Help:      "Completed query passes",
		}),
		passDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "pdh",
			Name:      "pass_duration_seconds",
			Help:      "Wall time of one query pass",
			Buckets:   prometheus.DefBuckets,
		}),
		recordsFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdh",
			Name:      "records_fetched_total",
			Help:      "Records returned by the remote API",
		}),
		recordsFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pdh",
			Name:      "records_filtered_total",
			Help:      "Records dropped by the filter chain",
		}),
		ruleRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdh",
			Name:      "rule_runs_total",
			Help:      "Rule script executions by outcome",
		}, []string{"script", "status"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdh",
			Name:      "api_requests_total",
			Help:      "Remote API requests by endpoint and status code",
		}, []string{"endpoint", "status"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pdh",
			Name:      "actions_total",
			Help:      "Bulk incident actions by kind",
		}, []string{"action"}),
	}
}

func (m *PassMetrics) register(reg *prometheus.Registry) {
	reg.MustRegister(
		m.passesTotal,
		m.passDuration,
		m.recordsFetched,
		m.recordsFiltered,
		m.ruleRuns,
		m.apiRequests,
		m.actions,
	)
}

// RecordPass counts one finished pass and its duration.
func (m *PassMetrics) RecordPass(duration time.Duration) {
	if m == nil {
		return
	}
	m.passesTotal.Inc()
	m.passDuration.Observe(duration.Seconds())
}

// RecordFetched counts records returned by the remote API.
func (m *PassMetrics) RecordFetched(count int) {
	if m == nil {
		return
	}
	m.recordsFetched.Add(float64(count))
}

// RecordFiltered counts records dropped between fetch and render.
func (m *PassMetrics) RecordFiltered(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.recordsFiltered.Add(float64(count))
}

// RecordRuleRun counts one rule script execution.
func (m *PassMetrics) RecordRuleRun(script string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.ruleRuns.WithLabelValues(script, status).Inc()
}

// RecordAPIRequest counts one remote API request.
func (m *PassMetrics) RecordAPIRequest(endpoint string, statusCode int) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(endpoint, strconv.Itoa(statusCode)).Inc()
}

// RecordAction counts records touched by a bulk action.
func (m *PassMetrics) RecordAction(action string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.actions.WithLabelValues(action).Add(float64(count))
}
