// Package metrics exposes Prometheus collectors for Marketo calls and lead
// sync runs.
//
// Metrics exposed (all namespaced with "marketo_sync_"):
//
//   - soap_calls_total (counter): SOAP calls by operation and status
//     (success, fault, error).
//   - soap_call_duration_seconds (histogram): SOAP call latency by operation.
//   - runs_total (counter): sync runs by trigger and outcome.
//   - leads_synced_total (counter): leads pushed to Marketo by sync status.
//   - last_run_timestamp_seconds (gauge): completion time of the last run.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "marketo_sync"

// Collector records Marketo call and sync run metrics
type Collector struct {
	calls        *prometheus.CounterVec
	callDuration *prometheus.HistogramVec
	runs         *prometheus.CounterVec
	leads        *prometheus.CounterVec
	lastRun      prometheus.Gauge

	gatherer prometheus.Gatherer
}

// NewCollector creates and registers the collectors with a fresh registry
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()
	return NewCollectorWith(registry, registry)
}

// NewCollectorWith registers the collectors with the given registerer and
// serves them from gatherer
func NewCollectorWith(registerer prometheus.Registerer, gatherer prometheus.Gatherer) *Collector {
	factory := promauto.With(registerer)

	return &Collector{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "soap_calls_total",
			Help:      "Marketo SOAP calls by operation and status",
		}, []string{"operation", "status"}),
		callDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "soap_call_duration_seconds",
			Help:      "Marketo SOAP call latency in seconds, retries included",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"operation"}),
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Lead sync runs by trigger and outcome",
		}, []string{"trigger", "outcome"}),
		leads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "leads_synced_total",
			Help:      "Leads pushed to Marketo by sync status",
		}, []string{"status"}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last sync run finished",
		}),
		gatherer: gatherer,
	}
}

// ObserveCall implements marketo.Observer
func (c *Collector) ObserveCall(operation, status string, duration time.Duration) {
	c.calls.WithLabelValues(operation, status).Inc()
	c.callDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// ObserveRun records a finished sync run
func (c *Collector) ObserveRun(trigger string, created, updated, failed int, runErr error, finished time.Time) {
	outcome := "success"
	switch {
	case runErr != nil:
		outcome = "error"
	case failed > 0:
		outcome = "partial"
	}
	c.runs.WithLabelValues(trigger, outcome).Inc()
	c.leads.WithLabelValues("CREATED").Add(float64(created))
	c.leads.WithLabelValues("UPDATED").Add(float64(updated))
	c.leads.WithLabelValues("FAILED").Add(float64(failed))
	c.lastRun.Set(float64(finished.Unix()))
}

// Handler serves the collected metrics in the Prometheus exposition format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
