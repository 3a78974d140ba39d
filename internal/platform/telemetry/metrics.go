// Package telemetry wires the Job Queue observability required by spec
// §4.6 (queue depth, oldest-job age, in-flight worker count,
// delivered/succeeded/failed/retried counts per function name) into
// Prometheus collectors, grounded on client_golang usage in
// bharat-parihar-ARC-Hawk and securestor-securestor.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// QueueMetrics groups the gauges/counters one named queue's consumer pool
// reports against.
type QueueMetrics struct {
	Depth        *prometheus.GaugeVec
	OldestJobAge *prometheus.GaugeVec
	InFlight     *prometheus.GaugeVec
	Delivered    *prometheus.CounterVec
	Succeeded    *prometheus.CounterVec
	Failed       *prometheus.CounterVec
	Retried      *prometheus.CounterVec
}

// NewQueueMetrics registers the queue metric family against reg and returns
// a handle for consumers to update, labeled by queue name and function.
func NewQueueMetrics(reg prometheus.Registerer) *QueueMetrics {
	factory := promauto.With(reg)
	return &QueueMetrics{
		Depth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "easm",
			Subsystem: "queue",
			Name:      "depth",
			Help:      "Number of jobs currently queued, by queue name.",
		}, []string{"queue"}),
		OldestJobAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "easm",
			Subsystem: "queue",
			Name:      "oldest_job_age_seconds",
			Help:      "Age in seconds of the oldest undelivered job, by queue name.",
		}, []string{"queue"}),
		InFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "easm",
			Subsystem: "queue",
			Name:      "in_flight_workers",
			Help:      "Number of workers currently processing a job, by queue name.",
		}, []string{"queue"}),
		Delivered: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easm",
			Subsystem: "queue",
			Name:      "jobs_delivered_total",
			Help:      "Jobs delivered to a consumer, by queue and function name.",
		}, []string{"queue", "function"}),
		Succeeded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easm",
			Subsystem: "queue",
			Name:      "jobs_succeeded_total",
			Help:      "Jobs acknowledged as successfully processed, by queue and function name.",
		}, []string{"queue", "function"}),
		Failed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easm",
			Subsystem: "queue",
			Name:      "jobs_failed_total",
			Help:      "Jobs that terminally failed processing, by queue and function name.",
		}, []string{"queue", "function"}),
		Retried: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "easm",
			Subsystem: "queue",
			Name:      "jobs_retried_total",
			Help:      "Enqueue attempts retried after a transient transport failure, by queue and function name.",
		}, []string{"queue", "function"}),
	}
}

// Serve starts a blocking HTTP server exposing /metrics on addr. Callers
// run it in its own goroutine.
func Serve(addr string, reg *prometheus.Registry) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return http.ListenAndServe(addr, mux)
}
