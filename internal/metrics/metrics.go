// Package metrics exposes Prometheus counters for the processing pipeline
// and the live event stream.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns the service registry and all instruments.
type Metrics struct {
	registry *prometheus.Registry

	stageAttempts   *prometheus.CounterVec
	stageFailures   *prometheus.CounterVec
	jobsCompleted   prometheus.Counter
	jobsFailed      prometheus.Counter
	eventsDelivered *prometheus.CounterVec
	eventsDropped   *prometheus.CounterVec
	connections     prometheus.Gauge
}

// New builds a registry preloaded with Go runtime collectors and the
// service instruments.
func New(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)
	labels := prometheus.Labels{"service": serviceName}

	return &Metrics{
		registry: registry,
		stageAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_stage_attempts_total",
			Help:        "Stage executions started, by stage.",
			ConstLabels: labels,
		}, []string{"stage"}),
		stageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_stage_failures_total",
			Help:        "Stage executions that returned an error, by stage.",
			ConstLabels: labels,
		}, []string{"stage"}),
		jobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name:        "pipeline_jobs_completed_total",
			Help:        "Jobs that reached the done stage.",
			ConstLabels: labels,
		}),
		jobsFailed: factory.NewCounter(prometheus.CounterOpts{
			Name:        "pipeline_jobs_failed_total",
			Help:        "Jobs that exhausted their attempts.",
			ConstLabels: labels,
		}),
		eventsDelivered: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "stream_events_delivered_total",
			Help:        "Events enqueued to a live connection, by type.",
			ConstLabels: labels,
		}, []string{"type"}),
		eventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name:        "stream_events_dropped_total",
			Help:        "Events dropped for slow or dead connections, by type.",
			ConstLabels: labels,
		}, []string{"type"}),
		connections: factory.NewGauge(prometheus.GaugeOpts{
			Name:        "stream_connections_open",
			Help:        "Currently registered live connections.",
			ConstLabels: labels,
		}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}

// StageAttempt records one stage execution start.
func (m *Metrics) StageAttempt(stage string) { m.stageAttempts.WithLabelValues(stage).Inc() }

// StageFailure records one failed stage execution.
func (m *Metrics) StageFailure(stage string) { m.stageFailures.WithLabelValues(stage).Inc() }

// JobCompleted records one finished job.
func (m *Metrics) JobCompleted() { m.jobsCompleted.Inc() }

// JobFailed records one permanently failed job.
func (m *Metrics) JobFailed() { m.jobsFailed.Inc() }

// ConnectionOpened records a new live connection.
func (m *Metrics) ConnectionOpened() { m.connections.Inc() }

// ConnectionClosed records a removed live connection.
func (m *Metrics) ConnectionClosed() { m.connections.Dec() }

// EventDelivered records an event enqueued to one connection.
func (m *Metrics) EventDelivered(eventType string) {
	m.eventsDelivered.WithLabelValues(eventType).Inc()
}

// EventDropped records an event lost to a slow or dead connection.
func (m *Metrics) EventDropped(eventType string) {
	m.eventsDropped.WithLabelValues(eventType).Inc()
}
