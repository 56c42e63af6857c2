package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Registry struct {
	ExecutionsTotal      *prometheus.CounterVec
	ExecutionDuration    *prometheus.HistogramVec
	DispatchedEvents     *prometheus.CounterVec
	DispatchMatches      prometheus.Counter
	AsyncRunErrors       prometheus.Counter
	ActionDuration       *prometheus.HistogramVec
	DelaysInProgress     prometheus.Gauge
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
}

func NewRegistry() *Registry {
	return &Registry{
		ExecutionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automationservice_executions_total",
				Help: "Total number of automation executions by terminal status",
			},
			[]string{"status"},
		),
		ExecutionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automationservice_execution_duration_seconds",
				Help:    "Duration of automation executions in seconds",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 10),
			},
			[]string{"status"},
		),
		DispatchedEvents: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automationservice_dispatched_events_total",
				Help: "Total number of events run through the dispatcher",
			},
			[]string{"kind"},
		),
		DispatchMatches: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "automationservice_dispatch_matches_total",
				Help: "Total number of automation runs launched by the dispatcher",
			},
		),
		AsyncRunErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "automationservice_async_run_errors_total",
				Help: "Total number of dispatched runs that ended in error",
			},
		),
		ActionDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automationservice_action_duration_seconds",
				Help:    "Duration of action handler invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service"},
		),
		DelaysInProgress: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "automationservice_delays_in_progress",
				Help: "Number of runs currently suspended at a delay node",
			},
		),
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "automationservice_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "automationservice_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
	}
}
