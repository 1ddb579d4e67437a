package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds every collector the provider, tracker and gateway update.
type Metrics struct {
	// HttpRequestDuration measures gateway request duration.
	HttpRequestDuration *prometheus.HistogramVec
	// HttpRequestTotal counts gateway requests.
	HttpRequestTotal *prometheus.CounterVec

	// ProbeDuration measures /status probe duration.
	ProbeDuration *prometheus.HistogramVec
	// ProbeErrorsTotal counts rejected probes by reason.
	ProbeErrorsTotal *prometheus.CounterVec
	// EndpointLatency is the latency measured by the last accepted probe.
	EndpointLatency *prometheus.GaugeVec
	// EndpointIsActive is 1 when an endpoint is in the current snapshot.
	EndpointIsActive *prometheus.GaugeVec
	// SnapshotSize is the number of endpoints in the current snapshot.
	SnapshotSize prometheus.Gauge
	// RefreshesTotal counts snapshot refreshes by trigger.
	RefreshesTotal *prometheus.CounterVec

	// RPCRequestsTotal counts dispatched calls by method and outcome.
	RPCRequestsTotal *prometheus.CounterVec
	// RPCRequestDuration measures dispatched calls, failover included.
	RPCRequestDuration *prometheus.HistogramVec
	// FailoversTotal counts transport failures that moved a call to the next endpoint.
	FailoversTotal *prometheus.CounterVec
	// RPCErrorsTotal counts classified RPC errors by kind.
	RPCErrorsTotal *prometheus.CounterVec
	// PollAttemptsTotal counts transaction lookups made while waiting for inclusion.
	PollAttemptsTotal prometheus.Counter

	registry prometheus.Gatherer
}

// NewMetrics registers the collectors with the default registry.
func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(nil)
}

// NewMetricsWithRegistry registers the collectors with a custom registry.
// Tests pass prometheus.NewRegistry() so repeated construction does not panic.
func NewMetricsWithRegistry(registry *prometheus.Registry) *Metrics {
	var reg prometheus.Registerer = prometheus.DefaultRegisterer
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if registry != nil {
		reg, gatherer = registry, registry
	}
	factory := promauto.With(reg)

	return &Metrics{
		HttpRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "near_rpc_http_request_duration_seconds",
			Help:    "Duration of gateway HTTP requests.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "status_code"}),
		HttpRequestTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "near_rpc_http_requests_total",
			Help: "Total number of gateway HTTP requests.",
		}, []string{"method", "status_code"}),

		ProbeDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "near_rpc_probe_duration_seconds",
			Help:    "Duration of endpoint status probes.",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"endpoint"}),
		ProbeErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "near_rpc_probe_errors_total",
			Help: "Total number of rejected endpoint probes.",
		}, []string{"endpoint", "reason"}),
		EndpointLatency: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "near_rpc_endpoint_latency_seconds",
			Help: "Latency measured by the last accepted probe.",
		}, []string{"endpoint"}),
		EndpointIsActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "near_rpc_endpoint_is_active",
			Help: "Whether an endpoint is in the current snapshot (1) or not (0).",
		}, []string{"endpoint"}),
		SnapshotSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "near_rpc_snapshot_size",
			Help: "Number of endpoints in the current ranked snapshot.",
		}),
		RefreshesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "near_rpc_snapshot_refreshes_total",
			Help: "Total number of snapshot refreshes.",
		}, []string{"trigger"}),

		RPCRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "near_rpc_requests_total",
			Help: "Total number of dispatched JSON-RPC calls.",
		}, []string{"method", "outcome"}),
		RPCRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "near_rpc_request_duration_seconds",
			Help:    "Duration of dispatched JSON-RPC calls including failover.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		FailoversTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "near_rpc_failovers_total",
			Help: "Total number of transport failures that moved a call to the next endpoint.",
		}, []string{"endpoint"}),
		RPCErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "near_rpc_errors_total",
			Help: "Total number of classified RPC errors.",
		}, []string{"kind"}),
		PollAttemptsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "near_rpc_poll_attempts_total",
			Help: "Total number of transaction lookups made while waiting for inclusion.",
		}),

		registry: gatherer,
	}
}

// MetricsHandler serves the registry the metrics were created with.
func (m *Metrics) MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	return mux
}
