// Package metrics exposes Prometheus metrics for the editor and debug
// sessions.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AaronLay10/FlowEngine/internal/execution"
	"github.com/AaronLay10/FlowEngine/internal/version"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "flowengine"

// Collector owns a private registry so several collectors can coexist in
// one process (tests, multiple servers).
type Collector struct {
	registry *prometheus.Registry

	nodeExecutions    *prometheus.CounterVec
	nodeDuration      *prometheus.HistogramVec
	statusTransitions *prometheus.CounterVec
	layouts           prometheus.Counter
	layoutDuration    prometheus.Histogram
	layoutNodes       prometheus.Histogram
	historyOps        *prometheus.CounterVec
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	dependencyUp      *prometheus.GaugeVec
	buildInfo         *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector creates a collector. A nil logger is allowed.
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	c := &Collector{
		registry: reg,
		logger:   logger.With(zap.String("component", "metrics")),
	}

	c.nodeExecutions = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "node_executions_total",
			Help:      "Total number of node executions",
		},
		[]string{"type", "status"},
	)

	c.nodeDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "node_execution_duration_seconds",
			Help:      "Node execution duration in seconds",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
		},
		[]string{"type"},
	)

	c.statusTransitions = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "execution_status_total",
			Help:      "Number of execution state updates per status",
		},
		[]string{"status"},
	)

	c.layouts = f.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "layouts_total",
		Help:      "Total number of automatic layouts",
	})

	c.layoutDuration = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "layout_duration_seconds",
		Help:      "Automatic layout duration in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	c.layoutNodes = f.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "layout_nodes",
		Help:      "Number of nodes per automatic layout",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})

	c.historyOps = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_operations_total",
			Help:      "History operations by kind (commit, undo, redo, reset)",
		},
		[]string{"op"},
	)

	c.httpRequests = f.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.dependencyUp = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dependency_up",
			Help:      "Whether a backing dependency is connected (1) or not (0)",
		},
		[]string{"dependency"},
	)

	c.buildInfo = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit"},
	)
	c.buildInfo.WithLabelValues(version.Version, version.Commit).Set(1)

	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// GaugeFunc registers a gauge whose value is read at scrape time.
func (c *Collector) GaugeFunc(namespace, name, help string, fn func() float64) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	g := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn)
	if err := c.registry.Register(g); err != nil {
		c.logger.Warn("gauge not registered", zap.String("name", name), zap.Error(err))
	}
}

// ObserveNode records one node execution.
func (c *Collector) ObserveNode(nodeType string, d time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	c.nodeExecutions.WithLabelValues(nodeType, status).Inc()
	c.nodeDuration.WithLabelValues(nodeType).Observe(d.Seconds())
}

// ObserveStatus records an execution state update.
func (c *Collector) ObserveStatus(s execution.Status) {
	c.statusTransitions.WithLabelValues(string(s)).Inc()
}

// RecordLayout records one automatic layout run.
func (c *Collector) RecordLayout(nodes int, d time.Duration) {
	c.layouts.Inc()
	c.layoutDuration.Observe(d.Seconds())
	c.layoutNodes.Observe(float64(nodes))
}

// RecordHistory records a history operation.
func (c *Collector) RecordHistory(op string) {
	c.historyOps.WithLabelValues(op).Inc()
}

// RecordHTTPRequest records one served request.
func (c *Collector) RecordHTTPRequest(method, path string, status int, d time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(d.Seconds())
}

// SetDependencyUp marks a dependency (postgres, redis, mqtt) up or down.
func (c *Collector) SetDependencyUp(name string, up bool) {
	v := 0.0
	if up {
		v = 1
	}
	c.dependencyUp.WithLabelValues(name).Set(v)
}

var _ execution.Observer = (*Collector)(nil)
