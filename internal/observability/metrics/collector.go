// Package metrics provides metrics collection and exposition for SafeAlign.
// It integrates the Prometheus SDK to expose the per-step training scalars
// (losses, rewards, costs, the Lagrange multiplier) plus step counters and
// durations over a standard /metrics endpoint.
package metrics

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ============================================================================
// Collector
// ============================================================================

// Collector manages Prometheus metrics collection for a training run
type Collector struct {
	registry  *prometheus.Registry
	namespace string

	// Per-step training scalars, one gauge per metric name
	stepGauges *prometheus.GaugeVec

	// Counters for discrete training events
	counters map[string]*prometheus.CounterVec

	// Step duration in seconds
	stepDuration prometheus.Histogram

	mu sync.RWMutex
}

// CollectorConfig defines metrics collector configuration
type CollectorConfig struct {
	// Namespace for all metrics
	Namespace string

	// Enable default Go runtime metrics
	EnableGoMetrics bool

	// Enable process metrics
	EnableProcessMetrics bool

	// Custom registry (optional)
	Registry *prometheus.Registry
}

// NewCollector creates a new metrics collector
func NewCollector(cfg CollectorConfig) *Collector {
	registry := cfg.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.EnableGoMetrics {
		registry.MustRegister(prometheus.NewGoCollector())
	}
	if cfg.EnableProcessMetrics {
		registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	}

	namespace := cfg.Namespace
	if namespace == "" {
		namespace = "safealign"
	}

	c := &Collector{
		registry:  registry,
		namespace: namespace,
		counters:  make(map[string]*prometheus.CounterVec),
	}

	c.stepGauges = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "train",
			Name:      "step_scalar",
			Help:      "Per-step training scalars keyed by metric name",
		},
		[]string{"metric", "run_id"},
	)
	registry.MustRegister(c.stepGauges)

	c.stepDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "train",
		Name:      "step_duration_seconds",
		Help:      "Wall-clock duration of one reinforcement learning step",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	registry.MustRegister(c.stepDuration)

	return c
}

// ============================================================================
// Recording
// ============================================================================

// RecordStep publishes every scalar of a per-step metrics record.
// Metric names like "train/actor_loss" are used verbatim as label values.
func (c *Collector) RecordStep(runID string, info map[string]float64) {
	for name, value := range info {
		c.stepGauges.WithLabelValues(name, runID).Set(value)
	}
}

// ObserveStepDuration records the wall-clock duration of one step in seconds
func (c *Collector) ObserveStepDuration(seconds float64) {
	c.stepDuration.Observe(seconds)
}

// IncrementCounter increments a named counter, registering it on first use
func (c *Collector) IncrementCounter(name string, labels map[string]string) {
	c.counterVec(name, labelKeys(labels)).With(labels).Inc()
}

// counterVec returns the counter vec for name, creating it if needed
func (c *Collector) counterVec(name string, keys []string) *prometheus.CounterVec {
	c.mu.RLock()
	cv, ok := c.counters[name]
	c.mu.RUnlock()
	if ok {
		return cv
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cv, ok = c.counters[name]; ok {
		return cv
	}

	cv = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: c.namespace,
			Name:      sanitizeName(name),
			Help:      "Counter for " + name,
		},
		keys,
	)
	c.registry.MustRegister(cv)
	c.counters[name] = cv
	return cv
}

// Handler returns the Prometheus exposition handler
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// sanitizeName converts slash-delimited metric names to Prometheus format
func sanitizeName(name string) string {
	return strings.NewReplacer("/", "_", "-", "_", ".", "_").Replace(name)
}

func labelKeys(labels map[string]string) []string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	return keys
}

// ============================================================================
// No-op Collector
// ============================================================================

// Noop returns a collector backed by a private registry, for tests
// and for runs with metrics disabled.
func Noop() *Collector {
	return NewCollector(CollectorConfig{})
}
