package installer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsConfig configures installer metrics.
type MetricsConfig struct {
	// Namespace defaults to "wrtools".
	Namespace string
	// Buckets are the install duration histogram buckets.
	Buckets []float64
	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
}

// MetricsOption configures installer metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithRegistry sets the registry the collectors are registered with.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

// WithBuckets sets the duration histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// Metrics records orchestration outcomes. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	runs         *prometheus.CounterVec
	transitions  *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lookupErrors *prometheus.CounterVec
}

// NewMetrics registers the installer collectors.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := MetricsConfig{
		Namespace: "wrtools",
		Buckets:   []float64{0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		Registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	factory := promauto.With(cfg.Registry)

	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "installer",
			Name:      "runs_total",
			Help:      "Install orchestrations by component, mode and final state",
		}, []string{"component", "mode", "state"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "installer",
			Name:      "state_transitions_total",
			Help:      "State machine transitions by component and entered state",
		}, []string{"component", "state"}),
		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "installer",
			Name:      "downloaded_bytes_total",
			Help:      "Archive bytes downloaded by component",
		}, []string{"component"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: "installer",
			Name:      "run_duration_seconds",
			Help:      "Wall time of install orchestrations",
			Buckets:   cfg.Buckets,
		}, []string{"component", "state"}),
		lookupErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: "installer",
			Name:      "lookup_errors_total",
			Help:      "Release lookups that failed, by component and reason",
		}, []string{"component", "reason"}),
	}
}

func (m *Metrics) observeTransition(component string, state State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(component, state.String()).Inc()
}

func (m *Metrics) observeRun(component string, mode Mode, state State, seconds float64) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(component, mode.String(), state.String()).Inc()
	m.duration.WithLabelValues(component, state.String()).Observe(seconds)
}

func (m *Metrics) observeBytes(component string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytes.WithLabelValues(component).Add(float64(n))
}

func (m *Metrics) observeLookupError(component, reason string) {
	if m == nil {
		return
	}
	m.lookupErrors.WithLabelValues(component, reason).Inc()
}
