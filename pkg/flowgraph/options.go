package flowgraph

import (
	"log/slog"

	"github.com/randalmurphal/mindflow/pkg/flowgraph/checkpoint"
	"github.com/randalmurphal/mindflow/pkg/flowgraph/observability"
)

// DefaultGraphName is the graph name reported in traces when none is set.
const DefaultGraphName = "flowgraph"

// runConfig holds configuration for graph execution.
type runConfig struct {
	// Observability
	logger    *slog.Logger
	metrics   observability.MetricsRecorder
	spans     observability.SpanManager
	graphName string

	// Checkpointing
	runID                  string
	checkpointStore        checkpoint.Store
	checkpointFailureFatal bool

	// Dispatch
	maxConcurrency int
}

// defaultRunConfig returns the default execution configuration.
// Metrics and tracing are off; the logger is taken from the Context at Run.
func defaultRunConfig() runConfig {
	return runConfig{
		metrics:   observability.NoopMetrics{},
		spans:     observability.NoopSpanManager{},
		graphName: DefaultGraphName,
	}
}

// RunOption configures execution behavior.
type RunOption func(*runConfig)

// WithObservabilityLogger sets the logger for run, frontier, and node
// events. Defaults to the Context's logger.
func WithObservabilityLogger(logger *slog.Logger) RunOption {
	return func(c *runConfig) {
		c.logger = logger
	}
}

// WithMetrics enables or disables OpenTelemetry metrics.
// Metrics use the global meter provider.
func WithMetrics(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.metrics = observability.NewMetricsRecorder()
		} else {
			c.metrics = observability.NoopMetrics{}
		}
	}
}

// WithMetricsRecorder enables metrics with a specific recorder.
func WithMetricsRecorder(m observability.MetricsRecorder) RunOption {
	if m == nil {
		panic("flowgraph: metrics recorder cannot be nil")
	}
	return func(c *runConfig) {
		c.metrics = m
	}
}

// WithTracing enables or disables OpenTelemetry tracing.
// Spans use the global tracer provider.
func WithTracing(enabled bool) RunOption {
	return func(c *runConfig) {
		if enabled {
			c.spans = observability.NewSpanManager()
		} else {
			c.spans = observability.NoopSpanManager{}
		}
	}
}

// WithSpanManager enables tracing with a specific span manager.
func WithSpanManager(sm observability.SpanManager) RunOption {
	if sm == nil {
		panic("flowgraph: span manager cannot be nil")
	}
	return func(c *runConfig) {
		c.spans = sm
	}
}

// WithGraphName sets the graph name recorded on the run span.
func WithGraphName(name string) RunOption {
	return func(c *runConfig) {
		if name != "" {
			c.graphName = name
		}
	}
}

// WithRunID sets the run identifier used for checkpoints and logs.
// Required when checkpointing is enabled.
func WithRunID(id string) RunOption {
	return func(c *runConfig) {
		c.runID = id
	}
}

// WithCheckpointing saves a checkpoint after every frontier.
// Requires WithRunID. Overrides a store set on the Context.
func WithCheckpointing(store checkpoint.Store) RunOption {
	return func(c *runConfig) {
		c.checkpointStore = store
	}
}

// WithCheckpointFailureFatal aborts the run when a checkpoint cannot be
// saved. By default checkpoint failures are logged and execution continues.
func WithCheckpointFailureFatal() RunOption {
	return func(c *runConfig) {
		c.checkpointFailureFatal = true
	}
}

// WithMaxConcurrency bounds how many nodes of one frontier run at once.
// Default: unbounded.
//
// Panics if n < 1.
func WithMaxConcurrency(n int) RunOption {
	if n < 1 {
		panic("flowgraph: max concurrency must be > 0")
	}
	return func(c *runConfig) {
		c.maxConcurrency = n
	}
}
