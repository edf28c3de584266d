package postgresengine

import (
	"strings"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
)

// The observability interfaces are shared with the plugin, so one adapter set serves both.
type (
	Logger           = statepersist.Logger
	ContextualLogger = statepersist.ContextualLogger
	MetricsCollector = statepersist.MetricsCollector
	TracingCollector = statepersist.TracingCollector
	SpanContext      = statepersist.SpanContext
)

// Option defines a functional option for configuring the Engine.
type Option func(*Engine) error

// WithTableName sets the table name, optionally schema qualified ("state.items").
func WithTableName(tableName string) Option {
	return func(e *Engine) error {
		tableName = strings.TrimSpace(tableName)
		if tableName == "" {
			return ErrEmptyTableName
		}

		e.tableName = tableName

		return nil
	}
}

// WithLogger sets the logger for the Engine.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: cleared tables with row counts
// Warn level: non-critical issues like cleanup failures
// Error level: failures that cause an operation to fail.
func WithLogger(logger Logger) Option {
	return func(e *Engine) error {
		e.logger = logger
		return nil
	}
}

// WithContextualLogger sets a context-aware logger, preferred over WithLogger.
func WithContextualLogger(logger ContextualLogger) Option {
	return func(e *Engine) error {
		e.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Engine.
// Durations are recorded per operation, errors are counted per operation and error type.
func WithMetrics(collector MetricsCollector) Option {
	return func(e *Engine) error {
		e.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Engine. Every database round trip gets its own span.
func WithTracing(collector TracingCollector) Option {
	return func(e *Engine) error {
		e.tracingCollector = collector
		return nil
	}
}
