package statepersist

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"
)

const (
	operationHydrate = "hydrate"
	operationPersist = "persist"
	operationPurge   = "purge"

	spanNameHydrate = "statepersist.hydrate"
	spanNamePersist = "statepersist.persist"

	metricHydrateDuration     = "statepersist_hydrate_duration_seconds"
	metricPersistDuration     = "statepersist_persist_duration_seconds"
	metricWrites              = "statepersist_writes_total"
	metricWritesSkipped       = "statepersist_writes_skipped_total"
	metricDeserializeFailures = "statepersist_deserialize_failures_total"
	metricMigrationsApplied   = "statepersist_migrations_applied_total"

	statusSuccess = "success"
	statusError   = "error"

	spanAttrOperation  = "operation"
	spanAttrKeyCount   = "key_count"
	spanAttrWrites     = "writes"
	spanAttrDurationMS = "duration_ms"
	spanAttrErrorType  = "error_type"
	spanAttrNamespace  = "namespace"
	labelStatus        = "status"
	labelKey           = "key"

	errorTypeRead      = "read_error"
	errorTypeWrite     = "write_error"
	errorTypeSerialize = "serialize_error"
	errorTypeMigration = "migration_error"
	errorTypeHook      = "hook_error"
	errorTypeRemove    = "remove_error"

	logMsgDeserializeFailed = "Error occurred while deserializing the %s store value"
	logMsgStateHydrated     = "statepersist: state hydrated"
	logMsgStatePersisted    = "statepersist: state persisted"
	logMsgStatePurged       = "statepersist: state purged"
	logMsgNotAnObject       = "statepersist: persisted state is not an object, keeping defaults"
	logMsgOperationFailed   = "statepersist: operation failed"

	logAttrError      = "error"
	logAttrAddress    = "address"
	logAttrOperation  = "operation"
	logAttrWrites     = "writes"
	logAttrSkipped    = "skipped"
	logAttrDurationMS = "duration_ms"
	logAttrMigrated   = "migrated"
	logAttrSlices     = "slices"
)

// logOperationContext logs operational information at info level if a logger is configured.
func (p *Plugin) logOperationContext(ctx context.Context, msg string, args ...any) {
	switch {
	case p.contextualLogger != nil:
		p.contextualLogger.InfoContext(ctx, msg, args...)
	case p.logger != nil:
		p.logger.Info(msg, args...)
	}
}

// logErrorContext logs at error level. Errors are never dropped: without a configured logger they go to slog.Default().
func (p *Plugin) logErrorContext(ctx context.Context, msg string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	switch {
	case p.contextualLogger != nil:
		p.contextualLogger.ErrorContext(ctx, msg, allArgs...)
	case p.logger != nil:
		p.logger.Error(msg, allArgs...)
	default:
		slog.Default().ErrorContext(ctx, msg, allArgs...)
	}
}

// logWarnContext logs at warn level, falling back to slog.Default() like logErrorContext.
func (p *Plugin) logWarnContext(ctx context.Context, msg string, args ...any) {
	switch {
	case p.contextualLogger != nil:
		p.contextualLogger.WarnContext(ctx, msg, args...)
	case p.logger != nil:
		p.logger.Warn(msg, args...)
	default:
		slog.Default().WarnContext(ctx, msg, args...)
	}
}

func (p *Plugin) logDeserializeFailure(ctx context.Context, address string, err error) {
	p.logErrorContext(ctx, fmt.Sprintf(logMsgDeserializeFailed, address), err, logAttrAddress, address)
	p.incrementCounterContext(ctx, metricDeserializeFailures, map[string]string{labelKey: address})
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

func (p *Plugin) recordDurationContext(ctx context.Context, metric string, d time.Duration, operation, status string) {
	if p.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       status,
	}

	if contextual, ok := p.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, d, labels)
		return
	}

	p.metricsCollector.RecordDuration(metric, d, labels)
}

func (p *Plugin) incrementCounterContext(ctx context.Context, metric string, labels map[string]string) {
	if p.metricsCollector == nil {
		return
	}

	if contextual, ok := p.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	p.metricsCollector.IncrementCounter(metric, labels)
}

// === Tracing Observer Pattern ===

// tracingObserver encapsulates the span lifecycle of one hydrate or persist cycle.
type tracingObserver struct {
	p    *Plugin
	span SpanContext
}

func (p *Plugin) startTracing(ctx context.Context, spanName, operation string, keyCount int) (*tracingObserver, context.Context) {
	if p.tracingCollector == nil {
		return &tracingObserver{p: p}, ctx
	}

	attrs := map[string]string{
		spanAttrOperation: operation,
		spanAttrKeyCount:  strconv.Itoa(keyCount),
	}

	if p.namespace != "" {
		attrs[spanAttrNamespace] = p.namespace
	}

	newCtx, span := p.tracingCollector.StartSpan(ctx, spanName, attrs)

	return &tracingObserver{p: p, span: span}, newCtx
}

func (to *tracingObserver) finishSuccess(writes int, duration time.Duration) {
	if to.span == nil {
		return
	}

	attrs := map[string]string{
		spanAttrWrites:     strconv.Itoa(writes),
		spanAttrDurationMS: fmt.Sprintf("%.2f", toMilliseconds(duration)),
	}

	to.span.SetStatus(statusSuccess)
	for key, value := range attrs {
		to.span.AddAttribute(key, value)
	}

	to.p.tracingCollector.FinishSpan(to.span, statusSuccess, attrs)
}

func (to *tracingObserver) finishError(errorType string, duration time.Duration) {
	if to.span == nil {
		return
	}

	attrs := map[string]string{
		spanAttrErrorType:  errorType,
		spanAttrDurationMS: fmt.Sprintf("%.2f", toMilliseconds(duration)),
	}

	to.span.SetStatus(statusError)
	to.span.AddAttribute(spanAttrErrorType, errorType)

	to.p.tracingCollector.FinishSpan(to.span, statusError, attrs)
}

// === Metrics Observer Pattern ===

// metricsObserver encapsulates the metrics of one hydrate or persist cycle.
type metricsObserver struct {
	p         *Plugin
	ctx       context.Context
	metric    string
	operation string
}

func (p *Plugin) startMetrics(ctx context.Context, metric, operation string) *metricsObserver {
	return &metricsObserver{p: p, ctx: ctx, metric: metric, operation: operation}
}

func (mo *metricsObserver) recordWrite(address string) {
	mo.p.incrementCounterContext(mo.ctx, metricWrites, map[string]string{labelKey: address})
}

func (mo *metricsObserver) recordSkippedWrite(address string) {
	mo.p.incrementCounterContext(mo.ctx, metricWritesSkipped, map[string]string{labelKey: address})
}

func (mo *metricsObserver) recordMigration(address string) {
	mo.p.incrementCounterContext(mo.ctx, metricMigrationsApplied, map[string]string{labelKey: address})
}

func (mo *metricsObserver) recordSuccess(duration time.Duration) {
	mo.p.recordDurationContext(mo.ctx, mo.metric, duration, mo.operation, statusSuccess)
}

func (mo *metricsObserver) recordError(duration time.Duration) {
	mo.p.recordDurationContext(mo.ctx, mo.metric, duration, mo.operation, statusError)
}
