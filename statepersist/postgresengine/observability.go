package postgresengine

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
)

const (
	operationGet         = "get"
	operationSet         = "set"
	operationRemove      = "remove"
	operationClear       = "clear"
	operationLength      = "length"
	operationKeys        = "keys"
	operationCreateTable = "create_table"

	spanNamePrefix = "statepersist.postgres."

	metricOperationDuration = "statepersist_postgres_operation_duration_seconds"
	metricDatabaseErrors    = "statepersist_postgres_errors_total"

	statusSuccess = "success"
	statusError   = "error"

	spanAttrOperation  = "operation"
	spanAttrTable      = "table"
	spanAttrDurationMS = "duration_ms"
	spanAttrErrorType  = "error_type"
	labelStatus        = "status"

	errorTypeBuildQuery = "build_query"
	errorTypeQuery      = "query"
	errorTypeExec       = "exec"
	errorTypeScan       = "scan"

	logMsgSQLExecuted        = "statepersist: executed sql for: "
	logMsgTableCleared       = "statepersist: postgres table cleared"
	logMsgBuildQueryFailed   = "statepersist: failed to build sql query"
	logMsgDBQueryFailed      = "statepersist: database query failed"
	logMsgDBExecFailed       = "statepersist: database statement failed"
	logMsgScanRowFailed      = "statepersist: failed to scan database row"
	logMsgCloseRowsFailed    = "statepersist: failed to close database rows"
	logMsgRowsAffectedFailed = "statepersist: failed to get rows affected count"

	logAttrError        = "error"
	logAttrQuery        = "query"
	logAttrOperation    = "operation"
	logAttrDurationMS   = "duration_ms"
	logAttrRowsAffected = "rows_affected"
)

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (e *Engine) logQueryWithDuration(ctx context.Context, sqlQuery, operation string, duration time.Duration) {
	msg := logMsgSQLExecuted + operation

	if e.contextualLogger != nil {
		e.contextualLogger.DebugContext(ctx, msg, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
		return
	}

	if e.logger != nil {
		e.logger.Debug(msg, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

func (e *Engine) logOperationContext(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.InfoContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Info(msg, args...)
	}
}

func (e *Engine) logWarnContext(ctx context.Context, msg string, args ...any) {
	if e.contextualLogger != nil {
		e.contextualLogger.WarnContext(ctx, msg, args...)
		return
	}

	if e.logger != nil {
		e.logger.Warn(msg, args...)
	}
}

func (e *Engine) logErrorContext(ctx context.Context, msg string, err error, args ...any) {
	allArgs := append([]any{logAttrError, err.Error()}, args...)

	if e.contextualLogger != nil {
		e.contextualLogger.ErrorContext(ctx, msg, allArgs...)
		return
	}

	if e.logger != nil {
		e.logger.Error(msg, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}

// recordDurationMetricsContext records a duration, with context if the collector supports it.
func (e *Engine) recordDurationMetricsContext(ctx context.Context, duration time.Duration, operation, status string) {
	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       status,
	}

	if contextual, ok := e.metricsCollector.(statepersist.ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricOperationDuration, duration, labels)
		return
	}

	e.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)
}

// recordErrorMetricsContext counts a failed operation, with context if the collector supports it.
func (e *Engine) recordErrorMetricsContext(ctx context.Context, operation, errorType string) {
	if e.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       statusError,
		spanAttrErrorType: errorType,
	}

	if contextual, ok := e.metricsCollector.(statepersist.ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metricDatabaseErrors, labels)
		return
	}

	e.metricsCollector.IncrementCounter(metricDatabaseErrors, labels)
}

// operationObserver encapsulates span and metrics bookkeeping for one database round trip.
type operationObserver struct {
	e         *Engine
	ctx       context.Context
	operation string
	span      SpanContext
}

func (e *Engine) startObserving(ctx context.Context, operation string) (*operationObserver, context.Context) {
	var span SpanContext

	if e.tracingCollector != nil {
		ctx, span = e.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
			spanAttrOperation: operation,
			spanAttrTable:     e.tableName,
		})
	}

	return &operationObserver{e: e, ctx: ctx, operation: operation, span: span}, ctx
}

func (o *operationObserver) finishSuccess(duration time.Duration) {
	o.e.recordDurationMetricsContext(o.ctx, duration, o.operation, statusSuccess)

	if o.span == nil {
		return
	}

	o.span.SetStatus(statusSuccess)
	o.e.tracingCollector.FinishSpan(o.span, statusSuccess, map[string]string{
		spanAttrDurationMS: formatDuration(duration),
	})
}

func (o *operationObserver) finishError(errorType string, duration time.Duration) {
	o.e.recordDurationMetricsContext(o.ctx, duration, o.operation, statusError)
	o.e.recordErrorMetricsContext(o.ctx, o.operation, errorType)

	if o.span == nil {
		return
	}

	o.span.SetStatus(statusError)
	o.span.AddAttribute(spanAttrErrorType, errorType)
	o.e.tracingCollector.FinishSpan(o.span, statusError, map[string]string{
		spanAttrErrorType:  errorType,
		spanAttrDurationMS: formatDuration(duration),
	})
}

func formatDuration(duration time.Duration) string {
	return fmt.Sprintf("%.2f", toMilliseconds(duration))
}
