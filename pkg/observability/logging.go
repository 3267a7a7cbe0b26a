package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// GridLogger provides structured logging scoped to one grid with
// tracing integration.
type GridLogger struct {
	logger   *zap.Logger
	gridName string
}

// NewGridLogger creates a structured logger for the named grid
func NewGridLogger(gridName string) *GridLogger {
	return &GridLogger{
		logger:   GetLogger().With(zap.String("grid", gridName)),
		gridName: gridName,
	}
}

// WithContext adds tracing context to log fields
func (gl *GridLogger) WithContext(ctx context.Context) *ContextLogger {
	fields := make([]zap.Field, 0, 4)

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		fields = append(fields,
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		)
	}

	return &ContextLogger{
		logger: gl.logger.With(fields...),
		ctx:    ctx,
	}
}

// WithOperation adds operation context to the logger
func (gl *GridLogger) WithOperation(operation string) *OperationLogger {
	return &OperationLogger{
		logger:    gl.logger.With(zap.String("operation", operation)),
		operation: operation,
		startTime: time.Now(),
	}
}

// Debug logs a debug message
func (gl *GridLogger) Debug(msg string, fields ...zap.Field) {
	gl.logger.Debug(msg, fields...)
}

// Info logs an info message
func (gl *GridLogger) Info(msg string, fields ...zap.Field) {
	gl.logger.Info(msg, fields...)
}

// Warn logs a warning message
func (gl *GridLogger) Warn(msg string, fields ...zap.Field) {
	gl.logger.Warn(msg, fields...)
}

// Error logs an error message
func (gl *GridLogger) Error(msg string, fields ...zap.Field) {
	gl.logger.Error(msg, fields...)
}

// ContextLogger provides logging with tracing context
type ContextLogger struct {
	logger *zap.Logger
	ctx    context.Context
}

// Debug logs a debug message with context
func (cl *ContextLogger) Debug(msg string, fields ...zap.Field) {
	cl.logger.Debug(msg, fields...)
}

// Info logs an info message with context
func (cl *ContextLogger) Info(msg string, fields ...zap.Field) {
	cl.logger.Info(msg, fields...)
}

// Warn logs a warning message with context
func (cl *ContextLogger) Warn(msg string, fields ...zap.Field) {
	cl.logger.Warn(msg, fields...)
}

// Error logs an error message with context
func (cl *ContextLogger) Error(msg string, fields ...zap.Field) {
	cl.logger.Error(msg, fields...)
}

// WithOperation adds operation context
func (cl *ContextLogger) WithOperation(operation string) *OperationLogger {
	return &OperationLogger{
		logger:    cl.logger.With(zap.String("operation", operation)),
		operation: operation,
		startTime: time.Now(),
	}
}

// OperationLogger provides operation-specific logging
type OperationLogger struct {
	logger    *zap.Logger
	operation string
	startTime time.Time
}

// Debug logs a debug message for the operation
func (ol *OperationLogger) Debug(msg string, fields ...zap.Field) {
	ol.logger.Debug(msg, fields...)
}

// Info logs an info message for the operation
func (ol *OperationLogger) Info(msg string, fields ...zap.Field) {
	ol.logger.Info(msg, fields...)
}

// Warn logs a warning message for the operation
func (ol *OperationLogger) Warn(msg string, fields ...zap.Field) {
	ol.logger.Warn(msg, fields...)
}

// Error logs an error message for the operation
func (ol *OperationLogger) Error(msg string, fields ...zap.Field) {
	ol.logger.Error(msg, fields...)
}

// LogStart logs the start of an operation
func (ol *OperationLogger) LogStart(msg string, fields ...zap.Field) {
	allFields := append(fields, zap.String("phase", "start"))
	ol.logger.Info(msg, allFields...)
}

// LogProgress logs operation progress
func (ol *OperationLogger) LogProgress(msg string, progress float64, fields ...zap.Field) {
	allFields := append(fields,
		zap.String("phase", "progress"),
		zap.Float64("progress_percent", progress*100),
		zap.Duration("elapsed", time.Since(ol.startTime)),
	)
	ol.logger.Info(msg, allFields...)
}

// LogComplete logs the completion of an operation
func (ol *OperationLogger) LogComplete(msg string, fields ...zap.Field) {
	duration := time.Since(ol.startTime)
	allFields := append(fields,
		zap.String("phase", "complete"),
		zap.Duration("total_duration", duration),
	)
	ol.logger.Info(msg, allFields...)
}

// LogError logs an operation error
func (ol *OperationLogger) LogError(msg string, err error, fields ...zap.Field) {
	duration := time.Since(ol.startTime)
	allFields := append(fields,
		zap.String("phase", "error"),
		zap.Duration("duration_before_error", duration),
		zap.Error(err),
	)
	ol.logger.Error(msg, allFields...)
}

// RowProgress logs periodic progress for long row-streaming work such
// as exports and lazy page sequences.
type RowProgress struct {
	logger      *OperationLogger
	rowsTotal   int64
	errorsTotal int64
	bytesTotal  int64
	startTime   time.Time
	lastLogTime time.Time
	logInterval time.Duration
}

// NewRowProgress creates a new row progress logger
func NewRowProgress(logger *OperationLogger) *RowProgress {
	now := time.Now()
	return &RowProgress{
		logger:      logger,
		startTime:   now,
		lastLogTime: now,
		logInterval: 30 * time.Second,
	}
}

// SetLogInterval sets the interval for progress logging
func (rp *RowProgress) SetLogInterval(interval time.Duration) {
	rp.logInterval = interval
}

// RecordRows records delivered rows and optionally logs progress
func (rp *RowProgress) RecordRows(count int, bytes int64) {
	rp.rowsTotal += int64(count)
	rp.bytesTotal += bytes

	if time.Since(rp.lastLogTime) >= rp.logInterval {
		rp.LogProgress()
		rp.lastLogTime = time.Now()
	}
}

// RecordError records an error
func (rp *RowProgress) RecordError() {
	rp.errorsTotal++
}

// LogProgress logs current progress
func (rp *RowProgress) LogProgress() {
	elapsed := time.Since(rp.startTime)
	rowsPerSecond := float64(rp.rowsTotal) / elapsed.Seconds()

	rp.logger.Info("row progress",
		zap.Int64("rows", rp.rowsTotal),
		zap.Int64("errors", rp.errorsTotal),
		zap.Int64("bytes", rp.bytesTotal),
		zap.Float64("rows_per_second", rowsPerSecond),
		zap.Duration("elapsed", elapsed),
	)
}

// LogFinal logs final statistics
func (rp *RowProgress) LogFinal() {
	elapsed := time.Since(rp.startTime)
	rowsPerSecond := float64(rp.rowsTotal) / elapsed.Seconds()

	rp.logger.LogComplete("rows delivered",
		zap.Int64("total_rows", rp.rowsTotal),
		zap.Int64("total_errors", rp.errorsTotal),
		zap.Int64("total_bytes", rp.bytesTotal),
		zap.Float64("avg_rows_per_second", rowsPerSecond),
		zap.Duration("total_duration", elapsed),
	)
}

// PerformanceLogger provides specialized logging for performance
// monitoring. The performance controller uses it for frame rate,
// render latency and memory pressure reports.
type PerformanceLogger struct {
	logger *zap.Logger
}

// NewPerformanceLogger creates a new performance logger
func NewPerformanceLogger() *PerformanceLogger {
	return &PerformanceLogger{
		logger: GetLogger().With(zap.String("component", "performance")),
	}
}

// LogFrameRate logs the rolling frame rate against its floor
func (pl *PerformanceLogger) LogFrameRate(gridName string, fps float64, floor float64) {
	level := zapcore.InfoLevel
	status := "normal"

	if fps < floor*0.5 {
		level = zapcore.ErrorLevel
		status = "critical"
	} else if fps < floor {
		level = zapcore.WarnLevel
		status = "degraded"
	}

	pl.logger.Log(level, "frame rate measurement",
		zap.String("grid", gridName),
		zap.Float64("fps", fps),
		zap.Float64("floor", floor),
		zap.String("status", status),
	)
}

// LogLatency logs latency against a threshold
func (pl *PerformanceLogger) LogLatency(operation string, latency time.Duration, threshold time.Duration) {
	level := zapcore.InfoLevel
	status := "normal"

	if latency > threshold*2 {
		level = zapcore.ErrorLevel
		status = "critical"
	} else if latency > threshold {
		level = zapcore.WarnLevel
		status = "degraded"
	}

	pl.logger.Log(level, "latency measurement",
		zap.String("operation", operation),
		zap.Duration("latency", latency),
		zap.Duration("threshold", threshold),
		zap.String("status", status),
		zap.Float64("threshold_ratio", float64(latency)/float64(threshold)),
	)
}

// LogMemoryUsage logs memory usage against warning and critical bounds
func (pl *PerformanceLogger) LogMemoryUsage(component string, allocated int64, warning int64, critical int64) {
	level := zapcore.InfoLevel
	status := "normal"

	if allocated > critical {
		level = zapcore.ErrorLevel
		status = "critical"
	} else if allocated > warning {
		level = zapcore.WarnLevel
		status = "high"
	}

	pl.logger.Log(level, "memory usage",
		zap.String("component", component),
		zap.Int64("allocated_bytes", allocated),
		zap.Int64("warning_bytes", warning),
		zap.Int64("critical_bytes", critical),
		zap.String("status", status),
	)
}

// ErrorReporter provides centralized error reporting
type ErrorReporter struct {
	logger *zap.Logger
}

// NewErrorReporter creates a new error reporter
func NewErrorReporter() *ErrorReporter {
	return &ErrorReporter{
		logger: GetLogger().With(zap.String("component", "error_reporter")),
	}
}

// ReportError reports an error with context
func (er *ErrorReporter) ReportError(ctx context.Context, err error, component string, operation string, metadata map[string]interface{}) {
	fields := []zap.Field{
		zap.Error(err),
		zap.String("component", component),
		zap.String("operation", operation),
		zap.String("error_type", fmt.Sprintf("%T", err)),
		zap.Time("timestamp", time.Now()),
	}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		fields = append(fields,
			zap.String("trace_id", span.SpanContext().TraceID().String()),
			zap.String("span_id", span.SpanContext().SpanID().String()),
		)
	}

	for key, value := range metadata {
		fields = append(fields, zap.Any(key, value))
	}

	er.logger.Error("error reported", fields...)
}
