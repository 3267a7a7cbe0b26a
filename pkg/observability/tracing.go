// Package observability provides tracing, metrics and logging integration for gridcore
package observability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global tracer instance
	tracer trace.Tracer

	// Global meter instance
	meter metric.Meter

	// Global logger instance
	logger *zap.Logger

	// Initialization lock
	initOnce sync.Once
)

// TracingConfig contains tracing configuration
type TracingConfig struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
	SamplingRate   float64
	ExporterType   string // "stdout", "otlp"
	ExporterURL    string
	BatchTimeout   time.Duration
	MaxExportBatch int
	MaxQueueSize   int
}

// MetricsConfig contains metrics configuration
type MetricsConfig struct {
	Namespace string
	Subsystem string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level       zapcore.Level
	Format      string // "json", "console"
	OutputPaths []string
	ErrorPaths  []string
	Sampling    *zap.SamplingConfig
	Development bool
}

// ObservabilityConfig contains all observability configuration
type ObservabilityConfig struct {
	Tracing TracingConfig
	Metrics MetricsConfig
	Logging LoggingConfig
}

// Initialize sets up the observability framework
func Initialize(config ObservabilityConfig) error {
	var err error

	initOnce.Do(func() {
		err = initTracing(config.Tracing)
		if err != nil {
			return
		}

		err = initMetrics(config.Metrics)
		if err != nil {
			return
		}

		err = initLogging(config.Logging)
		if err != nil {
			return
		}

		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{},
			propagation.Baggage{},
		))
	})

	return err
}

// GetTracer returns the global tracer
func GetTracer() trace.Tracer {
	return tracer
}

// GetMeter returns the global meter
func GetMeter() metric.Meter {
	return meter
}

// GetLogger returns the global logger
func GetLogger() *zap.Logger {
	return logger
}

// activeTracer returns the initialized tracer, falling back to the
// global provider (a no-op before Initialize) so instrumented code is
// safe to run without setup.
func activeTracer() trace.Tracer {
	if tracer != nil {
		return tracer
	}
	return otel.Tracer("gridcore")
}

// Span represents a tracing span with batched attribute recording
type Span struct {
	span       trace.Span
	name       string
	startTime  time.Time
	attributes []attribute.KeyValue
}

// NewSpan creates a new span for the named operation
func NewSpan(ctx context.Context, operationName string) (context.Context, *Span) {
	ctx, span := activeTracer().Start(ctx, operationName)

	return ctx, &Span{
		span:      span,
		name:      operationName,
		startTime: time.Now(),
	}
}

// SetAttribute adds an attribute to the span (batched for performance)
func (s *Span) SetAttribute(key string, value interface{}) {
	var attr attribute.KeyValue

	switch v := value.(type) {
	case string:
		attr = attribute.String(key, v)
	case int:
		attr = attribute.Int(key, v)
	case int64:
		attr = attribute.Int64(key, v)
	case float64:
		attr = attribute.Float64(key, v)
	case bool:
		attr = attribute.Bool(key, v)
	default:
		attr = attribute.String(key, fmt.Sprintf("%v", v))
	}

	s.attributes = append(s.attributes, attr)
}

// AddEvent adds an event to the span
func (s *Span) AddEvent(name string, attrs ...attribute.KeyValue) {
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetStatus sets the span status
func (s *Span) SetStatus(code codes.Code, description string) {
	s.span.SetStatus(code, description)
}

// End ends the span and records its duration
func (s *Span) End() {
	if len(s.attributes) > 0 {
		s.span.SetAttributes(s.attributes...)
	}

	duration := time.Since(s.startTime)
	RecordDuration("span_duration", duration, map[string]string{
		"operation": s.name,
	})

	s.span.End()
}

// GridTracer provides grid-scoped tracing utilities. Each grid
// instance creates one and wraps its loads and action invocations.
type GridTracer struct {
	gridName string
	tracer   trace.Tracer
}

// NewGridTracer creates a tracer scoped to the named grid
func NewGridTracer(gridName string) *GridTracer {
	return &GridTracer{
		gridName: gridName,
		tracer:   tracer,
	}
}

// StartSpan starts a grid-scoped span
func (gt *GridTracer) StartSpan(ctx context.Context, operation string) (context.Context, *Span) {
	operationName := fmt.Sprintf("grid.%s.%s", gt.gridName, operation)
	ctx, span := NewSpan(ctx, operationName)

	span.SetAttribute("grid.name", gt.gridName)
	span.SetAttribute("grid.operation", operation)

	return ctx, span
}

// TraceLoad traces one data load, recording mode, page and outcome
func (gt *GridTracer) TraceLoad(ctx context.Context, mode string, page int, fn func(context.Context) error) error {
	ctx, span := gt.StartSpan(ctx, "load")
	defer span.End()

	span.SetAttribute("load.mode", mode)
	span.SetAttribute("load.page", page)

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	RecordDuration("load_duration", duration, map[string]string{
		"component": gt.gridName,
		"operation": "load",
		"status":    getStatus(err),
	})

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttribute("error", true)
		span.SetAttribute("error.message", err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// TraceAction traces one action invocation
func (gt *GridTracer) TraceAction(ctx context.Context, actionID, invocationID string, fn func(context.Context) error) error {
	ctx, span := gt.StartSpan(ctx, "action")
	defer span.End()

	span.SetAttribute("action.id", actionID)
	span.SetAttribute("action.invocation_id", invocationID)

	start := time.Now()
	err := fn(ctx)
	duration := time.Since(start)

	RecordDuration("action_duration", duration, map[string]string{
		"component": gt.gridName,
		"operation": actionID,
		"status":    getStatus(err),
	})

	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttribute("error", true)
		span.SetAttribute("error.message", err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	return err
}

// DistributedTracer handles cross-service trace propagation. The REST
// loader uses it to carry trace context on outgoing requests.
type DistributedTracer struct {
	propagator propagation.TextMapPropagator
}

// NewDistributedTracer creates a new distributed tracer
func NewDistributedTracer() *DistributedTracer {
	return &DistributedTracer{
		propagator: otel.GetTextMapPropagator(),
	}
}

// InjectContext injects tracing context into headers
func (dt *DistributedTracer) InjectContext(ctx context.Context, headers map[string]string) {
	dt.propagator.Inject(ctx, propagation.MapCarrier(headers))
}

// ExtractContext extracts tracing context from headers
func (dt *DistributedTracer) ExtractContext(ctx context.Context, headers map[string]string) context.Context {
	return dt.propagator.Extract(ctx, propagation.MapCarrier(headers))
}

// getStatus returns status string for metrics
func getStatus(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
