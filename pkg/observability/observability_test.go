package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestObservabilityFramework(t *testing.T) {
	config := ObservabilityConfig{
		Tracing: TracingConfig{
			ServiceName:    "test-gridcore",
			ServiceVersion: "1.0.0-test",
			Environment:    "test",
			SamplingRate:   1.0, // Sample everything for tests
			ExporterType:   "stdout",
			BatchTimeout:   1 * time.Second,
			MaxExportBatch: 100,
			MaxQueueSize:   1000,
		},
		Metrics: MetricsConfig{
			Namespace: "test_gridcore",
			Subsystem: "test",
		},
		Logging: LoggingConfig{
			Level:       zapcore.DebugLevel,
			Format:      "json",
			Development: true,
		},
	}

	err := Initialize(config)
	if err != nil {
		t.Fatalf("Failed to initialize observability: %v", err)
	}

	if GetTracer() == nil {
		t.Error("Tracer should not be nil after initialization")
	}

	if GetMeter() == nil {
		t.Error("Meter should not be nil after initialization")
	}

	if GetLogger() == nil {
		t.Error("Logger should not be nil after initialization")
	}
}

func TestGridTracer(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Level = zapcore.DebugLevel

	err := Initialize(config)
	if err != nil {
		t.Fatalf("Failed to initialize observability: %v", err)
	}

	tracer := NewGridTracer("orders")

	ctx := context.Background()

	testError := errors.New("test error")

	err = tracer.TraceLoad(ctx, "server", 2, func(context.Context) error {
		time.Sleep(10 * time.Millisecond) // Simulate work
		return nil
	})
	if err != nil {
		t.Errorf("TraceLoad should not return error for successful load: %v", err)
	}

	err = tracer.TraceLoad(ctx, "server", 3, func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return testError
	})
	if err != testError {
		t.Errorf("TraceLoad should return the original error: got %v, want %v", err, testError)
	}

	err = tracer.TraceAction(ctx, "refresh", "inv-1", func(context.Context) error {
		time.Sleep(5 * time.Millisecond)
		return nil
	})
	if err != nil {
		t.Errorf("TraceAction should not return error for successful action: %v", err)
	}
}

func TestGridLogger(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Level = zapcore.DebugLevel

	err := Initialize(config)
	if err != nil {
		t.Fatalf("Failed to initialize observability: %v", err)
	}

	logger := NewGridLogger("orders")

	ctx := context.Background()

	ctxLogger := logger.WithContext(ctx)
	ctxLogger.Info("test message with context")

	opLogger := logger.WithOperation("load")
	opLogger.LogStart("starting load")
	opLogger.LogProgress("loading pages", 0.5)
	opLogger.LogComplete("load completed")

	testErr := errors.New("test error")
	opLogger.LogError("load failed", testErr)
}

func TestRowProgress(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Level = zapcore.DebugLevel

	err := Initialize(config)
	if err != nil {
		t.Fatalf("Failed to initialize observability: %v", err)
	}

	logger := NewGridLogger("orders")
	opLogger := logger.WithOperation("export")

	progress := NewRowProgress(opLogger)
	progress.SetLogInterval(1 * time.Millisecond) // Fast logging for tests

	progress.RecordRows(100, 1024)
	progress.RecordRows(200, 2048)
	progress.RecordError()

	progress.LogProgress()
	progress.LogFinal()
}

func TestPerformanceLogger(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Level = zapcore.DebugLevel

	err := Initialize(config)
	if err != nil {
		t.Fatalf("Failed to initialize observability: %v", err)
	}

	perfLogger := NewPerformanceLogger()

	perfLogger.LogFrameRate("orders", 60.0, 30.0) // Normal
	perfLogger.LogFrameRate("orders", 25.0, 30.0) // Degraded
	perfLogger.LogFrameRate("orders", 10.0, 30.0) // Critical

	perfLogger.LogLatency("render", 8*time.Millisecond, 16*time.Millisecond)  // Normal
	perfLogger.LogLatency("render", 20*time.Millisecond, 16*time.Millisecond) // Degraded
	perfLogger.LogLatency("render", 40*time.Millisecond, 16*time.Millisecond) // Critical

	perfLogger.LogMemoryUsage("grid", 50<<20, 100<<20, 200<<20)  // Normal
	perfLogger.LogMemoryUsage("grid", 150<<20, 100<<20, 200<<20) // High
	perfLogger.LogMemoryUsage("grid", 250<<20, 100<<20, 200<<20) // Critical
}

func TestErrorReporter(t *testing.T) {
	config := DefaultConfig()
	config.Logging.Level = zapcore.DebugLevel

	err := Initialize(config)
	if err != nil {
		t.Fatalf("Failed to initialize observability: %v", err)
	}

	errorReporter := NewErrorReporter()
	ctx := context.Background()
	testErr := errors.New("test error")

	errorReporter.ReportError(ctx, testErr, "loader", "load", map[string]interface{}{
		"grid": "orders",
		"page": 3,
	})
}

func TestDistributedTracer(t *testing.T) {
	config := DefaultConfig()
	err := Initialize(config)
	if err != nil {
		t.Fatalf("Failed to initialize observability: %v", err)
	}

	dt := NewDistributedTracer()
	ctx, span := NewSpan(context.Background(), "outbound")
	defer span.End()

	headers := map[string]string{}
	dt.InjectContext(ctx, headers)

	extracted := dt.ExtractContext(context.Background(), headers)
	if extracted == nil {
		t.Error("ExtractContext should return a context")
	}
}

func TestShutdown(t *testing.T) {
	config := DefaultConfig()
	err := Initialize(config)
	if err != nil {
		t.Fatalf("Failed to initialize observability: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = Shutdown(ctx)
	if err != nil {
		t.Errorf("Shutdown should not return error: %v", err)
	}
}
