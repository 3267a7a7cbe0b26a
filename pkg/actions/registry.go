package actions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/internal/sched"
	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/loader"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/metrics"
	"github.com/mounirtms/gridcore/pkg/observability"
)

// Registry holds a grid's actions and dispatches invocations. Each
// action is single-flight: a second invocation while one is running is
// dropped with ActionConflict.
type Registry struct {
	mu      sync.RWMutex
	grid    string
	actions map[string]Action
	order   []string

	provider func() Context
	gate     *sched.Serial

	tracer    *observability.GridTracer
	collector *metrics.Collector
	log       *zap.Logger
}

// Config configures a registry.
type Config struct {
	GridName string

	// ContextFunc captures the grid state an invocation sees. When nil,
	// invocations carry only the grid name.
	ContextFunc func() Context
}

// NewRegistry creates an empty registry for the named grid.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		grid:      cfg.GridName,
		actions:   make(map[string]Action),
		provider:  cfg.ContextFunc,
		gate:      sched.NewSerial(),
		tracer:    observability.NewGridTracer(cfg.GridName),
		collector: metrics.NewCollector(cfg.GridName),
		log:       logger.WithGrid(cfg.GridName).Named("actions"),
	}
}

// Register adds an action. Duplicate IDs are rejected immediately.
func (r *Registry) Register(a Action) error {
	if a.ID == "" {
		return errors.New(errors.ErrorTypeValidation, "action id is required")
	}
	if a.OnInvoke == nil {
		return errors.Newf(errors.ErrorTypeValidation, "action %q has no handler", a.ID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.actions[a.ID]; dup {
		return errors.Newf(errors.ErrorTypeValidation, "duplicate action id %q", a.ID)
	}
	r.actions[a.ID] = a
	r.order = append(r.order, a.ID)
	return nil
}

// RegisterAll registers actions in order, stopping at the first failure.
func (r *Registry) RegisterAll(actions ...Action) error {
	for _, a := range actions {
		if err := r.Register(a); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the action registered under id.
func (r *Registry) Get(id string) (Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actions[id]
	return a, ok
}

// Registered returns all actions in registration order.
func (r *Registry) Registered() []Action {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Action, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.actions[id])
	}
	return out
}

// Enabled reports whether the action would run against the current
// grid context. Unknown actions report false.
func (r *Registry) Enabled(id string) bool {
	a, ok := r.Get(id)
	if !ok {
		return false
	}
	if a.Enabled == nil {
		return true
	}
	return a.Enabled(r.snapshot())
}

// Invoke runs the action registered under id against the current grid
// context.
func (r *Registry) Invoke(ctx context.Context, id string) error {
	return r.dispatch(ctx, id, r.snapshot())
}

// InvokeRow runs a row-scoped invocation, e.g. from a context menu.
func (r *Registry) InvokeRow(ctx context.Context, id string, row loader.Row) error {
	actx := r.snapshot()
	actx.Row = row
	return r.dispatch(ctx, id, actx)
}

func (r *Registry) snapshot() Context {
	if r.provider == nil {
		return Context{GridName: r.grid}
	}
	actx := r.provider()
	if actx.GridName == "" {
		actx.GridName = r.grid
	}
	return actx
}

func (r *Registry) dispatch(ctx context.Context, id string, actx Context) error {
	r.mu.RLock()
	a, ok := r.actions[id]
	r.mu.RUnlock()
	if !ok {
		return errors.Newf(errors.ErrorTypeValidation, "unknown action %q", id)
	}

	if a.Enabled != nil && !a.Enabled(actx) {
		return errors.Newf(errors.ErrorTypeValidation, "action %q is not enabled", id).
			WithDetail("grid", r.grid).
			WithDetail("selected", len(actx.SelectedRows))
	}

	if !r.gate.TryAcquire(id) {
		r.collector.Action(id, "conflict")
		r.log.Warn("dropped concurrent action invocation", zap.String("action", id))
		return errors.Newf(errors.ErrorTypeActionConflict, "action %q is already running", id)
	}
	defer r.gate.Release(id)

	invocationID := uuid.New().String()
	ctx = context.WithValue(ctx, logger.GridNameKey, actx.GridName)
	ctx = context.WithValue(ctx, logger.ActionIDKey, id)
	ctx = context.WithValue(ctx, logger.InvocationIDKey, invocationID)

	log := r.log.With(
		zap.String("action", id),
		zap.String("invocation_id", invocationID),
	)
	log.Debug("invoking action", zap.Int("selected", len(actx.SelectedRows)))

	start := time.Now()
	err := r.tracer.TraceAction(ctx, id, invocationID, func(ctx context.Context) error {
		return a.OnInvoke(ctx, actx)
	})
	if err != nil {
		r.collector.Action(id, "error")
		log.Error("action failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)))
		return err
	}

	r.collector.Action(id, "success")
	log.Info("action completed", zap.Duration("duration", time.Since(start)))
	return nil
}
