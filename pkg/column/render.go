package column

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mounirtms/gridcore/pkg/errors"
	"github.com/mounirtms/gridcore/pkg/logger"
	"github.com/mounirtms/gridcore/pkg/metrics"
)

// ErrorSink receives contained render errors. Reports are rate limited
// to one per (grid, field) within the reporting window so a broken
// renderer on a 10k-row column does not flood the caller.
type ErrorSink func(err error)

// ErrorCellClass marks cells whose renderer failed.
const ErrorCellClass = "grid-cell-error"

const reportWindow = 5 * time.Second

// Renderer renders cells while containing renderer panics and errors.
type Renderer struct {
	sink    ErrorSink
	limiter *reportLimiter
	log     *zap.Logger
}

// NewRenderer creates a renderer reporting into sink. A nil sink just
// drops reports; logging and metrics still happen.
func NewRenderer(sink ErrorSink) *Renderer {
	return &Renderer{
		sink:    sink,
		limiter: newReportLimiter(reportWindow),
		log:     logger.Get().Named("column.render"),
	}
}

// SafeRender renders one cell. A panicking or failing renderer yields
// the sentinel error cell and never propagates.
func (r *Renderer) SafeRender(gridName string, col Descriptor, params CellParams) (cell Cell) {
	defer func() {
		if rec := recover(); rec != nil {
			cell = errorCell()
			r.report(gridName, col.Field,
				errors.Newf(errors.ErrorTypeCellRender, "cell renderer panicked: %v", rec).
					WithDetail("grid", gridName).
					WithDetail("field", col.Field))
		}
	}()

	if col.ValueGetter != nil {
		params.Value = col.ValueGetter(params.Row)
	}

	if col.RenderCell != nil {
		c, err := col.RenderCell(params)
		if err != nil {
			r.report(gridName, col.Field,
				errors.Wrap(err, errors.ErrorTypeCellRender, "cell renderer failed").
					WithDetail("grid", gridName).
					WithDetail("field", col.Field))
			return errorCell()
		}
		return c
	}

	if col.ValueFormatter != nil {
		return Cell{Text: col.ValueFormatter(params.Value)}
	}
	return Cell{Text: FormatValue(col, params.Value)}
}

func (r *Renderer) report(gridName, field string, err error) {
	metrics.CellRenderFailures.WithLabelValues(gridName, field).Inc()

	if !r.limiter.allow(gridName + "\x00" + field) {
		return
	}

	r.log.Error("cell render failed",
		zap.String("grid", gridName),
		zap.String("field", field),
		zap.Error(err))
	if r.sink != nil {
		r.sink(err)
	}
}

func errorCell() Cell {
	return Cell{Title: "render error", ClassName: ErrorCellClass}
}

// reportLimiter allows one report per key per window.
type reportLimiter struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
	now    func() time.Time
}

func newReportLimiter(window time.Duration) *reportLimiter {
	return &reportLimiter{
		window: window,
		last:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (l *reportLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if t, ok := l.last[key]; ok && now.Sub(t) < l.window {
		return false
	}
	l.last[key] = now
	return true
}

// FormatValue renders a value as display text per the column type.
func FormatValue(col Descriptor, value interface{}) string {
	if value == nil {
		return ""
	}

	switch col.Type {
	case TypeNumber:
		switch n := value.(type) {
		case float64:
			return strconv.FormatFloat(n, 'f', -1, 64)
		case float32:
			return strconv.FormatFloat(float64(n), 'f', -1, 32)
		case int:
			return strconv.Itoa(n)
		case int64:
			return strconv.FormatInt(n, 10)
		}
	case TypeDate:
		if t, ok := value.(time.Time); ok {
			return t.Format("2006-01-02 15:04:05")
		}
	case TypeBoolean:
		if b, ok := value.(bool); ok {
			if b {
				return "true"
			}
			return "false"
		}
	case TypeSingleSelect:
		want := fmt.Sprintf("%v", value)
		for _, opt := range col.ValueOptions {
			if fmt.Sprintf("%v", opt.Value) == want {
				return opt.Label
			}
		}
	}

	return fmt.Sprintf("%v", value)
}
