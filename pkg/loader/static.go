package loader

import (
	"context"
	"sync"
	"time"
)

// Static serves queries from an in-memory row set using the shared
// query engine. It backs demos and tests, and stands in for a real
// backend when exercising server-side pagination.
type Static struct {
	mu      sync.RWMutex
	rows    []Row
	opts    EngineOptions
	latency time.Duration
}

// NewStatic builds a static loader over rows. The slice is copied so
// later mutations by the caller do not leak into served results.
func NewStatic(rows []Row, opts EngineOptions) *Static {
	s := &Static{opts: opts}
	s.SetRows(rows)
	return s
}

// SetRows replaces the served row set.
func (s *Static) SetRows(rows []Row) {
	copied := make([]Row, len(rows))
	copy(copied, rows)

	s.mu.Lock()
	s.rows = copied
	s.mu.Unlock()
}

// SetLatency makes every Load wait the given duration before
// answering, honoring context cancellation. Zero disables the delay.
func (s *Static) SetLatency(d time.Duration) {
	s.mu.Lock()
	s.latency = d
	s.mu.Unlock()
}

// Load evaluates the query against the current row set.
func (s *Static) Load(ctx context.Context, q Query) (Result, error) {
	if err := q.Validate(); err != nil {
		return Result{}, err
	}

	s.mu.RLock()
	rows := s.rows
	opts := s.opts
	latency := s.latency
	s.mu.RUnlock()

	if latency > 0 {
		timer := time.NewTimer(latency)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	page, total := ApplyQuery(rows, q, opts)
	return Result{Rows: page, TotalCount: total}, nil
}
