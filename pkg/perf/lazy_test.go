package perf

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mounirtms/gridcore/pkg/loader"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type pageLog struct {
	mu        sync.Mutex
	fetched   []int
	committed []int
}

func (l *pageLog) fetchCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fetched)
}

func (l *pageLog) committedPages() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]int, len(l.committed))
	copy(out, l.committed)
	return out
}

func idle(p *LazyPager) func() bool {
	return func() bool { return p.InFlight() == -1 }
}

func TestLazyPagerFetchesMissingPages(t *testing.T) {
	log := &pageLog{}
	p := NewLazyPager(LazyConfig{
		GridName: "orders",
		PageSize: 50,
		Fetch: func(_ context.Context, page int) ([]loader.Row, error) {
			log.mu.Lock()
			log.fetched = append(log.fetched, page)
			log.mu.Unlock()
			return []loader.Row{{"page": page}}, nil
		},
		OnPage: func(page int, _ []loader.Row) {
			log.mu.Lock()
			log.committed = append(log.committed, page)
			log.mu.Unlock()
		},
	})
	defer p.Close()

	// Pages 0 and 1 cover [0, 100); both load in order, one at a time.
	p.SetWindow(Window{Start: 0, End: 100})

	assert.Eventually(t, func() bool {
		return p.Loaded(0) && p.Loaded(1)
	}, time.Second, time.Millisecond)
	assert.Equal(t, []int{0, 1}, log.committedPages())
}

func TestLazyPagerDedupesInFlight(t *testing.T) {
	log := &pageLog{}
	release := make(chan struct{}, 4)
	p := NewLazyPager(LazyConfig{
		GridName: "orders",
		PageSize: 50,
		Fetch: func(ctx context.Context, page int) ([]loader.Row, error) {
			log.mu.Lock()
			log.fetched = append(log.fetched, page)
			log.mu.Unlock()
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return nil, nil
		},
		OnPage: func(page int, _ []loader.Row) {
			log.mu.Lock()
			log.committed = append(log.committed, page)
			log.mu.Unlock()
		},
	})
	defer p.Close()

	p.SetWindow(Window{Start: 0, End: 50})
	assert.Eventually(t, func() bool { return p.InFlight() == 0 }, time.Second, time.Millisecond)

	// Re-entering the same window while page 0 is in flight does not
	// start a second fetch.
	p.SetWindow(Window{Start: 0, End: 50})
	p.SetWindow(Window{Start: 10, End: 60})
	assert.Equal(t, 1, log.fetchCount())

	release <- struct{}{}
	assert.Eventually(t, func() bool { return p.Loaded(0) }, time.Second, time.Millisecond)
}

func TestLazyPagerSingleInFlight(t *testing.T) {
	log := &pageLog{}
	release := make(chan struct{}, 4)
	p := NewLazyPager(LazyConfig{
		GridName: "orders",
		PageSize: 50,
		Fetch: func(ctx context.Context, page int) ([]loader.Row, error) {
			log.mu.Lock()
			log.fetched = append(log.fetched, page)
			log.mu.Unlock()
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return nil, nil
		},
	})
	defer p.Close()

	p.SetWindow(Window{Start: 0, End: 100})
	assert.Eventually(t, func() bool { return p.InFlight() == 0 }, time.Second, time.Millisecond)
	assert.Equal(t, 1, log.fetchCount())

	// Page 1 starts only after page 0 finishes.
	release <- struct{}{}
	assert.Eventually(t, func() bool { return p.InFlight() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 2, log.fetchCount())

	release <- struct{}{}
	assert.Eventually(t, func() bool { return p.Loaded(1) }, time.Second, time.Millisecond)
}

func TestLazyPagerDiscardsPageOutsideWindow(t *testing.T) {
	log := &pageLog{}
	release := make(chan struct{}, 4)
	p := NewLazyPager(LazyConfig{
		GridName: "orders",
		PageSize: 50,
		Overscan: 5,
		Fetch: func(ctx context.Context, page int) ([]loader.Row, error) {
			log.mu.Lock()
			log.fetched = append(log.fetched, page)
			log.mu.Unlock()
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return []loader.Row{{"page": page}}, nil
		},
		OnPage: func(page int, _ []loader.Row) {
			log.mu.Lock()
			log.committed = append(log.committed, page)
			log.mu.Unlock()
		},
	})
	defer p.Close()

	p.SetWindow(Window{Start: 0, End: 50})
	assert.Eventually(t, func() bool { return p.InFlight() == 0 }, time.Second, time.Millisecond)

	// Scroll far away while page 0 is still loading.
	p.SetWindow(Window{Start: 500, End: 550})

	release <- struct{}{}
	assert.Eventually(t, func() bool { return p.InFlight() == 10 }, time.Second, time.Millisecond)
	assert.False(t, p.Loaded(0))

	release <- struct{}{}
	assert.Eventually(t, func() bool { return p.Loaded(10) }, time.Second, time.Millisecond)
	assert.Equal(t, []int{10}, log.committedPages())
}

func TestLazyPagerRetriesWithBackoff(t *testing.T) {
	clock := &fakeClock{t: time.Unix(0, 0)}
	log := &pageLog{}
	p := NewLazyPager(LazyConfig{
		GridName:    "orders",
		PageSize:    50,
		MaxAttempts: 3,
		RetryBase:   time.Second,
		RetryFactor: 2,
		Fetch: func(_ context.Context, page int) ([]loader.Row, error) {
			log.mu.Lock()
			log.fetched = append(log.fetched, page)
			log.mu.Unlock()
			return nil, stderrors.New("upstream down")
		},
	})
	defer p.Close()
	p.now = clock.now

	attempts := func() int {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.attempts[0]
	}

	p.SetWindow(Window{Start: 0, End: 50})
	assert.Eventually(t, func() bool { return attempts() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, idle(p), time.Second, time.Millisecond)

	// Inside the backoff window the page is not retried.
	p.SetWindow(Window{Start: 0, End: 50})
	assert.Equal(t, 1, log.fetchCount())

	clock.advance(1100 * time.Millisecond)
	p.SetWindow(Window{Start: 0, End: 50})
	assert.Eventually(t, func() bool { return attempts() == 2 }, time.Second, time.Millisecond)
	require.Eventually(t, idle(p), time.Second, time.Millisecond)

	// Second retry needs a 2s backoff.
	clock.advance(1100 * time.Millisecond)
	p.SetWindow(Window{Start: 0, End: 50})
	assert.Equal(t, 2, log.fetchCount())

	clock.advance(time.Second)
	p.SetWindow(Window{Start: 0, End: 50})
	assert.Eventually(t, func() bool { return attempts() == 3 }, time.Second, time.Millisecond)
	require.Eventually(t, idle(p), time.Second, time.Millisecond)

	// Attempts are exhausted; the page stays failed until Reset.
	clock.advance(time.Hour)
	p.SetWindow(Window{Start: 0, End: 50})
	assert.Equal(t, 3, log.fetchCount())

	p.Reset()
	p.SetWindow(Window{Start: 0, End: 50})
	assert.Eventually(t, func() bool { return attempts() == 1 }, time.Second, time.Millisecond)
}

func TestLazyPagerCancelDropsResult(t *testing.T) {
	log := &pageLog{}
	release := make(chan struct{}, 4)
	p := NewLazyPager(LazyConfig{
		GridName: "orders",
		PageSize: 50,
		Fetch: func(ctx context.Context, page int) ([]loader.Row, error) {
			log.mu.Lock()
			log.fetched = append(log.fetched, page)
			log.mu.Unlock()
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return []loader.Row{{"page": page}}, nil
		},
		OnPage: func(page int, _ []loader.Row) {
			log.mu.Lock()
			log.committed = append(log.committed, page)
			log.mu.Unlock()
		},
	})
	defer p.Close()

	p.SetWindow(Window{Start: 0, End: 50})
	assert.Eventually(t, func() bool { return p.InFlight() == 0 }, time.Second, time.Millisecond)

	p.Cancel()
	release <- struct{}{}
	require.Eventually(t, idle(p), time.Second, time.Millisecond)
	assert.False(t, p.Loaded(0))
	assert.Empty(t, log.committedPages())

	// The next window entry fetches under the new generation.
	p.SetWindow(Window{Start: 0, End: 50})
	assert.Eventually(t, func() bool { return p.InFlight() == 0 }, time.Second, time.Millisecond)
	release <- struct{}{}
	assert.Eventually(t, func() bool { return p.Loaded(0) }, time.Second, time.Millisecond)
	assert.Equal(t, []int{0}, log.committedPages())
}

func TestLazyPagerMarkLoadedSkipsFetch(t *testing.T) {
	log := &pageLog{}
	p := NewLazyPager(LazyConfig{
		GridName: "orders",
		PageSize: 50,
		Fetch: func(_ context.Context, page int) ([]loader.Row, error) {
			log.mu.Lock()
			log.fetched = append(log.fetched, page)
			log.mu.Unlock()
			return nil, nil
		},
	})
	defer p.Close()

	p.MarkLoaded(0, 1)
	p.SetWindow(Window{Start: 0, End: 100})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, log.fetchCount())
	assert.Equal(t, -1, p.InFlight())
}

func TestLazyPagerResetForgetsPages(t *testing.T) {
	p := NewLazyPager(LazyConfig{
		GridName: "orders",
		PageSize: 50,
		Fetch: func(context.Context, int) ([]loader.Row, error) {
			return nil, nil
		},
	})
	defer p.Close()

	p.MarkLoaded(0)
	require.True(t, p.Loaded(0))

	p.Reset()
	assert.False(t, p.Loaded(0))
}
