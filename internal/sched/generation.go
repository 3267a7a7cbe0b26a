package sched

import (
	"context"
	"sync"
)

// Generation hands out a shared context that is cancelled wholesale
// when the owner advances to a new generation. Pending work started
// under an old generation observes cancellation and its results are
// discarded on arrival.
type Generation struct {
	mu     sync.Mutex
	seq    uint64
	ctx    context.Context
	cancel context.CancelFunc
}

// NewGeneration creates a generation rooted at the background context.
func NewGeneration() *Generation {
	ctx, cancel := context.WithCancel(context.Background())
	return &Generation{seq: 1, ctx: ctx, cancel: cancel}
}

// Current returns the live context and its sequence number.
func (g *Generation) Current() (context.Context, uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ctx, g.seq
}

// Advance cancels the live context and starts a new generation.
func (g *Generation) Advance() context.Context {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.cancel()
	g.seq++
	g.ctx, g.cancel = context.WithCancel(context.Background())
	return g.ctx
}

// Live reports whether seq is still the current generation.
func (g *Generation) Live(seq uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.seq == seq
}

// Cancel cancels the live context without starting a new generation.
// Used on teardown.
func (g *Generation) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancel()
}
