package matcher

import (
	"context"
	"sync"
)

// latch is a level-triggered, signal-once gate: the Go channel-based
// analogue to the condition variable the original source waits on for its
// is_live/is_terminal rendezvous (spec.md §9 REDESIGN FLAGS). Signal may be
// called more than once safely; only the first has effect. Wait composes
// with context.Context so a stuck downstream venue times out one pairing
// attempt instead of blocking the matcher's submission goroutine forever.
type latch struct {
	once sync.Once
	ch   chan struct{}
}

func newLatch() *latch {
	return &latch{ch: make(chan struct{})}
}

// Signal releases every current and future Wait call. Idempotent.
func (l *latch) Signal() {
	l.once.Do(func() { close(l.ch) })
}

// Wait blocks until Signal has been called or ctx is done, whichever comes
// first.
func (l *latch) Wait(ctx context.Context) error {
	select {
	case <-l.ch:
		return nil
	case <-ctx.Done():
		return ErrRendezvousTimeout
	}
}

// Signaled reports whether Signal has already been called, without
// blocking.
func (l *latch) Signaled() bool {
	select {
	case <-l.ch:
		return true
	default:
		return false
	}
}
