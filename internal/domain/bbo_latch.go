package domain

import "sync"

// BboLatch holds only the most recently observed BboQuote for one security.
// It is single-writer (fed from a market-data subscription) and
// many-reader. A broken feed is latched as a one-shot sentinel: the next
// Top() call after Break() returns ErrBboBroken, and every call thereafter
// returns ErrBboUnavailable since there is nothing further to observe.
type BboLatch struct {
	mu          sync.Mutex
	quote       *BboQuote
	breakPending bool // Break() called, not yet observed by a Top()
	dead        bool // break already observed; latch is permanently unavailable
	seen        bool
}

// Set publishes a new quote, overwriting any previous one. Set after a
// break has no effect: once broken, a latch never resumes in this model
// (callers resubscribe to get a fresh BboLatch).
func (l *BboLatch) Set(q BboQuote) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dead || l.breakPending {
		return
	}
	cp := q
	l.quote = &cp
	l.seen = true
}

// Break marks the feed as broken. The next Top() call observes this once;
// every call thereafter reports unavailability instead, since a broken
// feed never resumes on its own in this model.
func (l *BboLatch) Break() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.breakPending = true
}

// Top returns the latest quote. If no quote has ever been observed, it
// returns ErrBboUnavailable (a no-op wait, per SPEC_FULL.md §4.1: "the
// latched BBO being empty at submit time produces no fills"). If the feed
// broke, the first call after the break returns ErrBboBroken exactly once;
// every call after that returns ErrBboUnavailable permanently, even if a
// quote had been observed before the break.
func (l *BboLatch) Top() (BboQuote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.breakPending {
		l.breakPending = false
		l.dead = true
		return BboQuote{}, ErrBboBroken
	}
	if l.dead || !l.seen {
		return BboQuote{}, ErrBboUnavailable
	}
	return *l.quote, nil
}
