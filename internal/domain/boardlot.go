package domain

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nexuscore/internal/money"
)

// PreviousCloseLoader looks up the most recent previous close for a
// security. It is an external-collaborator contract (SPEC_FULL.md §6) —
// the market-data infrastructure that backs it is out of scope here.
type PreviousCloseLoader interface {
	LoadPreviousClose(security Security) (money.Money, bool)
}

// closingCacheEntry mirrors the source's ClosingEntry: a cached previous
// close with a 1-hour TTL, grounded on original_source BoardLotCheck.hpp.
type closingCacheEntry struct {
	lastUpdate time.Time
	price      money.Money
}

// BoardLotCheck validates, for TSX/TSXV securities only, that an order's
// quantity is a legal multiple of the board lot implied by the security's
// current price. Non-Canadian securities are always accepted.
type BoardLotCheck struct {
	closes PreviousCloseLoader
	bbo    func(Security) (*BboLatch, bool)
	logger *slog.Logger

	mu      sync.Mutex
	cache   map[Security]closingCacheEntry
	ttl     time.Duration
}

// NewBoardLotCheck constructs a check. bboLookup resolves the latched BBO
// for a security when no previous close is cached or available; it may be
// nil if the caller never expects that fallback to be exercised.
func NewBoardLotCheck(closes PreviousCloseLoader, bboLookup func(Security) (*BboLatch, bool), logger *slog.Logger) *BoardLotCheck {
	return &BoardLotCheck{
		closes: closes,
		bbo:    bboLookup,
		logger: logger,
		cache:  make(map[Security]closingCacheEntry),
		ttl:    time.Hour,
	}
}

const (
	tsxMarket  = "TSX"
	tsxvMarket = "TSXV"
)

// Submit validates fields.Quantity against the board lot. Returns nil if
// the security is not TSX/TSXV (the check is a no-op elsewhere), or a
// human-readable rejection error naming the required multiple.
func (c *BoardLotCheck) Submit(fields OrderFields) error {
	market := fields.Security.Market
	if market != tsxMarket && market != tsxvMarket {
		return nil
	}

	price := c.loadPrice(fields.Security)
	switch {
	case price.LessThanOrEqual(money.MustParse("0.10")):
		if fields.Quantity%1000 != 0 {
			return fmt.Errorf("%w: Quantity must be a multiple of 1000.", ErrBoardLotViolation)
		}
	case price.LessThan(money.One):
		if fields.Quantity%500 != 0 {
			return fmt.Errorf("%w: Quantity must be a multiple of 500.", ErrBoardLotViolation)
		}
	default:
		if fields.Quantity%100 != 0 {
			return fmt.Errorf("%w: Quantity must be a multiple of 100.", ErrBoardLotViolation)
		}
	}
	return nil
}

// loadPrice returns the cached previous close (refreshing if stale), or
// falls back to the latched BBO bid if no previous close is available.
func (c *BoardLotCheck) loadPrice(sec Security) money.Money {
	c.mu.Lock()
	entry, ok := c.cache[sec]
	now := time.Now()
	if !ok || now.Sub(entry.lastUpdate) > c.ttl {
		price := money.Zero
		if c.closes != nil {
			if p, found := c.closes.LoadPreviousClose(sec); found {
				price = p
			} else if c.logger != nil {
				c.logger.Warn("no previous close available", "security", sec.String())
			}
		}
		entry = closingCacheEntry{lastUpdate: now, price: price}
		c.cache[sec] = entry
	}
	c.mu.Unlock()

	if !entry.price.IsZero() {
		return entry.price
	}
	if c.bbo != nil {
		if latch, ok := c.bbo(sec); ok {
			if q, err := latch.Top(); err == nil {
				return q.Bid.Price
			}
		}
	}
	return money.Zero
}
