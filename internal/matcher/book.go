package matcher

import (
	"sort"
	"sync"
	"time"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// marketBidCeiling stands in for the source's Money::max: a price no real
// resting ask will ever reach, used only so a MARKET BID's offer price
// always compares as crossing every resting ask under OfferComparator.
// MARKET ASK instead offers money.Zero, which crosses every resting bid.
var marketBidCeiling = money.New(1_000_000_000_000_000)

// offerPriceOf returns the price entry offers for matching purposes:
// mirrors Details::GetOfferPrice in original_source
// InternalMatchingOrderExecutionDriver.hpp.
func offerPriceOf(entry *bookEntry) money.Money {
	return offerPrice(entry.order.Info().Fields)
}

func offerPrice(fields domain.OrderFields) money.Money {
	if fields.Type == domain.MARKET {
		if fields.Side == domain.BID {
			return marketBidCeiling
		}
		return money.Zero
	}
	return fields.Price
}

// bookEntry tracks one internalized, still-unmatched order resting in a
// securityBook: its own PrimitiveOrder, whether/how it has been forwarded
// downstream, its remaining unmatched quantity, and the isLive/isTerminal
// rendezvous latches InternalMatch waits on. Grounded on original_source
// InternalMatchingOrderExecutionDriver.hpp's OrderEntry.
type bookEntry struct {
	order   *domain.PrimitiveOrder
	arrival time.Time

	mu        sync.Mutex
	remaining int64
	matching  bool
	proxy     *domain.PrimitiveOrder // current downstream leg carrying the residual quantity; nil if none outstanding
	driverID  int64                  // proxy's order id, distinct from order's own client-facing id

	isLive     *latch
	isTerminal *latch
}

func newBookEntry(order *domain.PrimitiveOrder, now time.Time) *bookEntry {
	return &bookEntry{
		order:      order,
		arrival:    now,
		remaining:  order.Info().Fields.Quantity,
		isLive:     newLatch(),
		isTerminal: newLatch(),
	}
}

func (e *bookEntry) setMatching(v bool) {
	e.mu.Lock()
	e.matching = v
	e.mu.Unlock()
}

func (e *bookEntry) IsMatching() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.matching
}

func (e *bookEntry) setRemaining(q int64) {
	e.mu.Lock()
	e.remaining = q
	e.mu.Unlock()
}

func (e *bookEntry) Remaining() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.remaining
}

// rebind replaces the downstream leg this entry is tracked by, returning the
// previous driver id (0 if none) so the caller can retire its registration
// in the driver-id -> entry lookup table.
func (e *bookEntry) rebind(proxy *domain.PrimitiveOrder, driverID int64) (prevID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	prevID = e.driverID
	e.proxy = proxy
	e.driverID = driverID
	e.isLive = newLatch()
	e.isTerminal = newLatch()
	return prevID
}

func (e *bookEntry) proxyOrder() *domain.PrimitiveOrder {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.proxy
}

func (e *bookEntry) currentDriverID() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.driverID
}

func (e *bookEntry) liveLatch() *latch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isLive
}

func (e *bookEntry) terminalLatch() *latch {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isTerminal
}

// securityBook holds the live, unmatched internalized orders for one
// security, sorted on each side best-offer-first (price, then earliest
// arrival, then lowest order id), plus the latched BBO used as the
// price-improvement threshold check before a new order is allowed to walk
// the passive side.
type securityBook struct {
	bids []*bookEntry
	asks []*bookEntry
	bbo  *domain.BboLatch
}

func newSecurityBook() *securityBook {
	return &securityBook{bbo: &domain.BboLatch{}}
}

func (b *securityBook) side(s domain.Side) *[]*bookEntry {
	if s == domain.BID {
		return &b.bids
	}
	return &b.asks
}

// insert adds entry to the side it rests on, keeping the slice sorted best
// first.
func (b *securityBook) insert(side domain.Side, entry *bookEntry) {
	s := b.side(side)
	*s = append(*s, entry)
	sort.SliceStable(*s, func(i, j int) bool {
		pi := offerPriceOf((*s)[i])
		pj := offerPriceOf((*s)[j])
		cmp := domain.OfferComparator(side, pi, pj)
		if cmp != 0 {
			return cmp > 0
		}
		if !(*s)[i].arrival.Equal((*s)[j].arrival) {
			return (*s)[i].arrival.Before((*s)[j].arrival)
		}
		return (*s)[i].order.Info().OrderID < (*s)[j].order.Info().OrderID
	})
}

// remove deletes entry from side's slice, if present.
func (b *securityBook) remove(side domain.Side, entry *bookEntry) {
	s := b.side(side)
	for i, e := range *s {
		if e == entry {
			*s = append((*s)[:i], (*s)[i+1:]...)
			return
		}
	}
}
