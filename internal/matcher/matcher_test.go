package matcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// fakeVenue is a minimal scripted VenueDriver used to drive the matcher's
// submission/report-dispatch goroutines through specific downstream
// timings without a real network or the simulated engine.
type fakeVenue struct {
	mu       sync.Mutex
	orders   map[int64]*domain.PrimitiveOrder
	reports  chan domain.ExecutionReport
	raceFill map[int64]bool
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		orders:   make(map[int64]*domain.PrimitiveOrder),
		reports:  make(chan domain.ExecutionReport, 64),
		raceFill: make(map[int64]bool),
	}
}

func (v *fakeVenue) Reports() <-chan domain.ExecutionReport { return v.reports }

func (v *fakeVenue) Submit(order *domain.PrimitiveOrder) {
	v.mu.Lock()
	v.orders[order.Info().OrderID] = order
	v.mu.Unlock()
	info := order.Info()
	// Like a real VenueDriver, apply the NEW acknowledgement onto the
	// order's own log before publishing it.
	report := domain.ExecutionReport{ID: info.OrderID, Status: domain.New, Timestamp: time.Now()}
	_ = order.Update(report)
	v.reports <- report
}

// Cancel normally acknowledges with CANCELED. For an order id marked via
// markRaceFill, it instead emits a full downstream FILLED report, as if the
// venue's own fill won the race against this cancel request (scenario S4).
func (v *fakeVenue) Cancel(order *domain.PrimitiveOrder) {
	if order == nil {
		return
	}
	id := order.Info().OrderID
	v.mu.Lock()
	race := v.raceFill[id]
	v.mu.Unlock()
	if race {
		fields := order.Info().Fields
		v.reports <- domain.ExecutionReport{
			ID:           id,
			Status:       domain.Filled,
			LastQuantity: fields.Quantity,
			LastPrice:    fields.Price,
			Timestamp:    time.Now(),
		}
		return
	}
	v.reports <- domain.ExecutionReport{ID: id, Status: domain.Canceled, Timestamp: time.Now()}
}

func (v *fakeVenue) Update(order *domain.PrimitiveOrder, report domain.ExecutionReport) {}
func (v *fakeVenue) Recover(order *domain.PrimitiveOrder)                               {}

func (v *fakeVenue) markRaceFill(proxyID int64) {
	v.mu.Lock()
	v.raceFill[proxyID] = true
	v.mu.Unlock()
}

var testSecurity = domain.Security{Symbol: "XYZ", Market: "TEST", Country: "US"}

func newTestOrder(t *testing.T, id int64, side domain.Side, qty int64, price string) *domain.PrimitiveOrder {
	t.Helper()
	p, err := money.Parse(price)
	if err != nil {
		t.Fatalf("parse price %q: %v", price, err)
	}
	return domain.NewPrimitiveOrder(domain.OrderInfo{
		Fields: domain.OrderFields{
			Account:     "acct-1",
			Security:    testSecurity,
			Currency:    "USD",
			Type:        domain.LIMIT,
			Side:        side,
			Destination: "NASDAQ",
			Quantity:    qty,
			Price:       p,
			TimeInForce: domain.DAY,
		},
		SubmissionAccount: "acct-1",
		OrderID:           id,
		Timestamp:         time.Now(),
	})
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %s", timeout)
	}
}

func newTestDriver(venue VenueDriver) (*Driver, context.CancelFunc) {
	d := New(Config{RendezvousTimeout: 300 * time.Millisecond}, venue, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)
	return d, cancel
}

func mustParse(t *testing.T, s string) money.Money {
	t.Helper()
	m, err := money.Parse(s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return m
}

// S3: internal match, full fill of the crossing order. A resting BID LIMIT
// 500@$10.02 is on the book; a new ASK LIMIT 300@$10.02 crosses it at a BBO
// of bid=10.02/ask=10.05. The resting order partially fills 300@$10.02 (its
// 200-share residue re-forwarded downstream); the new order fills in full.
func TestInternalMatch_FullFillOfActive(t *testing.T) {
	venue := newFakeVenue()
	d, cancel := newTestDriver(venue)
	defer cancel()

	d.OnBbo(testSecurity, domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: mustParse(t, "10.02"), Size: 100},
		Ask: domain.Quote{Side: domain.ASK, Price: mustParse(t, "10.05"), Size: 100},
	})

	resting := newTestOrder(t, 1, domain.BID, 500, "10.02")
	d.Submit(resting)
	waitUntil(t, time.Second, func() bool { return resting.Status() == domain.New })

	active := newTestOrder(t, 2, domain.ASK, 300, "10.02")
	d.Submit(active)

	waitUntil(t, time.Second, func() bool { return active.Status() == domain.Filled })
	waitUntil(t, time.Second, func() bool { return resting.Status() == domain.PartiallyFilled })

	activeLast := active.LastReport()
	if activeLast.LastQuantity != 300 {
		t.Fatalf("active last fill quantity = %d, want 300", activeLast.LastQuantity)
	}
	if activeLast.LastPrice.Cmp(mustParse(t, "10.02")) != 0 {
		t.Fatalf("active fill price = %s, want 10.02", activeLast.LastPrice)
	}

	restingLast := resting.LastReport()
	if restingLast.LastQuantity != 300 {
		t.Fatalf("resting last fill quantity = %d, want 300", restingLast.LastQuantity)
	}
	if restingLast.Status != domain.PartiallyFilled {
		t.Fatalf("resting status = %s, want PARTIALLY_FILLED", restingLast.Status)
	}
}

// S4: internal match race-cancel. Same setup as S3, but the resting order's
// downstream leg reports a full FILLED before the matcher's cancel is
// acknowledged. No internal match is recorded for it; the crossing order is
// forwarded to the venue in full instead of being matched internally.
func TestInternalMatch_RaceCancelGoesDownstream(t *testing.T) {
	venue := newFakeVenue()
	d, cancel := newTestDriver(venue)
	defer cancel()

	d.OnBbo(testSecurity, domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: mustParse(t, "10.02"), Size: 100},
		Ask: domain.Quote{Side: domain.ASK, Price: mustParse(t, "10.05"), Size: 100},
	})

	resting := newTestOrder(t, 1, domain.BID, 500, "10.02")
	d.Submit(resting)
	waitUntil(t, time.Second, func() bool { return resting.Status() == domain.New })

	// The resting order's proxy is the first driver-assigned id (1); mark it
	// so its Cancel instead races to a full downstream fill.
	venue.markRaceFill(1)

	active := newTestOrder(t, 2, domain.ASK, 300, "10.02")
	d.Submit(active)

	waitUntil(t, time.Second, func() bool { return resting.Status() == domain.Filled })

	restingLast := resting.LastReport()
	if restingLast.LastQuantity != 500 {
		t.Fatalf("resting fill quantity = %d, want 500 (full downstream fill, no internal match)", restingLast.LastQuantity)
	}

	// The active order was never matched against the resting order — it was
	// forwarded downstream in full under its own proxy and remains NEW until
	// that venue leg reports something. fakeVenue's Submit acks NEW only; no
	// fill was scripted for the active leg's proxy.
	waitUntil(t, time.Second, func() bool { return active.Status() == domain.New })
	if got := active.LastReport().LastQuantity; got != 0 {
		t.Fatalf("active should carry no internal fill, got LastQuantity=%d", got)
	}
}

// Invariant 4 (spec.md §8): an order ineligible for internalization (here, a
// FOK time-in-force, which the eligibility gate excludes) passes straight
// through to the downstream venue untouched; the matcher never assigns it a
// proxy id or books it.
func TestIneligibleOrderPassesThroughUntouched(t *testing.T) {
	venue := newFakeVenue()
	d, cancel := newTestDriver(venue)
	defer cancel()

	fokOrder := domain.NewPrimitiveOrder(domain.OrderInfo{
		Fields: domain.OrderFields{
			Account:     "acct-1",
			Security:    testSecurity,
			Currency:    "USD",
			Type:        domain.LIMIT,
			Side:        domain.BID,
			Destination: "NASDAQ",
			Quantity:    100,
			Price:       mustParse(t, "10.00"),
			TimeInForce: domain.FOK,
		},
		SubmissionAccount: "acct-1",
		OrderID:           11,
		Timestamp:         time.Now(),
	})

	d.Submit(fokOrder)
	waitUntil(t, time.Second, func() bool { return fokOrder.Status() == domain.New })

	venue.mu.Lock()
	_, tracked := venue.orders[11]
	venue.mu.Unlock()
	if !tracked {
		t.Fatalf("ineligible order was not forwarded to the venue directly")
	}

	d.entriesMu.Lock()
	_, hasProxy := d.entries[11]
	d.entriesMu.Unlock()
	if hasProxy {
		t.Fatalf("ineligible order should never receive a matcher-assigned proxy id")
	}
}

// Invariant 5 (spec.md §8): internalization never trades through the public
// market — a crossing order is only matched internally at a price at least
// as good as the current BBO on the resting side; without a BBO recorded
// for the security at all, the order is rejected rather than matched blind.
func TestSubmitRejectsWithoutBbo(t *testing.T) {
	venue := newFakeVenue()
	d, cancel := newTestDriver(venue)
	defer cancel()

	order := newTestOrder(t, 20, domain.BID, 100, "10.00")
	d.Submit(order)

	waitUntil(t, time.Second, func() bool { return order.Status() == domain.Rejected })
	last := order.LastReport()
	if last.AdditionalTags["reason"] != "No BBO available." {
		t.Fatalf("reject reason = %q, want %q", last.AdditionalTags["reason"], "No BBO available.")
	}
}

// Cancel on a resting internalized order is a pure forward: it must not
// synthesize PENDING_CANCEL/CANCELED itself. The real pair arrives back
// through onDownstreamReport once the venue acknowledges, and only then is
// the entry dropped from the book.
func TestCancelForwardsAndAppliesRealTerminal(t *testing.T) {
	venue := newFakeVenue()
	d, cancel := newTestDriver(venue)
	defer cancel()

	d.OnBbo(testSecurity, domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: mustParse(t, "10.02"), Size: 100},
		Ask: domain.Quote{Side: domain.ASK, Price: mustParse(t, "10.05"), Size: 100},
	})

	resting := newTestOrder(t, 1, domain.BID, 500, "10.02")
	d.Submit(resting)
	waitUntil(t, time.Second, func() bool { return resting.Status() == domain.New })

	d.Cancel(resting)
	waitUntil(t, time.Second, func() bool { return resting.Status() == domain.Canceled })

	inspect(d, func() {
		side := *d.books[testSecurity].side(domain.BID)
		for _, e := range side {
			if e.order == resting {
				t.Fatalf("canceled entry should have been removed from the book")
			}
		}
	})
}

// If the venue's own fill wins the race against a client-initiated cancel,
// the real FILLED report must still reach the client order — not be
// silently discarded because cancel() already marked it terminal.
func TestCancelRacingDownstreamFillIsNotDiscarded(t *testing.T) {
	venue := newFakeVenue()
	d, cancel := newTestDriver(venue)
	defer cancel()

	d.OnBbo(testSecurity, domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: mustParse(t, "10.02"), Size: 100},
		Ask: domain.Quote{Side: domain.ASK, Price: mustParse(t, "10.05"), Size: 100},
	})

	resting := newTestOrder(t, 1, domain.BID, 500, "10.02")
	d.Submit(resting)
	waitUntil(t, time.Second, func() bool { return resting.Status() == domain.New })

	// The resting order's proxy is the first driver-assigned id (1); mark it
	// so its downstream Cancel races to a full fill instead of acknowledging
	// the cancel.
	venue.markRaceFill(1)

	d.Cancel(resting)
	waitUntil(t, time.Second, func() bool { return resting.Status() == domain.Filled })

	last := resting.LastReport()
	if last.LastQuantity != 500 {
		t.Fatalf("resting fill quantity = %d, want 500 (the race-winning downstream fill)", last.LastQuantity)
	}
}

// inspect runs fn on the driver's own submission goroutine and blocks until
// it has run, giving the test a data-race-free way to read book state that
// goroutine owns.
func inspect(d *Driver, fn func()) {
	done := make(chan struct{})
	d.push(func() {
		fn()
		close(done)
	})
	<-done
}
