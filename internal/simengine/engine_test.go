package simengine

import (
	"context"
	"testing"
	"time"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

var fixedClock = time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC)

func testClock() time.Time { return fixedClock }

func newTestOrder(t *testing.T, fields domain.OrderFields, id int64) *domain.PrimitiveOrder {
	t.Helper()
	info := domain.OrderInfo{
		Fields:            fields,
		SubmissionAccount: "ACC1",
		OrderID:           id,
		Timestamp:         fixedClock,
	}
	return domain.NewPrimitiveOrder(info)
}

func runEngine(t *testing.T, e *Engine) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

// drain gives the engine's single goroutine a chance to process queued
// tasks before the test inspects order state.
func drain() {
	time.Sleep(20 * time.Millisecond)
}

// TestSimulatedLimitFill is spec.md scenario S1.
func TestSimulatedLimitFill(t *testing.T) {
	sec := domain.Security{Symbol: "TST", Market: "TSX", Country: "CA"}
	e := New(sec, nil, testClock)
	runEngine(t, e)

	e.OnBbo(domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: money.MustParse("0.99"), Size: 1000},
		Ask: domain.Quote{Side: domain.ASK, Price: money.MustParse("1.00"), Size: 500},
	})
	drain()

	fields := domain.OrderFields{
		Account:     "ACC1",
		Security:    sec,
		Type:        domain.LIMIT,
		Side:        domain.BID,
		Quantity:    100,
		Price:       money.MustParse("1.00"),
		TimeInForce: domain.DAY,
	}
	order := newTestOrder(t, fields, 1)
	e.Submit(order)
	drain()

	reports := order.Reports()
	if len(reports) != 3 {
		t.Fatalf("expected 3 reports, got %d: %+v", len(reports), reports)
	}
	if reports[0].Status != domain.PendingNew || reports[0].Sequence != 0 {
		t.Fatalf("report 0 = %+v", reports[0])
	}
	if reports[1].Status != domain.New || reports[1].Sequence != 1 {
		t.Fatalf("report 1 = %+v", reports[1])
	}
	if reports[2].Status != domain.Filled || reports[2].Sequence != 2 {
		t.Fatalf("report 2 = %+v", reports[2])
	}
	if reports[2].LastQuantity != 100 {
		t.Fatalf("last quantity = %d, want 100", reports[2].LastQuantity)
	}
	if reports[2].LastPrice.Cmp(money.MustParse("1.00")) != 0 {
		t.Fatalf("last price = %s, want 1.00", reports[2].LastPrice)
	}
}

// TestSimulatedMocNoFill is spec.md scenario S2.
func TestSimulatedMocNoFill(t *testing.T) {
	sec := domain.Security{Symbol: "TST", Market: "TSX", Country: "CA"}
	e := New(sec, nil, testClock)
	runEngine(t, e)

	e.OnBbo(domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: money.MustParse("1.00"), Size: 100},
		Ask: domain.Quote{Side: domain.ASK, Price: money.MustParse("1.01"), Size: 100},
	})
	drain()

	fields := domain.OrderFields{
		Account:     "ACC1",
		Security:    sec,
		Type:        domain.MARKET,
		Side:        domain.BID,
		Quantity:    300,
		TimeInForce: domain.MOC,
	}
	order := newTestOrder(t, fields, 2)
	e.Submit(order)
	drain()

	reports := order.Reports()
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports (no fill), got %d: %+v", len(reports), reports)
	}
	if reports[0].Status != domain.PendingNew {
		t.Fatalf("report 0 = %+v", reports[0])
	}
	if reports[1].Status != domain.New {
		t.Fatalf("report 1 = %+v", reports[1])
	}
}

// TestFillQuantityIsBoardLotMultiple is invariant 2: every fill report's
// last_quantity is a positive multiple of the 100-share board lot this
// engine hardcodes.
func TestFillQuantityIsBoardLotMultiple(t *testing.T) {
	sec := domain.Security{Symbol: "TST", Market: "NYSE", Country: "US"}
	e := New(sec, nil, testClock)
	runEngine(t, e)

	e.OnBbo(domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: money.MustParse("10.00"), Size: 1000},
		Ask: domain.Quote{Side: domain.ASK, Price: money.MustParse("10.01"), Size: 1000},
	})
	drain()

	fields := domain.OrderFields{
		Account:     "ACC1",
		Security:    sec,
		Type:        domain.MARKET,
		Side:        domain.BID,
		Quantity:    300,
		TimeInForce: domain.DAY,
	}
	order := newTestOrder(t, fields, 3)
	e.Submit(order)
	drain()

	var filled int64
	for _, r := range order.Reports() {
		if r.LastQuantity > 0 {
			if r.LastQuantity%boardLot != 0 {
				t.Fatalf("fill quantity %d is not a multiple of %d", r.LastQuantity, boardLot)
			}
			filled += r.LastQuantity
		}
	}
	if filled != 300 {
		t.Fatalf("total filled = %d, want 300", filled)
	}
	if order.Status() != domain.Filled {
		t.Fatalf("final status = %s, want FILLED", order.Status())
	}
}

// TestSubmitRejectsWithNoBbo covers the "no BBO available" submission
// rejection path from spec.md §7.
func TestSubmitRejectsWithNoBbo(t *testing.T) {
	sec := domain.Security{Symbol: "TST", Market: "NYSE", Country: "US"}
	e := New(sec, nil, testClock)
	runEngine(t, e)

	fields := domain.OrderFields{
		Account:     "ACC1",
		Security:    sec,
		Type:        domain.LIMIT,
		Side:        domain.BID,
		Quantity:    100,
		Price:       money.MustParse("10.00"),
		TimeInForce: domain.DAY,
	}
	order := newTestOrder(t, fields, 4)
	e.Submit(order)
	drain()

	if order.Status() != domain.Rejected {
		t.Fatalf("status = %s, want REJECTED", order.Status())
	}
}

// TestCancelTransitionsThroughPendingCancel exercises Cancel's
// PENDING_CANCEL -> CANCELED sequence on a still-live order.
func TestCancelTransitionsThroughPendingCancel(t *testing.T) {
	sec := domain.Security{Symbol: "TST", Market: "NYSE", Country: "US"}
	e := New(sec, nil, testClock)
	runEngine(t, e)

	e.OnBbo(domain.BboQuote{
		Bid: domain.Quote{Side: domain.BID, Price: money.MustParse("9.00"), Size: 100},
		Ask: domain.Quote{Side: domain.ASK, Price: money.MustParse("9.05"), Size: 100},
	})
	drain()

	fields := domain.OrderFields{
		Account:     "ACC1",
		Security:    sec,
		Type:        domain.LIMIT,
		Side:        domain.BID,
		Quantity:    100,
		Price:       money.MustParse("8.00"), // below ask, never crosses
		TimeInForce: domain.DAY,
	}
	order := newTestOrder(t, fields, 5)
	e.Submit(order)
	drain()
	e.Cancel(order)
	drain()

	reports := order.Reports()
	last := reports[len(reports)-1]
	if last.Status != domain.Canceled {
		t.Fatalf("final status = %s, want CANCELED", last.Status)
	}
	prev := reports[len(reports)-2]
	if prev.Status != domain.PendingCancel {
		t.Fatalf("penultimate status = %s, want PENDING_CANCEL", prev.Status)
	}
}
