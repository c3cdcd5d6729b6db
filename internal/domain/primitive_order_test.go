package domain

import (
	"testing"
	"time"

	"nexuscore/internal/money"
)

func testOrderInfo() OrderInfo {
	return OrderInfo{
		Fields: OrderFields{
			Account:     "acct-1",
			Security:    Security{Symbol: "TST", Market: "TSX", Country: "CA"},
			Type:        LIMIT,
			Side:        BID,
			Quantity:    100,
			Price:       money.MustParse("1.00"),
			TimeInForce: DAY,
		},
		OrderID:   42,
		Timestamp: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestPrimitiveOrderInitialReport(t *testing.T) {
	po := NewPrimitiveOrder(testOrderInfo())
	reports := po.Reports()
	if len(reports) != 1 {
		t.Fatalf("expected 1 report, got %d", len(reports))
	}
	if reports[0].Status != PendingNew || reports[0].Sequence != 0 {
		t.Errorf("unexpected initial report: %+v", reports[0])
	}
	if po.Status() != PendingNew {
		t.Errorf("expected PENDING_NEW, got %s", po.Status())
	}
}

func TestPrimitiveOrderSequenceMonotone(t *testing.T) {
	po := NewPrimitiveOrder(testOrderInfo())
	if err := po.Update(ExecutionReport{Status: New, Timestamp: time.Now()}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := po.Update(ExecutionReport{Sequence: 1, Status: Filled, Timestamp: time.Now()}); err == nil {
		t.Fatal("expected sequence reuse to be rejected")
	}
}

func TestPrimitiveOrderTerminalRejectsFurtherAppends(t *testing.T) {
	po := NewPrimitiveOrder(testOrderInfo())
	_ = po.Update(ExecutionReport{Status: New, Timestamp: time.Now()})
	_ = po.Update(ExecutionReport{Status: Filled, LastQuantity: 100, Timestamp: time.Now()})
	if err := po.Update(ExecutionReport{Status: Canceled, Timestamp: time.Now()}); err != ErrOrderTerminal {
		t.Fatalf("expected ErrOrderTerminal, got %v", err)
	}
}

func TestPrimitiveOrderWithAppendsUnderLock(t *testing.T) {
	po := NewPrimitiveOrder(testOrderInfo())
	po.With(func(status OrderStatus, reports []ExecutionReport, append func(ExecutionReport) error) {
		if status != PendingNew {
			t.Errorf("expected PENDING_NEW, got %s", status)
		}
		if err := append(ExecutionReport{Status: New, Timestamp: time.Now()}); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
	if po.Status() != New {
		t.Errorf("expected NEW after With, got %s", po.Status())
	}
}

func TestBuildUpdatedReport(t *testing.T) {
	prev := ExecutionReport{
		Sequence:      2,
		Status:        New,
		LastQuantity:  100,
		LastPrice:     money.MustParse("1.00"),
		LiquidityFlag: "1",
	}
	now := time.Now()
	next := BuildUpdatedReport(prev, Canceled, now)
	if next.Sequence != 3 {
		t.Errorf("expected sequence 3, got %d", next.Sequence)
	}
	if next.Status != Canceled {
		t.Errorf("expected CANCELED, got %s", next.Status)
	}
	if next.LastQuantity != 0 || !next.LastPrice.IsZero() || next.LiquidityFlag != "" {
		t.Errorf("expected fill fields zeroed, got %+v", next)
	}
	if !next.Timestamp.Equal(now) {
		t.Errorf("expected timestamp %v, got %v", now, next.Timestamp)
	}
}
