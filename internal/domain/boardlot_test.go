package domain

import (
	"errors"
	"testing"

	"nexuscore/internal/money"
)

type fixedCloseLoader struct {
	price money.Money
	ok    bool
}

func (f fixedCloseLoader) LoadPreviousClose(Security) (money.Money, bool) {
	return f.price, f.ok
}

// TestBoardLotReject is spec.md scenario S5: TST.TSXV.CA, previous close
// $0.05, BID LIMIT 700 @ $0.05 must be rejected as not a multiple of 1000.
func TestBoardLotReject(t *testing.T) {
	check := NewBoardLotCheck(fixedCloseLoader{price: money.MustParse("0.05"), ok: true}, nil, nil)
	fields := OrderFields{
		Security:    Security{Symbol: "TST", Market: "TSXV", Country: "CA"},
		Type:        LIMIT,
		Side:        BID,
		Quantity:    700,
		Price:       money.MustParse("0.05"),
		TimeInForce: DAY,
	}
	err := check.Submit(fields)
	if !errors.Is(err, ErrBoardLotViolation) {
		t.Fatalf("expected board lot violation, got %v", err)
	}
}

func TestBoardLotAccepts1000Multiple(t *testing.T) {
	check := NewBoardLotCheck(fixedCloseLoader{price: money.MustParse("0.05"), ok: true}, nil, nil)
	fields := OrderFields{
		Security: Security{Symbol: "TST", Market: "TSXV", Country: "CA"},
		Quantity: 1000,
		Type:     LIMIT,
		Price:    money.MustParse("0.05"),
	}
	if err := check.Submit(fields); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBoardLotNonCanadianIsNoOp(t *testing.T) {
	check := NewBoardLotCheck(fixedCloseLoader{}, nil, nil)
	fields := OrderFields{
		Security: Security{Symbol: "TST", Market: "NYSE", Country: "US"},
		Quantity: 37,
		Type:     LIMIT,
		Price:    money.MustParse("10.00"),
	}
	if err := check.Submit(fields); err != nil {
		t.Fatalf("expected no-op for non-Canadian security, got %v", err)
	}
}

func TestBoardLotDefaultMultiple(t *testing.T) {
	check := NewBoardLotCheck(fixedCloseLoader{price: money.MustParse("10.00"), ok: true}, nil, nil)
	fields := OrderFields{
		Security: Security{Symbol: "TST", Market: "TSX", Country: "CA"},
		Quantity: 150,
		Type:     LIMIT,
		Price:    money.MustParse("10.00"),
	}
	if err := check.Submit(fields); err == nil {
		t.Fatal("expected rejection: 150 is not a multiple of 100")
	}
}
