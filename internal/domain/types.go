// Package domain defines the shared data model used by every subsystem:
// the simulated engine, the internal-matching driver, the fee tables, and
// the risk controller. It has no dependency on any other internal package,
// so it can be imported by all of them — the same role pkg/types plays in
// the teacher repository, just for exchange-grade order semantics instead
// of Polymarket's prediction-market wire format.
package domain

import (
	"time"

	"nexuscore/internal/money"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side is the direction of an order or a resting book entry.
type Side string

const (
	BID  Side = "BID"
	ASK  Side = "ASK"
	NONE Side = "NONE"
)

// Opposite returns the contra side, or NONE if s is NONE.
func (s Side) Opposite() Side {
	switch s {
	case BID:
		return ASK
	case ASK:
		return BID
	default:
		return NONE
	}
}

// OfferComparator returns the sign of "which of p1, p2 is the better offer
// for side s". For BID, higher prices are better (sign of p1-p2); for ASK,
// lower prices are better (sign of p2-p1). Used both to sort each side of a
// book (best first) and to test price-improvement thresholds.
func OfferComparator(s Side, p1, p2 money.Money) int {
	switch s {
	case BID:
		return p1.Cmp(p2)
	case ASK:
		return p2.Cmp(p1)
	default:
		return 0
	}
}

// OrderType enumerates the order lifecycles this core understands.
type OrderType string

const (
	LIMIT  OrderType = "LIMIT"
	MARKET OrderType = "MARKET"
	PEGGED OrderType = "PEGGED"
	STOP   OrderType = "STOP"
)

// TimeInForce controls how long an order remains eligible to trade.
type TimeInForce string

const (
	DAY TimeInForce = "DAY"
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	GTX TimeInForce = "GTX"
	GTD TimeInForce = "GTD"
	MOC TimeInForce = "MOC"
	OPG TimeInForce = "OPG"
	FOK TimeInForce = "FOK"
)

// Security identifies a tradeable instrument by symbol, listing market, and
// country. Equality and hashing are over all three fields, which Go structs
// give for free — a Security is directly usable as a map key.
type Security struct {
	Symbol  string
	Market  string
	Country string
}

func (s Security) String() string {
	return s.Symbol + "." + s.Market + "." + s.Country
}

// OrderStatus is the lifecycle state of an order, derived from the status of
// its most recent ExecutionReport.
type OrderStatus string

const (
	PendingNew       OrderStatus = "PENDING_NEW"
	New              OrderStatus = "NEW"
	PartiallyFilled  OrderStatus = "PARTIALLY_FILLED"
	Filled           OrderStatus = "FILLED"
	PendingCancel    OrderStatus = "PENDING_CANCEL"
	Canceled         OrderStatus = "CANCELED"
	Rejected         OrderStatus = "REJECTED"
	Expired          OrderStatus = "EXPIRED"
	Suspended        OrderStatus = "SUSPENDED"
	Stopped          OrderStatus = "STOPPED"
	DoneForDay       OrderStatus = "DONE_FOR_DAY"
)

// IsTerminal reports whether status is one from which no further reports may
// be appended.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case Canceled, Rejected, Expired, Filled, DoneForDay:
		return true
	default:
		return false
	}
}

// ————————————————————————————————————————————————————————————————————————
// Orders
// ————————————————————————————————————————————————————————————————————————

// OrderFields is the caller-supplied description of an order to submit.
type OrderFields struct {
	Account     string
	Security    Security
	Currency    string
	Type        OrderType
	Side        Side
	Destination string
	Quantity    int64
	Price       money.Money // only meaningful for LIMIT
	TimeInForce TimeInForce
	Tags        map[string]string
}

// Validate enforces the submission invariants: quantity must be positive,
// and LIMIT orders must carry a positive price.
func (f OrderFields) Validate() error {
	if f.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if f.Type == LIMIT && !f.Price.IsPositive() {
		return ErrInvalidLimitPrice
	}
	return nil
}

// WithQuantity returns a copy of f with a different quantity, used by the
// internal matcher to forward a residue to the downstream venue. The copy
// shares f's Tags map.
func (f OrderFields) WithQuantity(q int64) OrderFields {
	c := f
	c.Quantity = q
	return c
}

// OrderInfo is the immutable record of an accepted order.
type OrderInfo struct {
	Fields           OrderFields
	SubmissionAccount string
	OrderID          int64
	ShortingFlag     bool
	Timestamp        time.Time
}

// ExecutionReport is one entry in an order's append-only report log.
type ExecutionReport struct {
	ID             int64
	Sequence       int64
	Timestamp      time.Time
	Status         OrderStatus
	LastQuantity   int64
	LastPrice      money.Money
	LiquidityFlag  string
	LastMarket     string
	ExecutionFee   money.Money
	ProcessingFee  money.Money
	Commission     money.Money
	AdditionalTags map[string]string
}

// BuildUpdatedReport clones prev, zeroes the fill-specific fields, bumps the
// sequence, stamps now (unless the caller wants to preserve a different
// timestamp — callers needing that set Timestamp after calling this), and
// sets the new status. This mirrors the source's `build_updated_report`
// helper used for administrative (non-trade) transitions.
func BuildUpdatedReport(prev ExecutionReport, newStatus OrderStatus, now time.Time) ExecutionReport {
	next := prev
	next.LastQuantity = 0
	next.LastPrice = money.Zero
	next.LiquidityFlag = ""
	next.Sequence = prev.Sequence + 1
	next.Timestamp = now
	next.Status = newStatus
	next.AdditionalTags = nil
	return next
}

// ————————————————————————————————————————————————————————————————————————
// BBO
// ————————————————————————————————————————————————————————————————————————

// Quote is one side of a BboQuote.
type Quote struct {
	Side  Side
	Price money.Money
	Size  int64
}

// BboQuote is a point-in-time best-bid-best-offer snapshot for a security.
type BboQuote struct {
	Bid       Quote
	Ask       Quote
	Timestamp time.Time
}
