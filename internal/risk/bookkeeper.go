package risk

import (
	"sync"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// Inventory is one account's running position and accumulated P&L in a
// single security, carried in that security's native currency. Position is
// signed: positive is long, negative is short. CostBasis carries the same
// sign as Position (it is the running cost of the open position, not a
// per-share average).
type Inventory struct {
	Security         domain.Security
	Currency         string
	Position         int64
	CostBasis        money.Money
	RealizedPnL      money.Money
	Fees             money.Money
	Volume           int64
	TransactionCount int64
}

// AveragePrice returns the running average cost per share of the current
// position, or money.Zero if flat.
func (inv Inventory) AveragePrice() money.Money {
	if inv.Position == 0 {
		return money.Zero
	}
	return inv.CostBasis.Abs().MulRational(money.NewRational(1, abs64(inv.Position)))
}

// UnrealizedPnL marks the open position to mark, positive for a long
// position above its average cost and for a short position below it.
func (inv Inventory) UnrealizedPnL(mark money.Money) money.Money {
	if inv.Position == 0 {
		return money.Zero
	}
	return mark.Sub(inv.AveragePrice()).MulInt64(inv.Position)
}

func abs64(q int64) int64 {
	if q < 0 {
		return -q
	}
	return q
}

// Bookkeeper implements true-average position accounting: a trade that
// reduces (or flattens through) an existing position realizes P&L against
// the running average cost for the reduced portion; any leftover quantity
// establishes or extends a new average at the trade price. Fees and volume
// accumulate unconditionally, regardless of direction. Grounded on
// original_source TrueAverageBookkeeper.hpp's RecordTransaction, simplified
// to one currency per Bookkeeper instance — internal/risk.Controller keeps
// one Bookkeeper per account and handles cross-currency aggregation itself
// via ExchangeRateTable.
type Bookkeeper struct {
	mu          sync.Mutex
	inventories map[domain.Security]*Inventory
}

// NewBookkeeper constructs an empty Bookkeeper.
func NewBookkeeper() *Bookkeeper {
	return &Bookkeeper{inventories: make(map[domain.Security]*Inventory)}
}

func (b *Bookkeeper) entry(security domain.Security) *Inventory {
	inv, ok := b.inventories[security]
	if !ok {
		inv = &Inventory{Security: security}
		b.inventories[security] = inv
	}
	return inv
}

// RecordTransaction applies one fill to the security's inventory. side is
// the trade's own side (BID = bought, ASK = sold); quantity and price are
// always positive — the trade's direction comes from side alone. currency
// is the security's trading currency, stamped onto the inventory the first
// time it's seen.
func (b *Bookkeeper) RecordTransaction(security domain.Security, currency string, side domain.Side, quantity int64, price, fees money.Money) {
	b.mu.Lock()
	defer b.mu.Unlock()

	inv := b.entry(security)
	if inv.Currency == "" {
		inv.Currency = currency
	}
	inv.Fees = inv.Fees.Add(fees)
	inv.Volume += quantity
	inv.TransactionCount++
	if quantity == 0 {
		return
	}

	direction := int64(1)
	if side == domain.ASK {
		direction = -1
	}
	signedQty := direction * quantity
	remaining := quantity

	if (inv.Position > 0 && signedQty < 0) || (inv.Position < 0 && signedQty > 0) {
		avgPrice := inv.AveragePrice()
		reduction := min64(remaining, abs64(inv.Position))

		grossDelta := price.Sub(avgPrice).MulInt64(reduction * -direction)
		quantityDelta := direction * reduction
		costBasisDelta := avgPrice.MulInt64(quantityDelta)

		inv.RealizedPnL = inv.RealizedPnL.Add(grossDelta)
		inv.Position += quantityDelta
		inv.CostBasis = inv.CostBasis.Add(costBasisDelta)
		remaining -= reduction
		if remaining == 0 {
			return
		}
	}

	quantityDelta := direction * remaining
	costBasisDelta := price.MulInt64(quantityDelta)
	inv.Position += quantityDelta
	inv.CostBasis = inv.CostBasis.Add(costBasisDelta)
}

// Inventory returns a copy of the current inventory for security (zero
// value, not yet tracked, if no transaction has been recorded for it).
func (b *Bookkeeper) Inventory(security domain.Security) Inventory {
	b.mu.Lock()
	defer b.mu.Unlock()
	if inv, ok := b.inventories[security]; ok {
		return *inv
	}
	return Inventory{Security: security}
}

// Inventories returns a copy of every tracked security's inventory.
func (b *Bookkeeper) Inventories() []Inventory {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Inventory, 0, len(b.inventories))
	for _, inv := range b.inventories {
		out = append(out, *inv)
	}
	return out
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
