// Package money implements the fixed-point currency type shared by every
// subsystem: the fee tables, the simulated engine's fill prices, and the
// risk controller's portfolio arithmetic all trade in Money, never float64.
package money

import (
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// scale is the number of fractional digits Money carries, per spec: 6.
const scale = 6

// Money is a total-ordered fixed-point decimal with 6 fractional digits.
type Money struct {
	d decimal.Decimal
}

var (
	// Zero is 0.000000.
	Zero = Money{d: decimal.Zero}
	// One is 1.000000.
	One = Money{d: decimal.New(1, 0)}
	// Cent is 0.010000.
	Cent = Money{d: decimal.New(1, -2)}
)

// New constructs a Money from an integer number of millionths (so
// New(1_000_000) == One).
func New(millionths int64) Money {
	return Money{d: decimal.New(millionths, -scale)}
}

// Parse parses a decimal string such as "1.00" or "0.0001" into Money,
// rounding to 6 fractional digits.
func Parse(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	return Money{d: d.Round(scale)}, nil
}

// MustParse is Parse but panics on error; used for package-level constants
// derived from literal configuration values.
func MustParse(s string) Money {
	m, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) Add(o Money) Money { return Money{d: m.d.Add(o.d)} }
func (m Money) Sub(o Money) Money { return Money{d: m.d.Sub(o.d)} }
func (m Money) Neg() Money        { return Money{d: m.d.Neg()} }

// Cmp returns -1, 0, or 1 as m is less than, equal to, or greater than o.
func (m Money) Cmp(o Money) int { return m.d.Cmp(o.d) }

func (m Money) LessThan(o Money) bool           { return m.Cmp(o) < 0 }
func (m Money) LessThanOrEqual(o Money) bool    { return m.Cmp(o) <= 0 }
func (m Money) GreaterThan(o Money) bool        { return m.Cmp(o) > 0 }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Cmp(o) >= 0 }
func (m Money) IsZero() bool                    { return m.d.IsZero() }
func (m Money) IsPositive() bool                { return m.d.Sign() > 0 }
func (m Money) IsNegative() bool                { return m.d.Sign() < 0 }

// MulInt64 multiplies Money by a plain integer quantity (e.g. a share count).
func (m Money) MulInt64(q int64) Money {
	return Money{d: m.d.Mul(decimal.New(q, 0))}
}

// MulFloat multiplies Money by a float64. The consolidated-fee dispatcher
// uses MulRational for its SEC/NSCC rates; callers should prefer
// MulRational whenever the rate is exact.
func (m Money) MulFloat(f float64) Money {
	return Money{d: m.d.Mul(decimal.NewFromFloat(f))}
}

// Abs returns the absolute value.
func (m Money) Abs() Money {
	if m.IsNegative() {
		return m.Neg()
	}
	return m
}

// Rational is an exact fractional rate (e.g. the SEC or NSCC rate), backed by
// math/big since no example in the corpus carries an exact-rational library
// and the rates here must not accumulate floating-point drift across many
// fills.
type Rational struct {
	r *big.Rat
}

// NewRational builds a Rational num/den.
func NewRational(num, den int64) Rational {
	return Rational{r: big.NewRat(num, den)}
}

// MulRational multiplies Money by an exact rational rate, e.g. notional ×
// sec_rate.
func (m Money) MulRational(r Rational) Money {
	if r.r == nil {
		return Zero
	}
	rd := decimal.NewFromBigInt(r.r.Num(), 0).Div(decimal.NewFromBigInt(r.r.Denom(), 0))
	return Money{d: m.d.Mul(rd)}
}

// Ceil rounds m up (away from zero is not used here — fee ceilings are
// always applied to non-negative amounts) to the given number of decimal
// places, matching the source's `Ceil(money, decimal_places)` primitive used
// by the consolidated US processing-fee formula.
func Ceil(m Money, places int32) Money {
	factor := decimal.New(1, -places)
	divided := m.d.Div(factor)
	ceiled := divided.Ceil()
	return Money{d: ceiled.Mul(factor)}
}

// String renders Money with 6 fractional digits.
func (m Money) String() string {
	return m.d.StringFixed(scale)
}

// Float64 returns an approximate float64 representation, for logging and
// metrics only — never for arithmetic that feeds back into the ledger.
func (m Money) Float64() float64 {
	f, _ := m.d.Float64()
	return f
}
