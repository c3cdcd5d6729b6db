package risk

import (
	"sync"

	"nexuscore/internal/money"
)

// ExchangeRateCache wraps an ExchangeRateTable with a per-(from,to) cache,
// resolving the Open Question in spec.md §9 in favor of caching: a live
// rate source is queried at most once per currency pair until an explicit
// SetRate invalidates it. Same-currency pairs never hit the source.
type ExchangeRateCache struct {
	mu     sync.RWMutex
	cache  map[currencyPair]money.Rational
	source ExchangeRateTable
}

type currencyPair struct {
	from, to string
}

// NewExchangeRateCache wraps source. source may be nil if every account is
// configured in a single currency (Rate is then only ever called with
// from == to, which never reaches source).
func NewExchangeRateCache(source ExchangeRateTable) *ExchangeRateCache {
	return &ExchangeRateCache{
		cache:  make(map[currencyPair]money.Rational),
		source: source,
	}
}

// Rate returns the cached or freshly queried conversion factor from -> to.
func (c *ExchangeRateCache) Rate(from, to string) (money.Rational, error) {
	if from == to || from == "" {
		return money.NewRational(1, 1), nil
	}
	pair := currencyPair{from, to}

	c.mu.RLock()
	if rate, ok := c.cache[pair]; ok {
		c.mu.RUnlock()
		return rate, nil
	}
	c.mu.RUnlock()

	rate, err := c.source.Rate(from, to)
	if err != nil {
		return money.Rational{}, err
	}

	c.mu.Lock()
	c.cache[pair] = rate
	c.mu.Unlock()
	return rate, nil
}

// SetRate pushes an explicit rate, overwriting any cached value for the
// pair — the invalidation path spec.md §9 requires of a caching
// implementation.
func (c *ExchangeRateCache) SetRate(from, to string, rate money.Rational) {
	c.mu.Lock()
	c.cache[currencyPair{from, to}] = rate
	c.mu.Unlock()
}
