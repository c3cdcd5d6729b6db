// Package risk implements the per-account risk control loop: a
// consolidated monitor that tracks each managed account's multi-currency
// portfolio, evaluates a risk-state predicate against admin-configured
// parameters, publishes RiskState transitions, and issues flattening
// orders on entering CLOSE_ORDERS. Grounded on original_source
// RiskServlet.hpp (per-account task-queue wiring, lifecycle shape) and
// TrueAverageBookkeeper.hpp (portfolio accounting, in bookkeeper.go); kept
// in the shape of the teacher's risk/manager.go Manager — a select-loop
// goroutine over a report channel and a periodic re-evaluation tick,
// generalized from a single USD kill-switch predicate to the full
// ACTIVE/CLOSE_ORDERS/DISABLED state machine.
package risk

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
	"nexuscore/internal/telemetry"
)

// newOrderIDGenerator returns a closure producing a process-local stream of
// distinct flattening-order ids, independent of any client-facing order id
// namespace.
func newOrderIDGenerator() func() int64 {
	var counter atomic.Int64
	return func() int64 { return counter.Add(1) }
}

// AllowedState is both the admin-configured ceiling on an account's state
// (RiskParameters.AllowedState) and the type carried by a published
// RiskState.
type AllowedState string

const (
	StateNone        AllowedState = "NONE"
	StateActive      AllowedState = "ACTIVE"
	StateCloseOrders AllowedState = "CLOSE_ORDERS"
	StateDisabled    AllowedState = "DISABLED"
)

// Account identifies one managed account and its administrative group.
type Account struct {
	ID    string
	Group string
}

// RiskParameters are the admin-configured risk limits for one account, per
// spec.md §3/§6.
type RiskParameters struct {
	Currency       string
	BuyingPower    money.Money
	AllowedState   AllowedState
	NetLoss        money.Money
	LossFromTop    money.Money
	TransitionTime time.Duration
}

// RiskState is the published risk-state transition for one account.
type RiskState struct {
	Type   AllowedState
	Expiry time.Time // zero if this state has no automatic expiry
}

// AccountRiskState pairs a published RiskState with the account it
// belongs to, the shape the controller's state channel emits.
type AccountRiskState struct {
	Account Account
	State   RiskState
}

// Fill is one executed trade reported to the controller for bookkeeping
// and re-evaluation, the risk loop's analogue of the teacher's
// PositionReport.
type Fill struct {
	Account  string
	Security domain.Security
	Currency string
	Side     domain.Side
	Quantity int64
	Price    money.Money
	Fees     money.Money
}

// ExchangeRateTable converts between currencies. Rate(from, to) returns the
// multiplier that converts one unit of `from` into `to` — an external
// collaborator per spec.md §1 (no live rate source lives in this package).
type ExchangeRateTable interface {
	Rate(from, to string) (money.Rational, error)
}

// Destinations resolves an account's preferred order destination for a
// security, used to route flattening orders — an external collaborator per
// spec.md §1.
type Destinations interface {
	PreferredDestination(account string, security domain.Security) string
}

// OrderRouter is the narrow submit-only surface the controller needs to
// issue flattening orders. internal/matcher.Driver and
// internal/simengine.Engine both satisfy this directly.
type OrderRouter interface {
	Submit(order *domain.PrimitiveOrder)
}

// Config holds the controller's tunables.
type Config struct {
	// TickInterval is the periodic re-evaluation period. spec.md §4.4
	// specifies 100ms as an explicit requirement, not a stylistic choice
	// like the teacher's 5s kill-switch cooldown ticker — carried over
	// unchanged rather than genericized.
	TickInterval time.Duration

	// Metrics is an optional, nil-safe Prometheus sink for risk-state
	// transition counters.
	Metrics *telemetry.Metrics
}

type accountState struct {
	account  Account
	params   RiskParameters
	book     *Bookkeeper
	marks    map[domain.Security]money.Money
	peak     money.Money
	peakSet  bool
	state    RiskState
	closedAt time.Time
	flattened bool

	openOrderNotional money.Money
}

// Controller is the consolidated risk monitor: one serialized task queue
// processes fills, parameter updates, mark updates, and the periodic
// re-evaluation tick, exactly like the teacher's Manager.Run select-loop.
type Controller struct {
	cfg          Config
	router       OrderRouter
	destinations Destinations
	rates        *ExchangeRateCache
	logger       *slog.Logger
	now          func() time.Time

	nextID func() int64

	mu       sync.Mutex
	accounts map[string]*accountState

	events  chan func()
	states  chan AccountRiskState
}

// New constructs a Controller. Flattening orders take their ids from an
// atomic counter owned by the Controller.
func New(cfg Config, router OrderRouter, destinations Destinations, rates ExchangeRateTable, logger *slog.Logger, now func() time.Time) *Controller {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 100 * time.Millisecond
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		cfg:          cfg,
		router:       router,
		destinations: destinations,
		rates:        NewExchangeRateCache(rates),
		logger:       logger.With("component", "risk_controller"),
		now:          now,
		nextID:       newOrderIDGenerator(),
		accounts:     make(map[string]*accountState),
		events:       make(chan func(), 256),
		states:       make(chan AccountRiskState, 64),
	}
}

// States returns the channel of published RiskState transitions, the risk
// loop's analogue of the teacher's Manager.KillCh.
func (c *Controller) States() <-chan AccountRiskState { return c.states }

// Run drains the task queue and re-evaluates every tracked account on
// cfg.TickInterval, until ctx is canceled.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-c.events:
			t()
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Controller) push(t func()) {
	select {
	case c.events <- t:
	default:
		c.logger.Warn("risk event queue full, dropping event")
	}
}

func (c *Controller) stateFor(account string) *accountState {
	st, ok := c.accounts[account]
	if !ok {
		st = &accountState{
			account: Account{ID: account},
			book:    NewBookkeeper(),
			marks:   make(map[domain.Security]money.Money),
			state:   RiskState{Type: StateActive},
		}
		c.accounts[account] = st
	}
	return st
}

// SetParameters installs or updates an account's risk parameters. Changes
// take effect on the next evaluation tick, per spec.md §6.
func (c *Controller) SetParameters(account string, params RiskParameters) {
	c.push(func() {
		st := c.stateFor(account)
		st.params = params
		if params.AllowedState == StateActive && st.state.Type != StateActive {
			// Explicit admin re-enable: spec.md §4.4 step 4's only path back
			// to ACTIVE from CLOSE_ORDERS/DISABLED.
			st.state = RiskState{Type: StateActive}
			st.peakSet = false
			st.flattened = false
			c.cfg.Metrics.RiskStateTransition(string(StateActive))
			c.publish(st)
		}
	})
}

// RecordFill applies an executed trade to the account's bookkeeper
// (non-blocking, per the teacher's Report idiom). Re-evaluation happens on
// the next tick, not synchronously with the fill.
func (c *Controller) RecordFill(fill Fill) {
	c.push(func() {
		st := c.stateFor(fill.Account)
		st.book.RecordTransaction(fill.Security, fill.Currency, fill.Side, fill.Quantity, fill.Price, fill.Fees)
	})
}

// SetMark updates the latest observed price for a security, used to mark
// open positions for the unrealized-P&L component of the risk predicate.
func (c *Controller) SetMark(account string, security domain.Security, price money.Money) {
	c.push(func() {
		st := c.stateFor(account)
		st.marks[security] = price
	})
}

// SetOpenOrderNotional reports an account's current open-order notional at
// worst-case execution, the second term of the buying-power check.
func (c *Controller) SetOpenOrderNotional(account string, notional money.Money) {
	c.push(func() {
		st := c.stateFor(account)
		st.openOrderNotional = notional
	})
}

func (c *Controller) tick() {
	c.mu.Lock()
	accounts := make([]*accountState, 0, len(c.accounts))
	for _, st := range c.accounts {
		accounts = append(accounts, st)
	}
	c.mu.Unlock()

	for _, st := range accounts {
		c.evaluate(st)
	}
}

// evaluate implements spec.md §4.4 steps 2-6 for one account.
func (c *Controller) evaluate(st *accountState) {
	gross, positionNotional, err := c.portfolio(st)
	if err != nil {
		c.logger.Error("risk evaluation skipped: exchange-rate lookup failed",
			"account", st.account.ID, "error", err)
		return
	}

	if !st.peakSet || gross.GreaterThan(st.peak) {
		st.peak = gross
		st.peakSet = true
	}

	if st.params.AllowedState == StateDisabled {
		c.transition(st, StateDisabled, time.Time{})
		return
	}

	if st.state.Type == StateCloseOrders {
		if !st.closedAt.IsZero() && c.now().Sub(st.closedAt) >= st.params.TransitionTime {
			c.transition(st, StateDisabled, time.Time{})
		}
		return
	}

	if st.state.Type != StateActive {
		return
	}

	lossFromTop := st.peak.Sub(gross)
	buyingPowerExceeded := positionNotional.Add(st.openOrderNotional).GreaterThan(st.params.BuyingPower)

	if gross.LessThan(st.params.NetLoss.Neg()) ||
		(st.params.LossFromTop.IsPositive() && lossFromTop.GreaterThan(st.params.LossFromTop)) ||
		buyingPowerExceeded {
		c.enterCloseOrders(st)
	}
}

// portfolio aggregates gross P&L and position notional across every
// security the account has traded, converting each into the account's risk
// currency, per spec.md §4.4 step 2.
func (c *Controller) portfolio(st *accountState) (gross, positionNotional money.Money, err error) {
	for _, inv := range st.book.Inventories() {
		rate, rerr := c.rates.Rate(inv.Currency, st.params.Currency)
		if rerr != nil {
			return money.Zero, money.Zero, rerr
		}
		mark := st.marks[inv.Security]
		unrealized := inv.UnrealizedPnL(mark)
		netInv := unrealized.Add(inv.RealizedPnL).Sub(inv.Fees)
		gross = gross.Add(netInv.MulRational(rate))

		notional := mark.MulInt64(abs64(inv.Position))
		positionNotional = positionNotional.Add(notional.MulRational(rate))
	}
	return gross, positionNotional, nil
}

func (c *Controller) enterCloseOrders(st *accountState) {
	c.transition(st, StateCloseOrders, c.now().Add(st.params.TransitionTime))
	if st.flattened {
		return
	}
	st.flattened = true
	for _, inv := range st.book.Inventories() {
		if inv.Position == 0 {
			continue
		}
		side := domain.ASK
		if inv.Position < 0 {
			side = domain.BID
		}
		dest := ""
		if c.destinations != nil {
			dest = c.destinations.PreferredDestination(st.account.ID, inv.Security)
		}
		order := domain.NewPrimitiveOrder(domain.OrderInfo{
			Fields: domain.OrderFields{
				Account:     st.account.ID,
				Security:    inv.Security,
				Currency:    st.params.Currency,
				Type:        domain.MARKET,
				Side:        side,
				Destination: dest,
				Quantity:    abs64(inv.Position),
				TimeInForce: domain.DAY,
				Tags:        map[string]string{"risk_close": "true"},
			},
			SubmissionAccount: st.account.ID,
			OrderID:           c.nextID(),
			Timestamp:         c.now(),
		})
		c.logger.Info("submitting flattening order",
			"account", st.account.ID, "security", inv.Security.String(),
			"side", side, "quantity", abs64(inv.Position))
		c.router.Submit(order)
	}
}

func (c *Controller) transition(st *accountState, newType AllowedState, expiry time.Time) {
	if st.state.Type == newType {
		return
	}
	if newType == StateCloseOrders {
		st.closedAt = c.now()
	}
	st.state = RiskState{Type: newType, Expiry: expiry}
	c.cfg.Metrics.RiskStateTransition(string(newType))
	c.publish(st)
}

func (c *Controller) publish(st *accountState) {
	select {
	case c.states <- AccountRiskState{Account: st.account, State: st.state}:
	default:
		select {
		case <-c.states:
		default:
		}
		c.states <- AccountRiskState{Account: st.account, State: st.state}
	}
}
