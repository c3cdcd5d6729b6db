// Package simengine implements the simulated order-execution engine: one
// instance per security, reacting to real-time BBO ticks and explicit
// submit/cancel/update/recover calls by walking its live orders and
// emitting execution reports. Grounded on original_source
// SecurityOrderSimulator.hpp, adapted to Go's goroutine-and-channel
// concurrency instead of a RoutineTaskQueue, in the style of the teacher's
// internal/engine.Engine per-market goroutine.
package simengine

import (
	"context"
	"log/slog"
	"time"

	"nexuscore/internal/domain"
	"nexuscore/internal/money"
)

// boardLot is the fixed fill granularity this engine uses. The spec calls
// out that the simulated engine hardcodes 100 regardless of market; the
// variable 1000/500/100 board lot used for TSX/TSXV submission validation
// lives one layer up, in domain.BoardLotCheck.
const boardLot = 100

// task is one unit of serialized work: a submit, cancel, update, recover,
// or BBO tick. Engine runs these one at a time on its own goroutine so no
// additional locking is needed around the live-orders map.
type task func()

// Engine simulates fills for every live order of one security.
type Engine struct {
	security domain.Security
	logger   *slog.Logger
	now      func() time.Time

	bbo   *domain.BboLatch
	tasks chan task

	live    map[int64]*domain.PrimitiveOrder
	reports chan domain.ExecutionReport
}

// New constructs an Engine for security. now defaults to time.Now if nil,
// letting tests inject a fixed clock.
func New(security domain.Security, logger *slog.Logger, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		security: security,
		logger:   logger.With("component", "simengine", "security", security.String()),
		now:      now,
		bbo:      &domain.BboLatch{},
		tasks:    make(chan task, 256),
		live:     make(map[int64]*domain.PrimitiveOrder),
		reports:  make(chan domain.ExecutionReport, 256),
	}
}

// Reports returns a channel of every report this Engine appends, across all
// orders, in append order. This is what lets Engine satisfy
// internal/matcher.VenueDriver directly: the matcher's report-dispatch
// goroutine watches this channel instead of polling order state.
func (e *Engine) Reports() <-chan domain.ExecutionReport { return e.reports }

// publish mirrors a successfully appended report onto e.reports,
// non-blocking with drop+warn on a full buffer — the same idiom as push.
func (e *Engine) publish(report domain.ExecutionReport) {
	select {
	case e.reports <- report:
	default:
		e.logger.Warn("report publish queue full, dropping report", "order_id", report.ID)
	}
}

// Run drains the task queue until ctx is canceled. Callers should run this
// in its own goroutine, one per Engine, mirroring the teacher's
// per-market goroutine lifecycle.
func (e *Engine) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-e.tasks:
			t()
		}
	}
}

// push enqueues a task, dropping (with a warning log) if the queue is
// full rather than blocking the caller — the non-blocking-send idiom the
// teacher uses throughout its WS feed and event routing paths.
func (e *Engine) push(t task) {
	select {
	case e.tasks <- t:
	default:
		e.logger.Warn("task queue full, dropping task")
	}
}

// OnBbo updates the latched BBO and walks every live order, removing any
// that reach a terminal status. Mirrors SecurityOrderSimulator::OnBbo.
func (e *Engine) OnBbo(quote domain.BboQuote) {
	e.push(func() {
		e.bbo.Set(quote)
		for id, order := range e.live {
			status := e.updateOrder(order)
			if status.IsTerminal() {
				delete(e.live, id)
			}
		}
	})
}

// BreakBbo marks the BBO stream broken: the next Top() call returns
// ErrBboBroken once, per domain.BboLatch's one-shot sentinel contract.
func (e *Engine) BreakBbo() {
	e.push(func() { e.bbo.Break() })
}

// Submit enters order for simulated execution: it transitions PENDING_NEW
// -> NEW, then attempts an immediate fill against the latched BBO. An
// order submitted before any BBO has ever been observed is rejected.
func (e *Engine) Submit(order *domain.PrimitiveOrder) {
	e.push(func() {
		e.live[order.Info().OrderID] = order
		order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
			last := reports[len(reports)-1]
			updated := domain.BuildUpdatedReport(last, domain.New, order.Info().Timestamp)
			if appendReport(updated) == nil {
				e.publish(updated)
			}
		})

		status := e.updateOrder(order)
		if status == domain.New {
			if _, err := e.bbo.Top(); err != nil {
				e.rejectOrder(order, "No BBO available.")
				delete(e.live, order.Info().OrderID)
			}
		}
	})
}

// Cancel transitions a live, non-terminal order through PENDING_CANCEL to
// CANCELED. Simulated cancellation completes synchronously, unlike a real
// venue's round trip.
func (e *Engine) Cancel(order *domain.PrimitiveOrder) {
	e.push(func() {
		order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
			if status.IsTerminal() || len(reports) == 0 {
				return
			}
			last := reports[len(reports)-1]
			pendingCancel := domain.BuildUpdatedReport(last, domain.PendingCancel, e.now())
			if appendReport(pendingCancel) == nil {
				e.publish(pendingCancel)
			}
			canceled := domain.BuildUpdatedReport(pendingCancel, domain.Canceled, e.now())
			if appendReport(canceled) == nil {
				e.publish(canceled)
			}
		})
		delete(e.live, order.Info().OrderID)
	})
}

// Update applies an externally-sourced report to order unless it is
// already terminal, auto-assigning a sequence number and timestamp if the
// caller left them zero.
func (e *Engine) Update(order *domain.PrimitiveOrder, report domain.ExecutionReport) {
	e.push(func() {
		order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
			if status.IsTerminal() {
				return
			}
			updated := report
			updated.Sequence = 0
			if updated.Timestamp.IsZero() {
				updated.Timestamp = e.now()
			}
			if appendReport(updated) == nil {
				e.publish(updated)
			}
		})
	})
}

// Recover re-admits a previously submitted order into the live set at
// startup, without resetting its status, then immediately evaluates it
// against the current BBO.
func (e *Engine) Recover(order *domain.PrimitiveOrder) {
	e.push(func() {
		e.live[order.Info().OrderID] = order
		e.updateOrder(order)
	})
}

// rejectOrder appends a terminal REJECTED report carrying a human-readable
// reason in the additional-tags slot, per spec.md §7's user-visible
// failure behavior.
func (e *Engine) rejectOrder(order *domain.PrimitiveOrder, reason string) {
	order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
		if status.IsTerminal() || len(reports) == 0 {
			return
		}
		last := reports[len(reports)-1]
		rejected := domain.BuildUpdatedReport(last, domain.Rejected, e.now())
		rejected.AdditionalTags = map[string]string{"reason": reason}
		if appendReport(rejected) == nil {
			e.publish(rejected)
		}
	})
}

// fillOrder fills order in boardLot-sized clips at price, marking every
// clip but the last PARTIALLY_FILLED and the last FILLED. Quantities that
// are not an exact multiple of boardLot leave a silent remainder
// unfilled; domain.BoardLotCheck upstream is responsible for rejecting
// non-conforming quantities before an order ever reaches this engine.
func (e *Engine) fillOrder(order *domain.PrimitiveOrder, price money.Money) domain.OrderStatus {
	clips := order.Info().Fields.Quantity / boardLot
	finalStatus := domain.New
	for i := int64(0); i < clips; i++ {
		order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
			last := reports[len(reports)-1]
			fillStatus := domain.PartiallyFilled
			if i+1 == clips {
				fillStatus = domain.Filled
			}
			updated := domain.BuildUpdatedReport(last, fillStatus, e.now())
			updated.LastQuantity = boardLot
			updated.LastPrice = price
			if appendReport(updated) == nil {
				e.publish(updated)
			}
			finalStatus = fillStatus
		})
	}
	return finalStatus
}

// updateOrder evaluates order against the latched BBO: MARKET orders fill
// immediately at the contra side's price; LIMIT orders fill only when the
// contra side crosses the order's limit. MOC orders are never filled here
// — they are left for the close-auction destination to handle downstream.
// Returns the order's current status, whether or not a fill occurred.
func (e *Engine) updateOrder(order *domain.PrimitiveOrder) domain.OrderStatus {
	status := order.Status()
	if status == domain.PendingNew || status.IsTerminal() {
		return status
	}
	fields := order.Info().Fields
	if fields.TimeInForce == domain.MOC {
		return status
	}

	quote, err := e.bbo.Top()
	if err != nil {
		return status
	}

	if fields.Type == domain.MARKET {
		var price money.Money
		if fields.Side == domain.BID {
			price = quote.Ask.Price
		} else {
			price = quote.Bid.Price
		}
		return e.fillOrder(order, price)
	}

	switch {
	case fields.Side == domain.BID && quote.Ask.Price.LessThanOrEqual(fields.Price):
		return e.fillOrder(order, quote.Ask.Price)
	case fields.Side == domain.ASK && quote.Bid.Price.GreaterThanOrEqual(fields.Price):
		return e.fillOrder(order, quote.Bid.Price)
	default:
		return status
	}
}
