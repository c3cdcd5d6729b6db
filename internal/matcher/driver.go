// Package matcher implements the internal-matching order-execution driver:
// it pairs eligible orders against each other before any unmatched residue
// is forwarded to a downstream VenueDriver. Grounded line-for-line on
// original_source InternalMatchingOrderExecutionDriver.hpp, adapted to Go's
// goroutine-and-channel concurrency in the style of the teacher's
// internal/engine.Engine per-instance work queue.
package matcher

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

// Config holds the matcher's tunables.
type Config struct {
	// RendezvousTimeout bounds how long InternalMatch waits for a passive
	// order to go live, and separately how long it waits for that order to
	// go terminal after being canceled, before abandoning this one pairing
	// attempt (resolved Open Question 3, spec.md §9).
	RendezvousTimeout time.Duration

	// Metrics is an optional, nil-safe Prometheus sink for rendezvous
	// timeouts, internal matches, and forwarded orders. A nil Metrics never
	// changes behavior, only omits instrumentation.
	Metrics *telemetry.Metrics

	// OnFill, if set, is invoked synchronously from within the driver's own
	// goroutines every time a fill (internal or downstream) is appended to
	// a client-facing order, carrying the same report that was appended.
	// This is the seam the process-level orchestrator uses to run fee
	// calculation and feed the risk controller and recovery store without
	// the driver needing to know any of those subsystems exist.
	OnFill func(order *domain.PrimitiveOrder, report domain.ExecutionReport)
}

// Driver is the internal-matching order-execution driver for one downstream
// venue. One submission goroutine owns every security's book exclusively;
// a separate report-dispatch goroutine relays the downstream venue's
// execution reports back onto the client-facing orders they belong to,
// communicating with the submission goroutine only through each bookEntry's
// latches and the driver-id lookup table (the REDESIGN FLAGS' weak-reference
// emulation, spec.md §9).
type Driver struct {
	cfg    Config
	venue  VenueDriver
	logger *slog.Logger
	now    func() time.Time

	tasks chan func()
	books map[domain.Security]*securityBook

	entriesMu sync.Mutex
	entries   map[int64]*bookEntry // driver-assigned proxy order id -> owning entry

	nextID atomic.Int64
}

// New constructs a Driver that forwards unmatched residue to venue.
func New(cfg Config, venue VenueDriver, logger *slog.Logger, now func() time.Time) *Driver {
	if cfg.RendezvousTimeout <= 0 {
		cfg.RendezvousTimeout = time.Second
	}
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{
		cfg:     cfg,
		venue:   venue,
		logger:  logger.With("component", "matcher"),
		now:     now,
		tasks:   make(chan func(), 256),
		books:   make(map[domain.Security]*securityBook),
		entries: make(map[int64]*bookEntry),
	}
}

// Run drains the submission task queue and starts the report-dispatch
// goroutine, until ctx is canceled.
func (d *Driver) Run(ctx context.Context) {
	go d.dispatchReports(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-d.tasks:
			t()
		}
	}
}

func (d *Driver) push(t func()) {
	select {
	case d.tasks <- t:
	default:
		d.logger.Warn("submission queue full, dropping task")
	}
}

func (d *Driver) bookFor(security domain.Security) *securityBook {
	book, ok := d.books[security]
	if !ok {
		book = newSecurityBook()
		d.books[security] = book
	}
	return book
}

// OnBbo updates the latched BBO used as the no-trade-through threshold for
// security's book.
func (d *Driver) OnBbo(security domain.Security, quote domain.BboQuote) {
	d.push(func() { d.bookFor(security).bbo.Set(quote) })
}

// Submit is the external entry point for a freshly arrived order. Orders
// ineligible for internalization (see eligibleForInternalization) bypass
// the matcher entirely and pass straight through to the downstream venue,
// which then owns their full PENDING_NEW -> NEW -> terminal lifecycle.
func (d *Driver) Submit(order *domain.PrimitiveOrder) {
	d.push(func() { d.submit(order) })
}

// Cancel cancels a still-live order the matcher is tracking.
func (d *Driver) Cancel(order *domain.PrimitiveOrder) {
	d.push(func() { d.cancel(order) })
}

// Update applies an externally-sourced report directly to a tracked order
// (e.g. a manual correction), unless it is already terminal.
func (d *Driver) Update(order *domain.PrimitiveOrder, report domain.ExecutionReport) {
	d.push(func() {
		order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
			if status.IsTerminal() {
				return
			}
			updated := report
			updated.Sequence = 0
			if updated.Timestamp.IsZero() {
				updated.Timestamp = d.now()
			}
			_ = appendReport(updated)
		})
	})
}

// Recover re-admits a previously accepted, still-live order at startup. For
// internalized orders this assumes no internal match has yet occurred
// (downstream recovery state is the source of truth for any prior partial
// fill) and simply re-forwards the full remaining quantity downstream.
func (d *Driver) Recover(order *domain.PrimitiveOrder) {
	d.push(func() {
		fields := order.Info().Fields
		if !eligibleForInternalization(fields) {
			d.venue.Recover(order)
			return
		}
		if order.Status().IsTerminal() {
			return
		}
		book := d.bookFor(fields.Security)
		entry := newBookEntry(order, d.now())
		d.forwardResidual(entry)
		book.insert(fields.Side, entry)
	})
}

// eligibleForInternalization reports whether fields qualifies for the
// internal matcher's book, per spec.md §4.2's eligibility gate: only
// DAY/GTC/IOC/GTX/GTD LIMIT or MARKET orders with positive quantity are
// internalized; everything else passes straight through to the downstream
// venue.
func eligibleForInternalization(fields domain.OrderFields) bool {
	if fields.Quantity <= 0 {
		return false
	}
	switch fields.Type {
	case domain.LIMIT, domain.MARKET:
	default:
		return false
	}
	switch fields.TimeInForce {
	case domain.DAY, domain.GTC, domain.IOC, domain.GTX, domain.GTD:
		return true
	default:
		return false
	}
}

// crossesBbo reports whether internalizing against a passive order quoted
// at passivePrice would trade through the public market: the match price
// must be at least as good as the current best public quote on the
// passive's side. This is the no-trade-through internalization guard.
func crossesBbo(activeSide domain.Side, passivePrice money.Money, quote domain.BboQuote) bool {
	if activeSide == domain.BID {
		return passivePrice.LessThanOrEqual(quote.Ask.Price)
	}
	return passivePrice.GreaterThanOrEqual(quote.Bid.Price)
}

func (d *Driver) submit(order *domain.PrimitiveOrder) {
	fields := order.Info().Fields
	if err := fields.Validate(); err != nil {
		d.rejectOrder(order, err.Error())
		return
	}
	if !eligibleForInternalization(fields) {
		d.cfg.Metrics.MatcherOrderForwarded()
		d.venue.Submit(order)
		return
	}

	book := d.bookFor(fields.Security)
	quote, err := book.bbo.Top()
	if err != nil {
		d.rejectOrder(order, "No BBO available.")
		return
	}

	d.transitionNew(order)

	entry := newBookEntry(order, d.now())
	contra := fields.Side.Opposite()

	// Snapshot the passive side before walking it: InternalMatch may mutate
	// book.side(contra) (removing fully-consumed entries), which would
	// otherwise invalidate an in-progress range over the live slice.
	passives := append([]*bookEntry(nil), *book.side(contra)...)
	for _, passive := range passives {
		if entry.Remaining() <= 0 {
			break
		}
		activePrice := offerPrice(fields)
		passivePrice := offerPriceOf(passive)
		if domain.OfferComparator(fields.Side, activePrice, passivePrice) < 0 {
			break // book is sorted best-first; nothing further can cross
		}
		if !crossesBbo(fields.Side, passivePrice, quote) {
			break
		}
		d.internalMatch(book, entry, passive, contra)
	}

	if entry.Remaining() > 0 {
		d.forwardResidual(entry)
		book.insert(fields.Side, entry)
	}
}

// internalMatch pairs active against one resting passive candidate: it
// cancels the passive's current downstream leg, waits for that leg to
// settle, and — unless the passive raced to a full downstream fill first
// (scenario S4) — books a match at the passive's price for whatever
// quantity both sides have left.
func (d *Driver) internalMatch(book *securityBook, active, passive *bookEntry, passiveSide domain.Side) {
	passive.setMatching(true)
	defer passive.setMatching(false)

	liveCtx, liveCancel := context.WithTimeout(context.Background(), d.cfg.RendezvousTimeout)
	defer liveCancel()
	if err := passive.liveLatch().Wait(liveCtx); err != nil {
		d.logger.Warn("internal match timed out waiting for passive to go live",
			"order_id", passive.order.Info().OrderID)
		d.cfg.Metrics.MatcherRendezvousTimeout()
		return
	}

	d.venue.Cancel(passive.proxyOrder())

	termCtx, termCancel := context.WithTimeout(context.Background(), d.cfg.RendezvousTimeout)
	defer termCancel()
	if err := passive.terminalLatch().Wait(termCtx); err != nil {
		d.logger.Warn("internal match timed out waiting for passive to terminate",
			"order_id", passive.order.Info().OrderID)
		d.cfg.Metrics.MatcherRendezvousTimeout()
		return
	}

	if passive.Remaining() <= 0 {
		// S4: the passive's downstream leg filled in full before our cancel
		// landed. No internal match is recorded; the passive is already
		// terminal via that downstream fill, so just drop it from the book.
		book.remove(passiveSide, passive)
		return
	}

	matched := min(active.Remaining(), passive.Remaining())
	if matched <= 0 {
		return
	}

	price := offerPriceOf(passive)
	now := d.now()
	newActiveRemaining := active.Remaining() - matched
	newPassiveRemaining := passive.Remaining() - matched
	active.setRemaining(newActiveRemaining)
	passive.setRemaining(newPassiveRemaining)

	d.appendFill(active.order, matched, price, now, newActiveRemaining == 0)
	d.appendFill(passive.order, matched, price, now, newPassiveRemaining == 0)
	d.cfg.Metrics.MatcherInternalMatch()

	if newPassiveRemaining > 0 {
		d.forwardResidual(passive)
	} else {
		book.remove(passiveSide, passive)
	}
}

// forwardResidual submits entry's remaining quantity downstream under a
// fresh driver-assigned order id (distinct from the client-facing
// OrderID), registering it in the driver-id lookup table so the
// report-dispatch goroutine can relay its reports back onto entry.order.
func (d *Driver) forwardResidual(entry *bookEntry) {
	driverID := d.nextID.Add(1)
	fields := entry.order.Info().Fields.WithQuantity(entry.Remaining())
	info := domain.OrderInfo{
		Fields:            fields,
		SubmissionAccount: entry.order.Info().SubmissionAccount,
		OrderID:           driverID,
		Timestamp:         d.now(),
	}
	proxy := domain.NewPrimitiveOrder(info)
	prevID := entry.rebind(proxy, driverID)

	d.entriesMu.Lock()
	if prevID != 0 {
		delete(d.entries, prevID)
	}
	d.entries[driverID] = entry
	d.entriesMu.Unlock()

	d.cfg.Metrics.MatcherOrderForwarded()
	d.venue.Submit(proxy)
}

// cancel forwards a cancel request to the downstream leg tracking order,
// rewriting to the proxy order id if one is bound, same as the original
// source's pure-forward Cancel. It synthesizes nothing: the real
// PENDING_CANCEL/CANCELED pair arrives back through onDownstreamReport,
// which applies it to the client order and removes the entry from the
// book once it actually goes terminal — so a downstream fill racing this
// cancel is never silently discarded.
func (d *Driver) cancel(order *domain.PrimitiveOrder) {
	fields := order.Info().Fields
	if !eligibleForInternalization(fields) {
		d.venue.Cancel(order)
		return
	}
	book, ok := d.books[fields.Security]
	if !ok {
		return
	}
	entry := findEntry(book, order)
	if entry == nil {
		return
	}
	if proxy := entry.proxyOrder(); proxy != nil {
		d.venue.Cancel(proxy)
	}
}

func findEntry(book *securityBook, order *domain.PrimitiveOrder) *bookEntry {
	for _, e := range *book.side(order.Info().Fields.Side) {
		if e.order == order {
			return e
		}
	}
	return nil
}

func (d *Driver) transitionNew(order *domain.PrimitiveOrder) {
	order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
		if len(reports) == 0 {
			return
		}
		last := reports[len(reports)-1]
		updated := domain.BuildUpdatedReport(last, domain.New, order.Info().Timestamp)
		_ = appendReport(updated)
	})
}

func (d *Driver) rejectOrder(order *domain.PrimitiveOrder, reason string) {
	order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
		if status.IsTerminal() || len(reports) == 0 {
			return
		}
		last := reports[len(reports)-1]
		rejected := domain.BuildUpdatedReport(last, domain.Rejected, d.now())
		rejected.AdditionalTags = map[string]string{"reason": reason}
		_ = appendReport(rejected)
	})
}

// appendFill appends one match report to order, marking it FILLED if final
// leaves nothing remaining or PARTIALLY_FILLED otherwise. A no-op on an
// already-terminal order.
func (d *Driver) appendFill(order *domain.PrimitiveOrder, qty int64, price money.Money, now time.Time, final bool) {
	var published domain.ExecutionReport
	var ok bool
	order.With(func(status domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
		if status.IsTerminal() || len(reports) == 0 {
			return
		}
		last := reports[len(reports)-1]
		fillStatus := domain.PartiallyFilled
		if final {
			fillStatus = domain.Filled
		}
		updated := domain.BuildUpdatedReport(last, fillStatus, now)
		updated.LastQuantity = qty
		updated.LastPrice = price
		if appendReport(updated) == nil {
			published, ok = updated, true
		}
	})
	if ok && d.cfg.OnFill != nil {
		d.cfg.OnFill(order, published)
	}
}

// appendStatus mirrors a non-fill downstream report (a pending-cancel
// acknowledgement, cancellation, rejection, or expiry) directly onto order,
// tracking the venue's own state machine 1:1 the way appendFill mirrors
// fill reports. A no-op on an already-terminal order.
func (d *Driver) appendStatus(order *domain.PrimitiveOrder, status domain.OrderStatus, now time.Time) {
	order.With(func(s domain.OrderStatus, reports []domain.ExecutionReport, appendReport func(domain.ExecutionReport) error) {
		if s.IsTerminal() || len(reports) == 0 {
			return
		}
		last := reports[len(reports)-1]
		updated := domain.BuildUpdatedReport(last, status, now)
		_ = appendReport(updated)
	})
}

// dispatchReports is the report-dispatch goroutine: it owns no book state,
// only the driver-id lookup table and whatever each bookEntry's own mutex
// and latches protect, so it never contends with the submission goroutine
// over d.books.
func (d *Driver) dispatchReports(ctx context.Context) {
	reports := d.venue.Reports()
	for {
		select {
		case <-ctx.Done():
			return
		case report, ok := <-reports:
			if !ok {
				return
			}
			d.onDownstreamReport(report)
		}
	}
}

func (d *Driver) onDownstreamReport(report domain.ExecutionReport) {
	d.entriesMu.Lock()
	entry, ok := d.entries[report.ID]
	d.entriesMu.Unlock()
	if !ok {
		d.logger.Debug("downstream report for unknown driver id, ignoring", "driver_id", report.ID)
		return
	}

	switch report.Status {
	case domain.PendingNew:
		return
	case domain.New:
		entry.liveLatch().Signal()
		return
	}

	if report.LastQuantity > 0 {
		remaining := entry.Remaining() - report.LastQuantity
		if remaining < 0 {
			remaining = 0
		}
		entry.setRemaining(remaining)
		d.appendFill(entry.order, report.LastQuantity, report.LastPrice, d.now(),
			report.Status == domain.Filled && remaining == 0)
	} else if !(entry.IsMatching() && (report.Status.IsTerminal() || report.Status == domain.PendingCancel)) {
		// While an internal match is in progress, the zero-fill
		// PENDING_CANCEL/terminal echo of the matcher's own cancel of the
		// proxy only drives the rendezvous; it is not mirrored onto the
		// client order.
		d.appendStatus(entry.order, report.Status, d.now())
	}

	if report.Status.IsTerminal() {
		entry.liveLatch().Signal()
		entry.terminalLatch().Signal()
		if !entry.IsMatching() {
			// Not part of an in-flight InternalMatch rendezvous: this
			// terminal arrived from ordinary downstream execution (a plain
			// market fill, cancel, or expiry), so the submission goroutine
			// still needs to drop the entry from its resting book.
			d.push(func() { d.removeFromBook(entry) })
		}
	}
}

func (d *Driver) removeFromBook(entry *bookEntry) {
	fields := entry.order.Info().Fields
	book, ok := d.books[fields.Security]
	if !ok {
		return
	}
	book.remove(fields.Side, entry)
}
