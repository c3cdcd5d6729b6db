package domain

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// PrimitiveOrder owns one OrderInfo plus an in-order, append-only vector of
// ExecutionReports guarded by a mutex. Every subsystem that originates an
// order (the simulated engine, the internal matcher) constructs one of
// these and is the sole mutator; other subsystems only ever read through
// With.
type PrimitiveOrder struct {
	mu         sync.Mutex
	info       OrderInfo
	reports    []ExecutionReport
	correlation uuid.UUID // internal-only correlation id, never the OrderID
}

// NewPrimitiveOrder constructs a PrimitiveOrder with an initial PENDING_NEW
// report at sequence 0, timestamped at info.Timestamp (the submission time,
// not "now" — see SPEC_FULL.md §9 open question 1).
func NewPrimitiveOrder(info OrderInfo) *PrimitiveOrder {
	initial := ExecutionReport{
		ID:        info.OrderID,
		Sequence:  0,
		Timestamp: info.Timestamp,
		Status:    PendingNew,
	}
	return &PrimitiveOrder{
		info:        info,
		reports:     []ExecutionReport{initial},
		correlation: uuid.New(),
	}
}

// Correlation returns the order's internal-only correlation id, a random
// UUID distinct from OrderID.
func (p *PrimitiveOrder) Correlation() uuid.UUID {
	return p.correlation
}

// Info returns the immutable OrderInfo this order was constructed with.
func (p *PrimitiveOrder) Info() OrderInfo {
	return p.info
}

// With acquires the order's mutex for the duration of fn, passing the
// status derived from the last report, a read-only view of the report log,
// and an append closure. Any append must carry a strictly greater sequence
// than all previous reports (or zero, to have the next sequence assigned
// automatically) — a terminal-state or out-of-order append returns an error
// from append rather than panicking, per the "programmer error: assert in
// debug, log in release" policy of SPEC_FULL.md §7. The append closure must
// not be retained past fn's return; it is only valid while the lock is held.
func (p *PrimitiveOrder) With(fn func(status OrderStatus, reports []ExecutionReport, append func(ExecutionReport) error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.currentStatusLocked(), p.reports, p.appendLocked)
}

func (p *PrimitiveOrder) currentStatusLocked() OrderStatus {
	if len(p.reports) == 0 {
		return PendingNew
	}
	return p.reports[len(p.reports)-1].Status
}

// Status returns the order's current status without exposing the report
// log; a convenience wrapper over With for call sites that don't need the
// history.
func (p *PrimitiveOrder) Status() OrderStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.currentStatusLocked()
}

// Update appends report to the log. Sequence must be strictly greater than
// the last report's; if the caller didn't set one (zero value), Update
// assigns the next sequence automatically. Update itself takes the lock, so
// it must not be called from within a With callback on the same order;
// inside With, use the append closure instead.
func (p *PrimitiveOrder) Update(report ExecutionReport) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.appendLocked(report)
}

func (p *PrimitiveOrder) appendLocked(report ExecutionReport) error {
	last := p.reports[len(p.reports)-1]
	if last.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	if report.Sequence == 0 {
		report.Sequence = last.Sequence + 1
	}
	if report.Sequence <= last.Sequence {
		return ErrSequenceNotMonotone
	}
	if report.Timestamp.IsZero() {
		report.Timestamp = time.Now()
	}
	p.reports = append(p.reports, report)
	return nil
}

// Reports returns a copy of the full report log, in sequence order.
func (p *PrimitiveOrder) Reports() []ExecutionReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ExecutionReport, len(p.reports))
	copy(out, p.reports)
	return out
}

// LastReport returns the most recently appended report.
func (p *PrimitiveOrder) LastReport() ExecutionReport {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.reports[len(p.reports)-1]
}
