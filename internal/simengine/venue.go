package simengine

import (
	"context"
	"sync"

	"nexuscore/internal/domain"
)

// VenueAdapter fans the single-security Engine model out across every
// security a process trades, presenting one matcher.VenueDriver over a
// Manager. It is the seam that lets internal/matcher.Driver — which is
// built around exactly one downstream venue — sit on top of
// internal/simengine's one-engine-per-security design, mirroring the way
// the teacher's Engine fans WS events out to per-market slots via tokenMap.
type VenueAdapter struct {
	mgr *Manager

	reports chan domain.ExecutionReport

	mu      sync.Mutex
	watched map[domain.Security]bool
}

// NewVenueAdapter constructs a VenueAdapter over mgr. mgr's context bounds
// the per-security report fan-in goroutines started as new securities are
// first touched.
func NewVenueAdapter(mgr *Manager) *VenueAdapter {
	return &VenueAdapter{
		mgr:     mgr,
		reports: make(chan domain.ExecutionReport, 256),
		watched: make(map[domain.Security]bool),
	}
}

func (a *VenueAdapter) engineFor(order *domain.PrimitiveOrder) *Engine {
	security := order.Info().Fields.Security
	e := a.mgr.EngineFor(security)
	a.watch(security, e)
	return e
}

// watch starts one fan-in goroutine per security the first time it is seen,
// relaying that security's Engine.Reports() onto the adapter's combined
// channel for as long as the Manager's parent context stays alive.
func (a *VenueAdapter) watch(security domain.Security, e *Engine) {
	a.mu.Lock()
	if a.watched[security] {
		a.mu.Unlock()
		return
	}
	a.watched[security] = true
	a.mu.Unlock()

	go func() {
		for {
			select {
			case <-a.mgr.ctx.Done():
				return
			case report, ok := <-e.Reports():
				if !ok {
					return
				}
				select {
				case a.reports <- report:
				default:
					a.mgr.logger.Warn("venue adapter fan-in queue full, dropping report", "order_id", report.ID)
				}
			}
		}
	}()
}

// Submit implements matcher.VenueDriver.
func (a *VenueAdapter) Submit(order *domain.PrimitiveOrder) { a.engineFor(order).Submit(order) }

// Cancel implements matcher.VenueDriver.
func (a *VenueAdapter) Cancel(order *domain.PrimitiveOrder) { a.engineFor(order).Cancel(order) }

// Update implements matcher.VenueDriver.
func (a *VenueAdapter) Update(order *domain.PrimitiveOrder, report domain.ExecutionReport) {
	a.engineFor(order).Update(order, report)
}

// Recover implements matcher.VenueDriver.
func (a *VenueAdapter) Recover(order *domain.PrimitiveOrder) { a.engineFor(order).Recover(order) }

// Reports implements matcher.VenueDriver: the fan-in of every security's
// simulated engine, in whatever order their individual publish calls
// interleave.
func (a *VenueAdapter) Reports() <-chan domain.ExecutionReport { return a.reports }
