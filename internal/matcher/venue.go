package matcher

import "nexuscore/internal/domain"

// VenueDriver is the contract the internal matcher holds every downstream
// execution destination to: submit, cancel, and update an order the matcher
// itself owns, applying every resulting report directly onto that order's
// own PrimitiveOrder log. internal/simengine.Engine satisfies this
// interface directly for a single security, and internal/simengine's
// VenueAdapter presents every security's Engine as one VenueDriver (the
// form used when the downstream venue is simulated); RESTVenueDriver
// adapts a real out-of-process venue to it.
type VenueDriver interface {
	Submit(order *domain.PrimitiveOrder)
	Cancel(order *domain.PrimitiveOrder)
	Update(order *domain.PrimitiveOrder, report domain.ExecutionReport)
	Recover(order *domain.PrimitiveOrder)

	// Reports streams every report this driver appends to any order it was
	// given, in append order. The matcher's report-dispatch goroutine reads
	// this exclusively to drive the is_live/is_terminal rendezvous and to
	// apply downstream fills, instead of polling order state.
	Reports() <-chan domain.ExecutionReport
}
