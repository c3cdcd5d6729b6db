package domain

import "errors"

// Sentinel errors surfaced from synchronous public entry points, before an
// order has entered any subsystem's work queue. Once an order is accepted
// into a queue, failures are logged and converted to a terminal REJECTED
// report instead of being returned here (see SPEC_FULL.md §7).
var (
	ErrInvalidQuantity    = errors.New("domain: quantity must be positive")
	ErrInvalidLimitPrice  = errors.New("domain: limit orders require a positive price")
	ErrOrderTerminal      = errors.New("domain: order is already in a terminal state")
	ErrSequenceNotMonotone = errors.New("domain: report sequence must be strictly greater than all previous reports")
	ErrBboBroken          = errors.New("domain: bbo stream is broken")
	ErrBboUnavailable     = errors.New("domain: no bbo has been observed yet")
	ErrBoardLotViolation  = errors.New("domain: board lot violation")
)
