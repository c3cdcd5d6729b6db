package matcher

import "errors"

var (
	// ErrRendezvousTimeout aborts one internal-match pairing attempt; it
	// never propagates out of the submission goroutine as a fatal error.
	ErrRendezvousTimeout = errors.New("matcher: timed out waiting for downstream rendezvous")
	ErrUnknownSecurity   = errors.New("matcher: no book registered for security")
)
