package competition

import "errors"

// Sentinel errors for every way an engine operation can be refused. Handlers
// wrap these with context; callers match with errors.Is. A failed handler is
// rolled back wholesale by the executor, so none of these ever leave a
// partial state change behind.
var (
	// ErrInvalidState: the operation is not allowed in the competition's
	// current lifecycle phase.
	ErrInvalidState = errors.New("invalid competition state")
	// ErrSoldOut: no tickets remaining.
	ErrSoldOut = errors.New("sold out")
	// ErrWrongPayment: attached payment does not equal the ticket price.
	ErrWrongPayment = errors.New("wrong payment")
	// ErrRequestPending: a randomness request is already live.
	ErrRequestPending = errors.New("randomness request already pending")
	// ErrUnknownRequest: no competition correlates to the request ID.
	ErrUnknownRequest = errors.New("unknown randomness request")
	// ErrAlreadyDrawn: the request's randomness was already applied.
	ErrAlreadyDrawn = errors.New("randomness already applied")
	// ErrNotFinished: reveal/claim attempted before the finish phase.
	ErrNotFinished = errors.New("competition not finished")
	// ErrNothingToClaim: the caller owns no unclaimed tickets.
	ErrNothingToClaim = errors.New("nothing to claim")
	// ErrUnauthorized: a privileged operation from a non-operator.
	ErrUnauthorized = errors.New("unauthorized")
)
