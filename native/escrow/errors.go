package escrow

import "errors"

// Every entrypoint rejects with exactly one of these sentinels, possibly
// wrapped with call context. Callers classify failures with errors.Is; a
// rejected call never leaves partial state behind.
var (
	ErrNotFound         = errors.New("escrow: instance not found")
	ErrUnauthorized     = errors.New("escrow: unauthorized caller")
	ErrTooEarly         = errors.New("escrow: window not open yet")
	ErrTooLate          = errors.New("escrow: window already closed")
	ErrAlreadyWithdrawn = errors.New("escrow: already withdrawn")
	ErrAlreadyCancelled = errors.New("escrow: already cancelled")
	ErrInvalidSecret    = errors.New("escrow: secret does not match hashlock")
	ErrTransferFailed   = errors.New("escrow: asset transfer failed")
	ErrInvalidParams    = errors.New("escrow: invalid creation parameters")
)
