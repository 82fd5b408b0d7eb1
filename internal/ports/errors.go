package ports

import "errors"

// Standard application-level errors.
// Components return these as typed results; adapters wrap underlying
// infrastructure errors with them so callers can test with errors.Is.
var (
	// General errors
	ErrUnknown        = errors.New("unknown error occurred")
	ErrInvalidRequest = errors.New("invalid request parameters or format")
	ErrNotFound       = errors.New("resource not found")
	ErrUnknownSleeve  = errors.New("unknown sleeve identifier")

	// Ledger errors
	ErrInsufficientFunds = errors.New("insufficient available cash for reservation")

	// Position store errors
	ErrPositionNotFound = errors.New("no open position for symbol and sleeve")
	ErrOverSell         = errors.New("reduction quantity exceeds open position quantity")

	// Coordinator errors
	ErrCycleAlreadyRunning = errors.New("a cycle is already running for this sleeve")

	// Reconciliation errors
	ErrDriftDetected = errors.New("reconciliation drift beyond tolerance")

	// Persistence errors
	ErrPersistence = errors.New("persistent store operation failed")
)
