package domain

import (
	"errors"
	"fmt"
)

// Engine failures are a closed taxonomy: every operation returns either a
// result or one of these, so transports can map them without string matching.
var (
	// ErrInvalidRequest covers structural input faults: unknown connector id,
	// empty idTag, negative meter value, zero timestamp.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrUnknownTransaction is returned when a stop or lookup references a
	// transaction id the store has no record of.
	ErrUnknownTransaction = errors.New("unknown transaction")

	// ErrAlreadyStopped is returned for a stop against a completed
	// transaction. It is deliberately not a success: a retried stop with
	// different meter values must not overwrite history.
	ErrAlreadyStopped = errors.New("transaction already stopped")

	// ErrInvalidMeterReading is returned when meterStop < meterStart.
	ErrInvalidMeterReading = errors.New("meter stop below meter start")

	// ErrInvalidTimestamp is returned when the stop timestamp precedes the
	// start timestamp.
	ErrInvalidTimestamp = errors.New("stop timestamp before start timestamp")

	// ErrDuplicateTransaction means the store was asked to create a record
	// under an id it already holds. The allocator makes this impossible in
	// normal operation; it surfaces as an internal fault.
	ErrDuplicateTransaction = errors.New("duplicate transaction id")
)

// ConnectorBusyError reports a start attempt against a connector that
// already hosts an active transaction. It carries the conflicting id so the
// caller can reconcile against the existing session.
type ConnectorBusyError struct {
	ConnectorID         int
	ActiveTransactionID int64
}

func (e *ConnectorBusyError) Error() string {
	return fmt.Sprintf("connector %d busy with transaction %d", e.ConnectorID, e.ActiveTransactionID)
}

// IsConflict reports whether err is a legitimate concurrent-use outcome
// rather than a caller fault or an internal fault.
func IsConflict(err error) bool {
	var busy *ConnectorBusyError
	return errors.As(err, &busy) || errors.Is(err, ErrAlreadyStopped)
}
