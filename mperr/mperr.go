// Package mperr defines the abstract error kinds shared across the maple
// bus core: the line engine, the transmission scheduler, and the
// flash-backed sector cache all return errors wrapped around one of these
// sentinels so callers can classify failures with errors.Is instead of
// parsing strings.
package mperr

import "github.com/pkg/errors"

var (
	// ErrBusy means a transaction or scheduler operation was rejected
	// because the resource is already in use. The caller may retry later.
	ErrBusy = errors.New("maple: busy")

	// ErrLineNotIdle means the bus was sensed active during the
	// pre-check window. Treat as transient.
	ErrLineNotIdle = errors.New("maple: line not idle")

	// ErrTimeout means a transaction's deadline elapsed before
	// completion. The engine aborts; callers may reschedule.
	ErrTimeout = errors.New("maple: timeout")

	// ErrCrcMismatch means a received frame failed CRC validation.
	ErrCrcMismatch = errors.New("maple: crc mismatch")

	// ErrMalformedFrame means a received frame's header or length is
	// otherwise unusable (e.g. zero command).
	ErrMalformedFrame = errors.New("maple: malformed frame")
)

// Invariant panics with an InvariantViolation error. It is reserved for
// conditions the implementation asserts as impossible, e.g. a sector
// queue whose head vanished between process() states. Fatal by design:
// spec treats these as unrecoverable.
func Invariant(msg string) {
	panic(&InvariantViolation{msg: msg})
}

// InvariantViolation is the panic value raised by Invariant.
type InvariantViolation struct {
	msg string
}

func (e *InvariantViolation) Error() string {
	return "maple: invariant violation: " + e.msg
}
