package kernel

import "errors"

// Error is a kernel status code.
type Error uint8

const (
	ErrInvalid Error = iota + 1
	ErrTimeout
	ErrNotStarted
	ErrBusy
	ErrPermission
	ErrTableFull
)

func (e Error) String() string {
	switch e {
	case ErrInvalid:
		return "invalid parameter"
	case ErrTimeout:
		return "timeout"
	case ErrNotStarted:
		return "kernel not started"
	case ErrBusy:
		return "busy"
	case ErrPermission:
		return "not owner"
	case ErrTableFull:
		return "task table full"
	default:
		return "unknown"
	}
}

func (e Error) Error() string { return "kernel: " + e.String() }

// errNotRunning marks a blocking call made on behalf of a task that does not
// hold the CPU. It never reaches callers; it is turned into a fatal error.
var errNotRunning = errors.New("kernel: blocking call from a task that is not running")
