package compute

import "fmt"

// executionError covers backend failures: device loss, allocation failure,
// shape mismatch at the execution boundary. The scheduler turns these into
// failed results; they never crash the engine.
type executionError struct {
	op  string
	msg string
}

func (e executionError) Error() string { return "backend " + e.op + ": " + e.msg }

func errExecutionf(op, format string, args ...any) error {
	return executionError{op: op, msg: fmt.Sprintf(format, args...)}
}

// ErrExecution constructs an execution error for the given operation.
func ErrExecution(op, msg string) error { return executionError{op: op, msg: msg} }

// IsExecution reports whether err originated at the backend boundary.
func IsExecution(err error) bool {
	_, ok := err.(executionError)
	return ok
}

// deviceBusyError signals that the compute device exists but is currently
// held by another handle. Unlike executionError it is transient: the holder
// releases the device on Close, so acquisition is worth retrying.
type deviceBusyError struct{ index int }

func (e deviceBusyError) Error() string {
	return fmt.Sprintf("backend probe: device %d busy", e.index)
}

// IsDeviceBusy reports whether err is a transient device-contention failure.
func IsDeviceBusy(err error) bool {
	_, ok := err.(deviceBusyError)
	return ok
}
