package pgportal

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for lifecycle accessors.
var (
	// ErrNotInitialized is returned by non-blocking pool accessors when the
	// pool is not ready.
	ErrNotInitialized = errors.New("database connection not initialized")

	// ErrInitNotStarted is returned by WaitForReady when Initialize was
	// never called, so there is nothing to wait for.
	ErrInitNotStarted = errors.New("database initialization not started")
)

// ValidationError reports a statement or pagination parameter that was
// rejected before reaching the database.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

// TimeoutError reports that an operation did not settle within its budget.
// Raised by both WaitForReady and the bounded executor; always
// distinguishable from other failures via errors.As.
type TimeoutError struct {
	Op    string
	Limit time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Limit)
}

// InitError wraps a failure during pool or tunnel initialization. It is
// terminal for the attempt; every concurrent waiter receives the same error.
type InitError struct {
	Step string
	Err  error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("initialization failed (%s): %v", e.Step, e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// ExecError wraps a driver-level failure. The message preserves the driver
// error but never the submitted statement text.
type ExecError struct {
	Err error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("query execution failed: %v", e.Err)
}

func (e *ExecError) Unwrap() error { return e.Err }

// IsTimeout reports whether err is a TimeoutError anywhere in its chain.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
