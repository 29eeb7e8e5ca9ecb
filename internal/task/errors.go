package task

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors for manager misuse. The typed errors below wrap them so callers
// can match with errors.Is and still read the offending task id with errors.As.
var (
	ErrAlreadyStarted        = errors.New("task already in flight")
	ErrNotRegistered         = errors.New("task callbacks not registered")
	ErrDuplicateRegistration = errors.New("task callbacks already registered")

	// ErrNilWork is returned by StartTask when the handler's factory returns nil.
	ErrNilWork = errors.New("handler returned nil work")

	// ErrUnitStarted is returned when Start is called on a unit more than once.
	ErrUnitStarted = errors.New("unit can only be started once")
)

// AlreadyStartedError is returned by StartTask when the slot is not IDLE. Callers
// must wait for terminal delivery or cancel first.
type AlreadyStartedError struct {
	ID    int
	State SlotState
}

func (e *AlreadyStartedError) Error() string {
	return fmt.Sprintf("task %d: %s (state %s)", e.ID, ErrAlreadyStarted, e.State)
}

func (e *AlreadyStartedError) Unwrap() error {
	return ErrAlreadyStarted
}

// NotRegisteredError is returned when StartTask or CancelTask is called for an id
// that has no callbacks registered.
type NotRegisteredError struct {
	ID int
}

func (e *NotRegisteredError) Error() string {
	return fmt.Sprintf("task %d: %s", e.ID, ErrNotRegistered)
}

func (e *NotRegisteredError) Unwrap() error {
	return ErrNotRegistered
}

// DuplicateRegistrationError is returned by RegisterCallbacks when the id already
// has a handler bound. Unregister first to replace it.
type DuplicateRegistrationError struct {
	ID int
}

func (e *DuplicateRegistrationError) Error() string {
	return fmt.Sprintf("task %d: %s", e.ID, ErrDuplicateRegistration)
}

func (e *DuplicateRegistrationError) Unwrap() error {
	return ErrDuplicateRegistration
}

// ExecutionFailure carries an error returned (or a panic raised) by a work body.
// It is delivered as data inside a failed Outcome and is never re-raised on the loop.
type ExecutionFailure struct {
	ID    int
	RunID uuid.UUID
	Err   error
}

func (e *ExecutionFailure) Error() string {
	return fmt.Sprintf("task %d (run %s) execution failed: %v", e.ID, e.RunID, e.Err)
}

func (e *ExecutionFailure) Unwrap() error {
	return e.Err
}

// PanicError is the error recorded when a work body panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}
