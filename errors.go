package hsm

import "fmt"

// ErrorCode classifies the error taxonomy from the state-tree interpreter.
type ErrorCode int

const (
	// ErrCodeNone indicates no error.
	ErrCodeNone ErrorCode = iota
	// ErrCodeConfiguration marks a structural defect: a composite missing
	// its Initial transition function or a concurrent composite built with
	// N < 2 (both caught at build time), or a history node asked to resume
	// with nothing remembered (caught when the resume is attempted).
	ErrCodeConfiguration
	// ErrCodeStackInvariant marks an exit that did not find its state at
	// the stack position the invariant requires.
	ErrCodeStackInvariant
	// ErrCodeParentMissing marks a non-root state built without a parent.
	ErrCodeParentMissing
	// ErrCodeUserAction marks a panic or error returned from a user hook
	// or transition action.
	ErrCodeUserAction
)

// ConfigurationError reports a structural defect in the state tree.
// Finalize (and so Start) reports missing Initial/History transition
// functions and too few regions before the machine runs; HandleHistory
// returns one at run time when nothing has been remembered.
type ConfigurationError struct {
	Subject string
	Message string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("hsm: configuration error in %q: %s", e.Subject, e.Message)
}

// NewConfigurationError builds a ConfigurationError for the named subject.
func NewConfigurationError(subject, message string) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Message: message}
}

// StackInvariantError reports that exit() was called on a state that is
// not at the stack top (for a sequential state) or not present in the top
// set-frame (for a concurrent-region member).
type StackInvariantError struct {
	State  string
	Reason string
}

func (e *StackInvariantError) Error() string {
	return fmt.Sprintf("hsm: stack invariant violated exiting %q: %s", e.State, e.Reason)
}

// NewStackInvariantError builds a StackInvariantError for the named state.
func NewStackInvariantError(state, reason string) *StackInvariantError {
	return &StackInvariantError{State: state, Reason: reason}
}

// ParentMissingError reports a non-root state built without a parent
// composite.
type ParentMissingError struct {
	State string
}

func (e *ParentMissingError) Error() string {
	return fmt.Sprintf("hsm: state %q has no parent composite", e.State)
}

// NewParentMissingError builds a ParentMissingError for the named state.
func NewParentMissingError(state string) *ParentMissingError {
	return &ParentMissingError{State: state}
}

// ActionError wraps a failure (returned error or recovered panic) from a
// user entry/do/exit hook or a transition action. Phase is one of
// "entry", "do", "exit", or "transition".
type ActionError struct {
	State string
	Phase string
	Err   error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("hsm: %s action failed on %q: %v", e.Phase, e.State, e.Err)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// NewActionError builds an ActionError for the named state and phase.
func NewActionError(state, phase string, err error) *ActionError {
	return &ActionError{State: state, Phase: phase, Err: err}
}

// ErrAlreadyStopped is returned by Start when the driver has already been
// started once (running, stopped, or failed); machines are one-shot and
// there is no reset.
var ErrAlreadyStopped = fmt.Errorf("hsm: machine already started and stopped; construct a new one to restart")

// ErrNotStarted is returned by operations that require a running driver.
var ErrNotStarted = fmt.Errorf("hsm: machine has not been started")

// ErrValueNotSet is the value EventWithValue.Value panics with when no
// payload is present (before any SetValue, or after a Poll that found
// nothing pending cleared it) — the payload contract is explicitly
// undefined after clear, so this module panics loudly rather than
// returning a stale or zero value silently.
var ErrValueNotSet = fmt.Errorf("hsm: event value read without a set payload")
