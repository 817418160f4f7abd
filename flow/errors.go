package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for the failure kinds produced by the framework.
// All errors returned by the core wrap one of these, so callers can
// classify failures with errors.Is regardless of the message text.
var (
	// ErrSearch is the parent of all registry lookup failures.
	ErrSearch = errors.New("search error")

	// ErrNothingFound signals a lookup that matched no registered signature.
	ErrNothingFound = fmt.Errorf("%w: nothing found", ErrSearch)

	// ErrFoundMoreThanOne signals an ambiguous lookup: two or more matches
	// with distinct values.
	ErrFoundMoreThanOne = fmt.Errorf("%w: found more than one", ErrSearch)

	// ErrAlreadyRegistered signals an insert with a signature that is
	// already present, with duplicate checking enabled.
	ErrAlreadyRegistered = errors.New("already registered")

	// ErrConditionNotMet is the default failure of a condition run as an action.
	ErrConditionNotMet = errors.New("condition not met")

	// ErrNoneExecuted signals a Switch where no branch condition validated.
	ErrNoneExecuted = errors.New("none of the actions can be executed")

	// ErrNotProperlyConfigured signals missing required wiring: a loop
	// without a body, a retry target without an output key, an async action
	// without a sync fallback.
	ErrNotProperlyConfigured = errors.New("action not properly configured")

	// ErrNotProperlyInherited signals an extension point (Get, Apply,
	// SideEffect) that was never provided.
	ErrNotProperlyInherited = errors.New("action not properly inherited")

	// ErrRetryExhausted signals a retry budget spent without success.
	ErrRetryExhausted = errors.New("retry exhausted")

	// ErrAsyncOnly signals an async-only construct invoked through the
	// synchronous entry point.
	ErrAsyncOnly = errors.New("runnable only in async context")
)

// RetryError is returned when a retried action never reached its success
// predicate. It carries the terminal RetryInfo for inspection.
type RetryError struct {
	ActionName string
	Info       RetryInfo
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %+v", e.ActionName, e.Info.Attempts, e.Info)
}

func (e *RetryError) Unwrap() error {
	return ErrRetryExhausted
}

// contextMarker is embedded in augmented error messages so an error
// travelling up through nested chains is contextualized exactly once.
const contextMarker = "--- action context ---"

// ActionError augments an error raised inside an action with the execution
// history, a dump of the registry values and the failing action's own
// parameters. The wrapped error stays reachable through Unwrap.
type ActionError struct {
	ActionName string
	Context    string
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s\n%s\n%s", strings.TrimSpace(e.Err.Error()), contextMarker, e.Context)
}

func (e *ActionError) Unwrap() error {
	return e.Err
}

// isContextualized reports whether err already carries the action context
// block, either as an *ActionError or as a marker left in its message.
func isContextualized(err error) bool {
	var ae *ActionError
	if errors.As(err, &ae) {
		return true
	}
	return strings.Contains(err.Error(), contextMarker)
}
