// Package errs defines the scheduler's error taxonomy. Each failure the
// scheduler can surface is a named Kind on a concrete error type, not a
// predicate function over an untyped error.
package errs

import "fmt"

// Kind identifies which named failure occurred.
type Kind string

const (
	KindInvalidRegistrationsShape Kind = "invalid-registrations-shape"
	KindInvalidRegistration       Kind = "invalid-registration"
	KindInvalidCronExpressionType Kind = "invalid-cron-expression-type"
	KindCronExpressionInvalid     Kind = "cron-expression-invalid"
	KindCallbackType              Kind = "callback-type"
	KindRetryDelayType            Kind = "retry-delay-type"
	KindNegativeRetryDelay        Kind = "negative-retry-delay"
	KindOptionsType               Kind = "options-type"
	KindInvalidPollInterval       Kind = "invalid-poll-interval"
	KindScheduleTask              Kind = "schedule-task"
	KindPollingFrequencyChange    Kind = "polling-frequency-change"
	KindStorage                   Kind = "storage"
)

// Error is the concrete error type surfaced by the scheduler. Task is the
// offending registration's name, empty when the error is not task-scoped.
// Detail carries kind-specific structured data (e.g. the two poll
// intervals in a polling-frequency-change error).
type Error struct {
	Kind    Kind
	Task    string
	Message string
	Detail  map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Task != "" {
		return fmt.Sprintf("%s: task %q: %s", e.Kind, e.Task, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause, if any, for errors.Is/As.
func (e *Error) Unwrap() error { return e.Err }

// New constructs an Error with no task scope.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// NewTask constructs an Error scoped to a task name.
func NewTask(kind Kind, task, message string) *Error {
	return &Error{Kind: kind, Task: task, Message: message}
}

// Wrap constructs an Error that preserves an underlying cause.
func Wrap(kind Kind, task string, err error) *Error {
	return &Error{Kind: kind, Task: task, Message: err.Error(), Err: err}
}

// WithDetail attaches structured detail fields and returns the receiver for
// chaining at the construction site.
func (e *Error) WithDetail(key string, value any) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]any)
	}
	e.Detail[key] = value
	return e
}

// Is reports whether err is a scheduler Error of the given kind.
func Is(err error, kind Kind) bool {
	var se *Error
	for err != nil {
		if e, ok := err.(*Error); ok {
			se = e
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return se != nil && se.Kind == kind
}
