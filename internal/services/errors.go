package services

// Typed errors translated to HTTP statuses (and socket error events) at the
// edges. Services return these; handlers never inspect error strings.

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct{ Message string }

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

type UnauthorizedError struct{ Message string }

func (e *UnauthorizedError) Error() string { return e.Message }

type ForbiddenError struct{ Message string }

func (e *ForbiddenError) Error() string { return e.Message }

// StateError marks an operation that is invalid for the aggregate's current
// lifecycle state: responding to a cancelled invitation, double-accepting,
// messaging a completed session.
type StateError struct{ Message string }

func (e *StateError) Error() string { return e.Message }

type RateLimitError struct{ Message string }

func (e *RateLimitError) Error() string { return e.Message }
