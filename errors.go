package objectbind

import (
	"errors"
	"fmt"
)

// IllegalStateError reports builder or query misuse: a pending combinator
// left unconsumed at build(), an explicit and()/or() with no prior
// condition, a second filter(), or any use of a builder/query after it was
// closed.
type IllegalStateError struct {
	Msg string
}

func (e *IllegalStateError) Error() string { return "objectbind: illegal state: " + e.Msg }

func illegalState(format string, args ...any) error {
	return &IllegalStateError{Msg: fmt.Sprintf(format, args...)}
}

// UnsupportedError reports an operation disallowed for the query's current
// configuration, e.g. find_first with a post-filter, or find_ids on an
// ordered query.
type UnsupportedError struct {
	Msg string
}

func (e *UnsupportedError) Error() string { return "objectbind: unsupported: " + e.Msg }

func unsupported(format string, args ...any) error {
	return &UnsupportedError{Msg: fmt.Sprintf(format, args...)}
}

// InvalidArgumentError reports a caller-supplied argument that can never be
// valid: an unsupported null_value class, a null date, or distinct(StringOrder)
// on a non-string property.
type InvalidArgumentError struct {
	Msg string
}

func (e *InvalidArgumentError) Error() string { return "objectbind: invalid argument: " + e.Msg }

func invalidArgument(format string, args ...any) error {
	return &InvalidArgumentError{Msg: fmt.Sprintf(format, args...)}
}

// NotUniqueError is returned by FindUnique when the engine reports more than
// one matching row.
type NotUniqueError struct {
	Count int
}

func (e *NotUniqueError) Error() string {
	return fmt.Sprintf("objectbind: not unique: expected at most one result, got %d", e.Count)
}

// BackendError wraps a failure surfaced by the StorageBackend. Transient
// marks errors eligible for the bounded-retry envelope in Query's
// transaction loop; non-transient BackendErrors surface to the caller
// immediately, same as validation errors.
type BackendError struct {
	Transient bool
	Err       error
}

func (e *BackendError) Error() string { return "objectbind: backend error: " + e.Err.Error() }
func (e *BackendError) Unwrap() error { return e.Err }

// BreakForEach is raised by a ForEach consumer to stop iteration early. It
// never propagates out of ForEach; ForEach recovers it and returns nil.
var BreakForEach = errors.New("objectbind: break for each")

// IsTransient reports whether err is a BackendError marked transient.
func IsTransient(err error) bool {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Transient
	}
	return false
}
