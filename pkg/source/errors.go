package source

import (
	"errors"
	"fmt"
)

// Kind classifies fetch failures for the scheduler's retry policy.
type Kind string

const (
	// KindSourceUnavailable means the store could not be reached, retryable.
	KindSourceUnavailable Kind = "SourceUnavailable"
	// KindRevisionNotFound means the requested revision does not exist.
	KindRevisionNotFound Kind = "RevisionNotFound"
	// KindAuthorizationDenied means the store refused access.
	KindAuthorizationDenied Kind = "AuthorizationDenied"
)

// Error is a classified fetch failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Err: fmt.Errorf(format, args...)}
}

func kindOf(err error) (Kind, bool) {
	var srcErr *Error
	if errors.As(err, &srcErr) {
		return srcErr.Kind, true
	}
	return "", false
}

func IsSourceUnavailable(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindSourceUnavailable
}

func IsRevisionNotFound(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindRevisionNotFound
}

func IsAuthorizationDenied(err error) bool {
	k, ok := kindOf(err)
	return ok && k == KindAuthorizationDenied
}
