package cluster

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// ReadError marks a transient cluster API failure, retryable with backoff.
type ReadError struct {
	Err error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("ReadError: %v", e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

// ValidationRejected marks a non-transient per-resource rejection, e.g. a
// schema validation failure. Never retried.
type ValidationRejected struct {
	Err error
}

func (e *ValidationRejected) Error() string {
	return fmt.Sprintf("ValidationRejected: %v", e.Err)
}

func (e *ValidationRejected) Unwrap() error {
	return e.Err
}

func IsReadError(err error) bool {
	var readErr *ReadError
	return errors.As(err, &readErr)
}

func IsValidationRejected(err error) bool {
	var valErr *ValidationRejected
	return errors.As(err, &valErr)
}

func IsNotFound(err error) bool {
	return apierrors.IsNotFound(err)
}

// classifyAPIError maps an API server error onto the controller's taxonomy.
// NotFound passes through untouched: it is an expected outcome, not a failure.
func classifyAPIError(err error) error {
	if err == nil || apierrors.IsNotFound(err) {
		return err
	}
	if apierrors.IsInvalid(err) || apierrors.IsBadRequest(err) ||
		apierrors.IsRequestEntityTooLargeError(err) || apierrors.IsMethodNotSupported(err) {
		return &ValidationRejected{Err: err}
	}
	return &ReadError{Err: err}
}
