package types

import (
	"context"

	"github.com/juju/errors"
)

var (
	_ error = &ValidationError{}
	_ error = &ProviderError{}
)

// ErrStopped marks an operation aborted by StopFlow or a superseding run.
// It is an outcome, not a failure.
var ErrStopped = errors.New(StoppedMessage)

func NewValidationError(otherErr error) error {
	return &ValidationError{baseError: newBaseErr(otherErr)}
}

func NewValidationErrorf(format string, args ...interface{}) error {
	return NewValidationError(errors.Errorf(format, args...))
}

func NewProviderError(provider string, statusCode int, message string) error {
	return &ProviderError{
		baseError:  newBaseErr(errors.New(message)),
		Provider:   provider,
		StatusCode: statusCode,
	}
}

func IsStopped(err error) bool {
	return errors.Is(err, ErrStopped) || errors.Is(err, context.Canceled)
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func newBaseErr(otherErr error) *baseError {
	return &baseError{unwrapErr(otherErr)}
}

func unwrapErr(err error) error {
	if err == nil {
		return nil
	}
	if ue, ok := err.(wrappedErr); ok {
		return unwrapErr(ue.UnwrapLocal())
	}
	return err
}

type wrappedErr interface {
	UnwrapLocal() error
}

type baseError struct {
	BaseErr error
}

func (e *baseError) Error() string {
	return e.BaseErr.Error()
}

func (e *baseError) UnwrapLocal() error {
	return e.BaseErr
}

// ValidationError is an input problem detected before any work starts
// (empty prompt, missing upstream, missing start node).
type ValidationError struct {
	*baseError
}

// ProviderError is a non-success answer from the relay or the provider behind it.
type ProviderError struct {
	*baseError
	Provider   string
	StatusCode int
}
