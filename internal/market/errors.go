package market

import (
	"errors"
	"fmt"
)

// Code classifies a service failure for callers.
type Code string

// Error codes surfaced by the Market operations.
const (
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeSignatureInvalid     Code = "SIGNATURE_INVALID"
	CodeNotFound             Code = "NOT_FOUND"
	CodeForbidden            Code = "FORBIDDEN"
	CodeOfferStale           Code = "OFFER_STALE"
	CodeProfileUnsatisfiable Code = "PROFILE_UNSATISFIABLE"
	CodeConflict             Code = "CONFLICT"
	CodeResourceExhausted    Code = "RESOURCE_EXHAUSTED"
	CodeInternal             Code = "INTERNAL"
)

// Error is a classified service failure.
type Error struct {
	Code Code
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf builds a classified error.
func Errorf(code Code, format string, args ...interface{}) *Error {
	var wrapped error
	for _, a := range args {
		if err, ok := a.(error); ok {
			wrapped = err
		}
	}
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...), Err: wrapped}
}

// CodeOf extracts the code of err, or CodeInternal for unclassified errors.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// Retryable reports whether the caller may retry the operation.
func Retryable(err error) bool {
	return CodeOf(err) == CodeConflict
}
