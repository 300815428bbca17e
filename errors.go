package reqrs

import (
	"errors"
	"fmt"
	"strings"
)

// RequestError is a transport or remote failure reported by a RequestFunc.
type RequestError struct {
	Message string
	Errors  []string
	cause   error
}

// NewRequestError builds a RequestError carrying a message and error list.
func NewRequestError(message string, errs ...string) *RequestError {
	return &RequestError{Message: message, Errors: errs}
}

func (e *RequestError) Error() string {
	if len(e.Errors) == 0 {
		return "request failed: " + e.Message
	}
	return fmt.Sprintf("request failed: %s [%s]", e.Message, strings.Join(e.Errors, "; "))
}

func (e *RequestError) Unwrap() error { return e.cause }

// AsRequestError returns err as a *RequestError. Errors of any other type are
// wrapped, with their text used as both message and the single error entry.
func AsRequestError(err error) *RequestError {
	if err == nil {
		return nil
	}
	var re *RequestError
	if errors.As(err, &re) {
		return re
	}
	msg := err.Error()
	return &RequestError{Message: msg, Errors: []string{msg}, cause: err}
}

// InvariantCode categorizes programmer errors.
type InvariantCode string

const (
	// CodeUnknownOperation: an action or effect name is not registered on the slice.
	CodeUnknownOperation InvariantCode = "UNKNOWN_OPERATION"
	// CodeDuplicateName: two operations or slices share a name.
	CodeDuplicateName InvariantCode = "DUPLICATE_NAME"
	// CodeReservedName: an operation uses a name owned by the engine (loadingStart, ...).
	CodeReservedName InvariantCode = "RESERVED_NAME"
	// CodeBadPayload: a payload does not have the type the reducer expects.
	CodeBadPayload InvariantCode = "BAD_PAYLOAD"
	// CodeBadConfig: construction options are incomplete or inconsistent.
	CodeBadConfig InvariantCode = "BAD_CONFIG"
)

// InvariantError is a programmer error. It is never converted into state.
type InvariantError struct {
	Code    InvariantCode
	Slice   string
	Op      string
	Message string
}

func (e *InvariantError) Error() string {
	switch {
	case e.Slice != "" && e.Op != "":
		return fmt.Sprintf("%s: %s (op=%s/%s)", e.Code, e.Message, e.Slice, e.Op)
	case e.Slice != "":
		return fmt.Sprintf("%s: %s (slice=%s)", e.Code, e.Message, e.Slice)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsInvariant reports whether err wraps an InvariantError with one of codes.
// With no codes any InvariantError matches.
func IsInvariant(err error, codes ...InvariantCode) bool {
	var ie *InvariantError
	if !errors.As(err, &ie) {
		return false
	}
	if len(codes) == 0 {
		return true
	}
	for _, c := range codes {
		if ie.Code == c {
			return true
		}
	}
	return false
}

// UnknownOperation builds the error returned for unregistered operation names.
func UnknownOperation(slice, op string) *InvariantError {
	return &InvariantError{Code: CodeUnknownOperation, Slice: slice, Op: op, Message: "operation is not registered"}
}
