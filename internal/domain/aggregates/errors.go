package aggregates

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies store and catalog failures independently of the
// transport that reports them.
type ErrorCode string

const (
	CodeValidation ErrorCode = "validation"
	// CodeNotFound also covers rows that exist but belong to another owner.
	CodeNotFound ErrorCode = "not_found"
	// CodeConflict is a lost race: unique violation or a CAS guard miss.
	CodeConflict ErrorCode = "conflict"
	// CodePreconditionFailed means the entity is in the wrong state for the
	// request, e.g. a decision on a job that is not parked.
	CodePreconditionFailed ErrorCode = "precondition_failed"
	// CodeRetryable is lock contention, serialization failure or a deadline.
	CodeRetryable ErrorCode = "retryable"
	CodeInternal  ErrorCode = "internal"
)

type Error struct {
	Code    ErrorCode
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	op := strings.TrimSpace(e.Op)
	msg := strings.TrimSpace(e.Message)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func NewError(code ErrorCode, op, message string, cause error) error {
	return &Error{
		Code:    code,
		Op:      strings.TrimSpace(op),
		Message: strings.TrimSpace(message),
		Cause:   cause,
	}
}

func Wrap(code ErrorCode, op string, err error) error {
	if err == nil {
		return nil
	}
	return NewError(code, op, err.Error(), err)
}

func IsCode(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

// Transient reports whether re-running the same write could succeed.
func Transient(err error) bool {
	switch CodeOf(err) {
	case CodeRetryable, CodeConflict:
		return true
	default:
		return false
	}
}

// CodeOf returns the outermost aggregate code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var aggErr *Error
	if !errors.As(err, &aggErr) {
		return ""
	}
	return aggErr.Code
}
