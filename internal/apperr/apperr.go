// Package apperr defines the error kinds the domain packages return. The
// HTTP error handler maps kinds to status codes; handlers never build status
// codes out of raw strings.
package apperr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindPermission
	KindConflict
	KindOverpayment
	KindInvalidQuantity
	KindState
)

type Error struct {
	Kind    Kind
	Message string
	// Fields carries per-field validation detail when Kind is KindValidation.
	Fields map[string]string
}

func (e *Error) Error() string { return e.Message }

func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Validation(fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func NotFound(what string) *Error {
	return &Error{Kind: KindNotFound, Message: what + " not found"}
}

func Permission(msg string) *Error {
	return &Error{Kind: KindPermission, Message: msg}
}

func Conflict(format string, args ...any) *Error {
	return New(KindConflict, format, args...)
}

func Overpayment(format string, args ...any) *Error {
	return New(KindOverpayment, format, args...)
}

func InvalidQuantity(format string, args ...any) *Error {
	return New(KindInvalidQuantity, format, args...)
}

func State(format string, args ...any) *Error {
	return New(KindState, format, args...)
}

// KindOf extracts the kind from an error chain, KindUnknown otherwise.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindUnknown
}

// Is lets errors.Is match two apperr values by kind.
func (e *Error) Is(target error) bool {
	var ae *Error
	if errors.As(target, &ae) {
		return ae.Kind == e.Kind
	}
	return false
}
