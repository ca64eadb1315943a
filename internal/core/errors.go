package core

import (
	"errors"
	"fmt"
)

// Kind classifies a failure returned by the budget engine.
type Kind string

const (
	KindValidation           Kind = "ValidationError"
	KindInsufficientFunds    Kind = "InsufficientFunds"
	KindNoOverflowTarget     Kind = "NoOverflowTarget"
	KindOverflowConfirmation Kind = "OverflowConfirmationRequired"
	KindNotFound             Kind = "NotFound"
	KindPersistence          Kind = "PersistenceFailure"
)

// Error is a typed failure carrying its Kind and a human-readable reason.
// Two Errors match under errors.Is when their kinds are equal.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is checks.
var (
	ErrValidation           = &Error{Kind: KindValidation}
	ErrInsufficientFunds    = &Error{Kind: KindInsufficientFunds}
	ErrNoOverflowTarget     = &Error{Kind: KindNoOverflowTarget}
	ErrOverflowConfirmation = &Error{Kind: KindOverflowConfirmation}
	ErrNotFound             = &Error{Kind: KindNotFound}
	ErrPersistence          = &Error{Kind: KindPersistence}
)

// Field-level validation errors, matched with errors.Is.
var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyLineName    = errors.New("empty line name")
	ErrEmptyStore       = errors.New("empty store")
)

// Failf builds an *Error of the given kind with a formatted reason.
func Failf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// Persistence wraps a storage error as a PersistenceFailure.
// Errors that already carry a Kind are returned unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var ke *Error
	if errors.As(err, &ke) {
		return err
	}
	return &Error{Kind: KindPersistence, Reason: op, Err: err}
}

// Invalid wraps a field validation error as a ValidationError.
func Invalid(err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: KindValidation, Reason: err.Error(), Err: err}
}

// KindOf extracts the Kind of err, or "" when err is not a typed failure.
func KindOf(err error) Kind {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return ""
}
