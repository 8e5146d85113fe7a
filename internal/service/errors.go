package service

import (
	"errors"
	"fmt"
)

// Kind classifies a service error; the HTTP layer maps it to a status.
type Kind int

const (
	KindValidation Kind = iota + 1
	KindNotFound
	KindForbidden
	KindConflict
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindPersistence:
		return "persistence"
	}
	return "unknown"
}

// Error is the single error type returned across the service boundary.
// Fields is set for field-level validation failures; Msg otherwise.
type Error struct {
	Kind   Kind
	Msg    string
	Fields map[string][]string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %v", e.Kind, e.Fields)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or KindPersistence for errors that did
// not originate in this package.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindPersistence
}

func invalid(msg string) *Error { return &Error{Kind: KindValidation, Msg: msg} }

func notFound(msg string) *Error { return &Error{Kind: KindNotFound, Msg: msg} }

func forbidden(msg string) *Error { return &Error{Kind: KindForbidden, Msg: msg} }

func persistence(op string, err error) *Error {
	return &Error{Kind: KindPersistence, Msg: op, Err: err}
}

// fieldErrors accumulates field-level validation messages.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) { f[field] = append(f[field], msg) }

func (f fieldErrors) err() error {
	if len(f) == 0 {
		return nil
	}
	return &Error{Kind: KindValidation, Fields: f}
}

// Named outcomes compared with errors.Is.
var (
	ErrExpired              = &Error{Kind: KindForbidden, Msg: "Arrangement expired or starts within 5 days."}
	ErrEditWindowClosed     = &Error{Kind: KindForbidden, Msg: "Arrangement can no longer be changed, it starts within 5 days."}
	ErrCapacityExceeded     = &Error{Kind: KindConflict, Msg: "There is not that much seats left."}
	ErrAlreadyReserved      = &Error{Kind: KindConflict, Msg: "Already made such a reservation."}
	ErrGuideUnavailable     = &Error{Kind: KindConflict, Msg: "Guide is not available on the arrangement dates."}
	ErrArrangementCancelled = &Error{Kind: KindConflict, Msg: "Arrangement is cancelled."}
	ErrNotCreator           = &Error{Kind: KindForbidden, Msg: "Only the admin who created the arrangement can change it."}
	ErrNotAssignedGuide     = &Error{Kind: KindForbidden, Msg: "Arrangement is not assigned to you."}
	ErrGuideFieldChange     = &Error{Kind: KindForbidden, Msg: "Guides may only change the description."}
	ErrRoleNotAllowed       = &Error{Kind: KindForbidden, Msg: "Your account type is not allowed to do this."}
	ErrOwnsArrangements     = &Error{Kind: KindConflict, Msg: "User still owns arrangements, delete them first."}
	ErrTypeInUse            = &Error{Kind: KindConflict, Msg: "Account type is still in use."}
	ErrBuiltinType          = &Error{Kind: KindForbidden, Msg: "Built-in account types cannot be changed."}
	ErrInvalidCredentials   = &Error{Kind: KindForbidden, Msg: "Invalid username or password."}
	ErrInvalidResetToken    = &Error{Kind: KindForbidden, Msg: "Reset token is invalid or expired."}
	ErrUserExists           = &Error{Kind: KindConflict, Msg: "User with that email or username already exists."}
	ErrTypeExists           = &Error{Kind: KindConflict, Msg: "Account type already exists."}
)
