package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an authentication failure.
type Kind string

const (
	KindValidation      Kind = "validation"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindVerification    Kind = "verification"
	KindUserNotFound    Kind = "user_not_found"
	KindBadCredentials  Kind = "bad_credentials"
	KindUnverified      Kind = "unverified"
	KindAccountInactive Kind = "account_inactive"
	KindTotpRequired    Kind = "totp_required"
	KindTotpInvalid     Kind = "totp_invalid"
	KindUnauthorized    Kind = "unauthorized"
	KindInternal        Kind = "internal"
)

// Field tags tell the caller which input a failure relates to.
const (
	FieldName     = "name"
	FieldEmail    = "email"
	FieldPassword = "password"
	FieldPhone    = "phone"
	FieldCode     = "code"
	FieldToken    = "token"
	FieldAccount  = "account"
)

// Error is the typed failure returned by every Authority operation.
type Error struct {
	Kind    Kind
	Field   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, auth.ErrTotpRequired).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Field == "" || t.Field == e.Field)
}

// Sentinels for errors.Is checks. They match any *Error of the same kind.
var (
	ErrValidation      = &Error{Kind: KindValidation}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrVerification    = &Error{Kind: KindVerification}
	ErrUserNotFound    = &Error{Kind: KindUserNotFound}
	ErrBadCredentials  = &Error{Kind: KindBadCredentials}
	ErrUnverified      = &Error{Kind: KindUnverified}
	ErrAccountInactive = &Error{Kind: KindAccountInactive}
	ErrTotpRequired    = &Error{Kind: KindTotpRequired}
	ErrTotpInvalid     = &Error{Kind: KindTotpInvalid}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrInternal        = &Error{Kind: KindInternal}
)

func newError(kind Kind, field, message string) *Error {
	return &Error{Kind: kind, Field: field, Message: message}
}

func validationError(field, message string) *Error {
	return newError(KindValidation, field, message)
}

func verificationError(field string) *Error {
	return newError(KindVerification, field, "invalid or expired code")
}

func internalError(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// AsError returns err as an *Error, wrapping anything unexpected as an
// internal failure.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr
	}
	return internalError("internal error", err)
}

// HTTPStatus maps a failure kind to its HTTP status code.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindValidation, KindVerification:
		return http.StatusBadRequest
	case KindNotFound, KindUserNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindBadCredentials, KindTotpRequired, KindTotpInvalid, KindUnauthorized:
		return http.StatusUnauthorized
	case KindUnverified, KindAccountInactive:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
