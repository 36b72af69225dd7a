package errs

import (
	"errors"
	"fmt"
)

// Application error codes. Every error that leaves a crud service carries one of these,
// so that the http layer can translate it into a status code without knowing its origin.
const (
	// EUNAUTHENTICATED is returned when a credential is missing or invalid.
	EUNAUTHENTICATED = "unauthenticated"
	// EINVALID is returned when the input is malformed, e.g. an empty caption.
	EINVALID = "invalid"
	// ENOTFOUND is returned when a referenced entity does not exist.
	ENOTFOUND = "not_found"
	// ECONFLICT is returned on duplicate handles or emails, already-following,
	// not-following and store version mismatches.
	ECONFLICT = "conflict"
	// EFORBIDDEN is returned when the actor has no rights over the target entity.
	EFORBIDDEN = "forbidden"
	// EPARTIAL is returned when a multi-step graph mutation was only partially committed.
	EPARTIAL = "partial_failure"
	// EEMPTY is returned when a well-formed query yields no rows and the caller
	// wants that reported explicitly.
	EEMPTY = "empty_result"
	// ETOOMANY is returned when a client exceeded its request rate.
	ETOOMANY = "too_many_requests"
	// EINTERNAL is the code of every error that doesn't carry its own.
	EINTERNAL = "internal"
)

// Error is the structured error type of the app. Code is one of the constants above,
// Message is meant to be read by end users, Err optionally holds the underlying cause.
type Error struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Errorf is a helper for returning an *Error with the given code and formatted message.
func Errorf(code string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap returns an *Error with the given code and message whose cause is err.
func Wrap(code string, err error, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the code of the first *Error in err's chain.
// It returns EINTERNAL for any other error and "" for nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return EINTERNAL
}

// ErrorMessage returns the user facing message of the first *Error in err's chain.
// Internal errors get a generic message, their details stay in the logs.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error."
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}

// Errors the follow graph returns as is, so callers can match them with errors.Is.
var (
	AlreadyFollowing = &Error{Code: ECONFLICT, Message: "You are already following this user."}
	NotFollowing     = &Error{Code: ECONFLICT, Message: "You are not following this user."}
	// VersionConflict is returned by the store when an update carries a stale version.
	VersionConflict = &Error{Code: ECONFLICT, Message: "The record was changed by someone else, please try again."}
)
