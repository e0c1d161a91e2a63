// Package errs describes the error taxonomy of the tracking core.
//
// Every error that crosses a package boundary towards a caller carries a Kind.
// Transport layers map the Kind to a status code and a generic message;
// the wrapped cause is only ever logged.
package errs

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound          Kind = "NOT_FOUND"
	KindInvalidStatus     Kind = "INVALID_STATUS"
	KindInvalidCoordinate Kind = "INVALID_COORDINATE"
	KindMissingData       Kind = "MISSING_DATA"
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindForbidden         Kind = "FORBIDDEN"
	KindStoreFailure      Kind = "STORE_FAILURE"
	KindUnavailable       Kind = "UNAVAILABLE"
	KindInternal          Kind = "INTERNAL_ERROR"
)

// Sentinels for errors.Is; they match any *Error of the same Kind.
var (
	ErrNotFound          = &Error{Kind: KindNotFound}
	ErrInvalidStatus     = &Error{Kind: KindInvalidStatus}
	ErrInvalidCoordinate = &Error{Kind: KindInvalidCoordinate}
	ErrMissingData       = &Error{Kind: KindMissingData}
	ErrUnauthorized      = &Error{Kind: KindUnauthorized}
	ErrForbidden         = &Error{Kind: KindForbidden}
	ErrStoreFailure      = &Error{Kind: KindStoreFailure}
	ErrUnavailable       = &Error{Kind: KindUnavailable}
)

type Error struct {
	Kind  Kind
	Msg   string
	Cause error
}

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, Cause: cause}
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of the outermost *Error in the chain, KindInternal otherwise.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
