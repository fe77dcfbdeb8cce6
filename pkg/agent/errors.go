package agent

import (
	"errors"
	"net/http"
)

// ErrorKind classifies a failure of the agent pipeline. Action failures are
// not errors: they are fed back to the model as Failure results.
type ErrorKind string

const (
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindValidation      ErrorKind = "validation"
	KindUpstream        ErrorKind = "upstream"
)

// Error is returned by Handler.Handle. Message is safe to show to clients;
// Detail carries internal context that deployments may choose to suppress.
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	if e.Detail != "" {
		return e.Message + ": " + e.Detail
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// StatusCode maps the kind to an HTTP status.
func (e *Error) StatusCode() int {
	switch e.Kind {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func unauthenticated() *Error {
	return &Error{Kind: KindUnauthenticated, Message: "Authentication failed"}
}

func validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func upstream(err error) *Error {
	return &Error{Kind: KindUpstream, Message: "Internal Server Error", Detail: err.Error(), Err: err}
}

// KindOf returns the kind of err, or KindUpstream for errors that are not *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstream
}
