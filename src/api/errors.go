package api

import (
	"errors"
	"fmt"
)

// ErrAuthExpired is returned when the backend rejects the bearer token.
// Callers sign out and route to the login screen.
var ErrAuthExpired = errors.New("api: not signed in or token expired")

// RejectionError is a request the backend understood and refused.
type RejectionError struct {
	Status int
	Code   int
	Msg    string
}

func (e *RejectionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("api: rejected (status %d, code %d): %s", e.Status, e.Code, e.Msg)
	}
	return fmt.Sprintf("api: rejected (status %d): %s", e.Status, e.Msg)
}

// TransportError wraps a failure to reach the backend or decode its
// answer.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return "api: " + e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// Message returns the text to show a user for err.
func Message(err error, fallback string) string {
	var rej *RejectionError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthExpired):
		return "未登录或Token失效"
	case errors.As(err, &rej) && rej.Msg != "":
		return rej.Msg
	}
	return fallback
}
