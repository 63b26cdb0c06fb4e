package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

type ErrorKind string

const (
	ErrorAuth          ErrorKind = "auth"
	ErrorRateLimited   ErrorKind = "rate_limited"
	ErrorBadRequest    ErrorKind = "bad_request"
	ErrorServer        ErrorKind = "server"
	ErrorTimeout       ErrorKind = "timeout"
	ErrorNetwork       ErrorKind = "network"
	ErrorEmptyResponse ErrorKind = "empty_response"
)

// Error is the single failure type every adapter returns. Its message never includes the
// credential and stays generic enough to surface to end users.
type Error struct {
	Provider   Kind
	Kind       ErrorKind
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Provider.DisplayName())
	b.WriteString(" request failed")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	} else if e.Kind == ErrorTimeout {
		b.WriteString(" (timeout)")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

func kindForStatus(status int) ErrorKind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrorAuth
	case status == http.StatusTooManyRequests:
		return ErrorRateLimited
	case status >= 500:
		return ErrorServer
	case status >= 400:
		return ErrorBadRequest
	default:
		return ErrorNetwork
	}
}

func newStatusError(p Kind, status int, msg string, cause error) *Error {
	return &Error{Provider: p, Kind: kindForStatus(status), StatusCode: status, Message: msg, Err: cause}
}

// transportError classifies failures that carry no HTTP status.
func transportError(ctx context.Context, p Kind, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Provider: p, Kind: ErrorTimeout, Message: "no response before the deadline", Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Provider: p, Kind: ErrorNetwork, Message: "request canceled", Err: err}
	}
	return &Error{Provider: p, Kind: ErrorNetwork, Message: "could not reach the provider", Err: err}
}

func emptyResponse(p Kind) *Error {
	return &Error{Provider: p, Kind: ErrorEmptyResponse, Message: "response contained no text"}
}

// messageFromBody pulls a human-readable message out of the error shapes vendors return:
// {"error":{"message":..}}, {"message":..}, {"error":".."}, {"detail":..}.
func messageFromBody(body string) string {
	if body == "" || !gjson.Valid(body) {
		return strings.TrimSpace(body)
	}
	for _, path := range []string{"error.message", "message", "error", "detail", "0.error.message"} {
		r := gjson.Get(body, path)
		if r.Exists() && r.Type == gjson.String && r.String() != "" {
			return r.String()
		}
	}
	return ""
}
