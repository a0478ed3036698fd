// Package errs carries the error taxonomy from spec §7 across package
// boundaries, so the RPC edge (internal/rpc) and the task processor
// (internal/processor) can map a single vocabulary to gRPC codes on one
// side and Task rationale on the other.
package errs

import (
	"errors"
	"fmt"
)

// Class is the retryability classification a caller uses to decide whether
// to retry or surface the error as terminal.
type Class int

const (
	// ClassTerminal errors will not succeed on retry (bad input, unknown id).
	ClassTerminal Class = iota
	// ClassRetryable errors may succeed if retried (transient dependency
	// failure).
	ClassRetryable
)

// Code is the taxonomy from §7.
type Code string

const (
	InvalidArgument Code = "INVALID_ARGUMENT"
	NotFound        Code = "NOT_FOUND"
	ScheduleConflict Code = "SCHEDULE_CONFLICT"
	Expired         Code = "EXPIRED"
	ClientCancelled Code = "CLIENT_CANCELLED"
	PriorityChanged Code = "PRIORITY_CHANGED"
	Internal        Code = "INTERNAL"
	GISUnavailable  Code = "GIS_UNAVAILABLE"
	RouteUnavailable Code = "ROUTE_UNAVAILABLE"
	CalendarParse   Code = "CALENDAR_PARSE"
	Storage         Code = "STORAGE"
)

// Error is a scheduler-domain error: a taxonomy code plus an underlying
// cause and a human-readable detail.
type Error struct {
	Code   Code
	Detail string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Detail)
}

func (e *Error) Unwrap() error { return e.Cause }

// New constructs an Error with the given code and detail.
func New(code Code, detail string) *Error {
	return &Error{Code: code, Detail: detail}
}

// Wrap constructs an Error wrapping cause with the given code and detail.
func Wrap(code Code, detail string, cause error) *Error {
	return &Error{Code: code, Detail: detail, Cause: cause}
}

// ClassOf returns the retryability class for a taxonomy code. RouteUnavailable
// ("no corridor exists between these pads at this time") is deliberately
// terminal, not retryable: it's a property of the request, not a transient
// dependency hiccup, so retrying it wastes the backoff budget without ever
// succeeding — unlike GISUnavailable (the GIS dependency itself is down) or
// Storage (the database connection is flaky).
func ClassOf(code Code) Class {
	switch code {
	case GISUnavailable, Storage, Internal:
		return ClassRetryable
	default:
		return ClassTerminal
	}
}

// CodeOf extracts the taxonomy Code from err, if it (or something it wraps)
// is an *Error. Returns ("", false) otherwise.
func CodeOf(err error) (Code, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}
