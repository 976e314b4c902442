/*
SPDX-License-Identifier: Apache-2.0
*/

// Package fault defines the typed failures returned by auction transitions.
//
// A failed transition never mutates the contract instance. Callers branch on
// the failure kind with errors.Is against the sentinels below, or KindOf.
package fault

import (
	"errors"
	"fmt"
)

// Kind categorizes a rejected transition.
type Kind string

const (
	NotAuthorized     Kind = "NOT_AUTHORIZED"
	InvalidState      Kind = "INVALID_STATE"
	InvalidParameters Kind = "INVALID_PARAMETERS"
	WrongToken        Kind = "WRONG_TOKEN"
	InsufficientFunds Kind = "INSUFFICIENT_FUNDS"
	NotFound          Kind = "NOT_FOUND"
	AlreadyExists     Kind = "ALREADY_EXISTS"
)

// Sentinels for errors.Is. Only the Kind is compared.
var (
	ErrNotAuthorized     = &Error{Kind: NotAuthorized}
	ErrInvalidState      = &Error{Kind: InvalidState}
	ErrInvalidParameters = &Error{Kind: InvalidParameters}
	ErrWrongToken        = &Error{Kind: WrongToken}
	ErrInsufficientFunds = &Error{Kind: InsufficientFunds}
	ErrNotFound          = &Error{Kind: NotFound}
	ErrAlreadyExists     = &Error{Kind: AlreadyExists}
)

// Error is a rejected transition.
type Error struct {
	// Kind identifies the failure category.
	Kind Kind

	// Op is the transition that was attempted, e.g. "acceptOffer".
	Op string

	// Message is a human-readable description.
	Message string
}

// New creates an Error with a formatted message.
func New(kind Kind, op string, format string, args ...interface{}) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Message: fmt.Sprintf(format, args...),
	}
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Message != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Op, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	default:
		return string(e.Kind)
	}
}

// Is reports whether target is an *Error of the same Kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the Kind of err, or "" when err is not a fault.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
