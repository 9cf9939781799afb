// Package apperr defines the error taxonomy shared by every service.
//
// Errors carry a Kind (how callers should react) and a stable Code (what
// happened). errors.Is matches two *Error values by Code, so sentinels can be
// wrapped with extra context and still be recognised.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindPolicy     Kind = "policy_violation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindRemote     Kind = "remote"
)

type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of e with a more specific message, keeping Kind and Code.
func (e *Error) WithMessage(format string, args ...any) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

func Validation(code, msg string) *Error {
	return &Error{Kind: KindValidation, Code: code, Message: msg}
}
func Policy(code, msg string) *Error   { return &Error{Kind: KindPolicy, Code: code, Message: msg} }
func NotFound(code, msg string) *Error { return &Error{Kind: KindNotFound, Code: code, Message: msg} }
func Conflict(code, msg string) *Error { return &Error{Kind: KindConflict, Code: code, Message: msg} }

// Remote wraps a failure from the database, storage or a serverless function.
// The underlying message is passed through.
func Remote(op string, err error) *Error {
	return &Error{Kind: KindRemote, Code: "remote_error", Message: op, Err: err}
}

// KindOf classifies err. Unclassified errors report "".
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// CodeOf returns the stable code of err, or "internal" when unclassified.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "internal"
}

var (
	ErrInvalidAmount   = Validation("invalid_amount", "amount must be greater than zero")
	ErrInvalidArgument = Validation("invalid_argument", "invalid argument")

	ErrInsufficientBalance   = Policy("insufficient_balance", "insufficient wallet balance")
	ErrExceedsDues           = Policy("amount_exceeds_dues", "amount exceeds outstanding dues")
	ErrDuesBlocked           = Policy("dues_blocked", "payouts are blocked while postpaid dues are outstanding")
	ErrBelowMinimum          = Policy("below_minimum_payout", "amount is below the minimum payout")
	ErrInsufficientAvailable = Policy("insufficient_available", "pending payouts exceed wallet balance")
	ErrPostpaidDisabled      = Policy("postpaid_disabled", "postpaid credit is not enabled")
	ErrCreditLimitExceeded   = Policy("credit_limit_exceeded", "order total exceeds available credit")
	ErrRateLimited           = Policy("rate_limited", "too many requests")

	ErrInvalidTransition = Conflict("invalid_transition", "status transition not allowed")
	ErrStaleStatus       = Conflict("stale_status", "status changed since it was read")
	ErrInFlight          = Conflict("in_flight", "another request for this account is in progress")

	ErrProfileNotFound = NotFound("profile_not_found", "profile not found")
	ErrOrderNotFound   = NotFound("order_not_found", "order not found")
	ErrPayoutNotFound  = NotFound("payout_not_found", "payout request not found")
	ErrSessionNotFound = NotFound("chat_session_not_found", "chat session not found")
)
