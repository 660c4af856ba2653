// Package apperr defines the error kinds shared by the journey client and the
// account service. Callers branch on the kind with the Is* helpers; the
// message is safe to show to a parent.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindAuth
	KindNotFound
	KindState
	KindNetwork
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindNotFound:
		return "not_found"
	case KindState:
		return "state"
	case KindNetwork:
		return "network"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error is a classified failure. Op names the operation that failed, for logs.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String() + " error"
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap classifies err. The message defaults to err's text.
func Wrap(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func Auth(op, message string) *Error       { return New(KindAuth, op, message) }
func NotFound(op, message string) *Error   { return New(KindNotFound, op, message) }
func State(op, message string) *Error      { return New(KindState, op, message) }
func Validation(op, message string) *Error { return New(KindValidation, op, message) }

// Network wraps a transport failure.
func Network(op string, err error) *Error { return Wrap(KindNetwork, op, err) }

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// MessageOf returns the user-facing message of the first *Error in err's
// chain, without the Op prefix.
func MessageOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

func IsAuth(err error) bool       { return KindOf(err) == KindAuth }
func IsNotFound(err error) bool   { return KindOf(err) == KindNotFound }
func IsState(err error) bool      { return KindOf(err) == KindState }
func IsNetwork(err error) bool    { return KindOf(err) == KindNetwork }
func IsValidation(err error) bool { return KindOf(err) == KindValidation }
