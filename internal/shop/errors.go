package shop

import (
	"errors"
	"fmt"
)

// ErrorKind classifies every failure the cart transport can report.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	KindNetwork
	KindDecode
	KindValidation
	KindOutOfStock
	KindNotFound
)

// String returns the kind name used in logs.
func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindNetwork:
		return "network"
	case KindDecode:
		return "decode"
	case KindValidation:
		return "validation"
	case KindOutOfStock:
		return "out_of_stock"
	case KindNotFound:
		return "not_found"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Sentinels for errors.Is checks against a *Error of the matching kind.
var (
	ErrNetwork    = errors.New("network error")
	ErrDecode     = errors.New("decode error")
	ErrValidation = errors.New("validation error")
	ErrOutOfStock = errors.New("out of stock")
	ErrNotFound   = errors.New("not found")
)

// Error is the single error type returned by the transport.
type Error struct {
	Kind    ErrorKind
	Op      string // e.g. "cart.add"
	Status  int    // HTTP status, 0 when no response was received
	Message string // platform description or local reason
	Err     error

	// Applied is set when the server accepted a mutation but the call still
	// failed, so the cart's state is unknown rather than unchanged.
	Applied bool
}

func (e *Error) Error() string {
	msg := e.Op + ": " + e.Kind.String()
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrDecode:
		return e.Kind == KindDecode
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrOutOfStock:
		return e.Kind == KindOutOfStock
	case ErrNotFound:
		return e.Kind == KindNotFound
	}
	return false
}

// KindOf extracts the kind of err. Errors that did not come from the
// transport are reported as network failures, nil as KindNone.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindNetwork
}

// Applied reports whether err comes from a mutation the server accepted.
func Applied(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Applied
}

// NewValidationError builds a validation failure for op.
func NewValidationError(op, reason string) *Error {
	return &Error{Kind: KindValidation, Op: op, Message: reason}
}

func networkError(op string, status int, message string, err error) *Error {
	return &Error{Kind: KindNetwork, Op: op, Status: status, Message: message, Err: err}
}

func decodeError(op string, err error) *Error {
	return &Error{Kind: KindDecode, Op: op, Err: err}
}
