// Package apperr defines the error taxonomy shared by the service and HTTP layers.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the caller.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindUnavailable
	KindInsufficientStock
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation_error"
	case KindAuthentication:
		return "authentication_error"
	case KindAuthorization:
		return "authorization_error"
	case KindNotFound:
		return "not_found"
	case KindUnavailable:
		return "unavailable"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindConflict:
		return "conflict"
	default:
		return "internal_error"
	}
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Message string

	// Field names the offending input for validation errors.
	Field string

	// ProductID, Available and Requested describe stock shortfalls.
	ProductID string
	Available int
	Requested int

	Err error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Validation reports malformed or missing input.
func Validation(field, format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Field: field, Message: fmt.Sprintf(format, args...)}
}

// Authentication reports a missing or invalid identity.
func Authentication(msg string) *Error {
	return &Error{Kind: KindAuthentication, Message: msg}
}

// Authorization reports an identity that may not perform the action.
func Authorization(msg string) *Error {
	return &Error{Kind: KindAuthorization, Message: msg}
}

// NotFound reports an absent product or order.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

// Unavailable reports an inactive product.
func Unavailable(productID, name string) *Error {
	return &Error{
		Kind:      KindUnavailable,
		ProductID: productID,
		Message:   fmt.Sprintf("product %s is not available for ordering", name),
	}
}

// InsufficientStock reports that requested exceeds available. The same shape
// is used whether the shortfall is seen by the availability pass or by the
// debit itself.
func InsufficientStock(productID, name string, available, requested int) *Error {
	return &Error{
		Kind:      KindInsufficientStock,
		ProductID: productID,
		Available: available,
		Requested: requested,
		Message: fmt.Sprintf("insufficient stock for product %s. available: %d, requested: %d",
			name, available, requested),
	}
}

// Conflict reports a request that collides with one already in progress.
func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

// Internal wraps a datastore or unexpected failure.
func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: fmt.Sprintf("%s: %v", op, err), Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}
