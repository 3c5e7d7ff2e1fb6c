package services

import (
	"errors"
	"fmt"

	"github.com/chainshopapp/chainshop/internal/escrow"
)

// ErrorKind classifies service failures for the HTTP boundary. The
// translation to a status code happens exactly once, in the handlers.
type ErrorKind int

const (
	// KindValidation covers malformed or missing fields and references to
	// entities that do not exist.
	KindValidation ErrorKind = iota + 1
	// KindConflict covers operations rejected by the current order or
	// contract state (payment pending, already paid, bad transition).
	KindConflict
	// KindUnauthorized covers every authentication and role failure. The
	// client-facing message is deliberately uniform.
	KindUnauthorized
	// KindChainUnavailable covers RPC transport failures and timeouts.
	KindChainUnavailable
	// KindTransactionFailed covers mined-but-reverted escrow transactions.
	KindTransactionFailed
)

// Error carries a client-facing message with legacy-compatible wording
// next to the wrapped cause.
type Error struct {
	Kind    ErrorKind
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

// ErrUnauthorized is the single authorization failure. Missing token,
// expired token and wrong role all map here so callers cannot distinguish
// them.
var ErrUnauthorized = &Error{Kind: KindUnauthorized, Message: "Missing Authorization Header"}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func conflictError(message string) *Error {
	return &Error{Kind: KindConflict, Message: message}
}

// chainError maps escrow failures onto the service taxonomy.
func chainError(err error) *Error {
	if errors.Is(err, escrow.ErrTransactionFailed) {
		return &Error{Kind: KindTransactionFailed, Message: "Transaction failed.", Err: err}
	}
	return &Error{Kind: KindChainUnavailable, Message: "Blockchain unavailable.", Err: err}
}

// AsError extracts a service error from an error chain.
func AsError(err error) (*Error, bool) {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr, true
	}
	return nil, false
}
