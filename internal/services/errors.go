package services

import "errors"

type ErrorKind string

const (
	KindValidation          ErrorKind = "validation_error"
	KindNotFound            ErrorKind = "not_found"
	KindInsufficientFunds   ErrorKind = "insufficient_funds"
	KindTransactionFailed   ErrorKind = "transaction_failed"
	KindConcurrencyConflict ErrorKind = "concurrency_conflict"
)

// Error is the only error type returned across the engine boundary. Message
// is safe to show to callers; Err keeps the underlying cause for logs.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error with the same kind and message, so wrapped
// copies of a sentinel still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

var (
	ErrInvalidAmount          = &Error{Kind: KindValidation, Message: "amount must be positive with at most two decimal places"}
	ErrSelfTransfer           = &Error{Kind: KindValidation, Message: "cannot transfer to yourself"}
	ErrInvalidIdentifier      = &Error{Kind: KindValidation, Message: "receiver identifier must be a phone number or email"}
	ErrInvalidTransactionType = &Error{Kind: KindValidation, Message: "transaction type must be 1-20 characters"}
	ErrInvalidIdempotencyKey  = &Error{Kind: KindValidation, Message: "idempotency key is malformed"}
	ErrIdempotencyKeyRequired = &Error{Kind: KindValidation, Message: "idempotency key is required"}
	ErrIdempotencyKeyReused   = &Error{Kind: KindValidation, Message: "idempotency key was already used for a different transfer"}
	ErrInvalidCursor          = &Error{Kind: KindValidation, Message: "invalid history cursor"}
	ErrReceiverNotFound       = &Error{Kind: KindNotFound, Message: "receiver not found"}
	ErrAccountNotFound        = &Error{Kind: KindNotFound, Message: "account not found"}
	ErrInsufficientFunds      = &Error{Kind: KindInsufficientFunds, Message: "insufficient funds"}
	ErrTransactionFailed      = &Error{Kind: KindTransactionFailed, Message: "transaction failed, please retry"}
	ErrConcurrencyConflict    = &Error{Kind: KindConcurrencyConflict, Message: "concurrent update conflict"}
)

func wrap(sentinel *Error, cause error) error {
	return &Error{Kind: sentinel.Kind, Message: sentinel.Message, Err: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
