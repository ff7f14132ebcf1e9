package validator

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidEmail           = errors.New("invalid email")
	ErrInvalidPhone           = errors.New("invalid phone number")
	ErrInvalidName            = errors.New("invalid name")
	ErrInvalidPassword        = errors.New("invalid password")
	ErrInvalidIdentifier      = errors.New("invalid receiver identifier")
	ErrInvalidTransactionType = errors.New("invalid transaction type")
	ErrInvalidIdempotencyKey  = errors.New("invalid idempotency key")
)

const (
	MaxTransactionTypeLength = 20
	MaxIdempotencyKeyLength  = 128
	maxNameLength            = 100
)

var (
	emailRegex          = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRegex          = regexp.MustCompile(`^\+?[0-9]{7,15}$`)
	idempotencyKeyRegex = regexp.MustCompile(`^[A-Za-z0-9._:\-]+$`)
)

func ValidateEmail(email string) error {
	if !emailRegex.MatchString(email) {
		return ErrInvalidEmail
	}
	return nil
}

func ValidatePhone(phone string) error {
	if !phoneRegex.MatchString(phone) {
		return ErrInvalidPhone
	}
	return nil
}

func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || utf8.RuneCountInString(trimmed) > maxNameLength {
		return ErrInvalidName
	}
	return nil
}

func ValidatePassword(password string) error {
	if len(password) < 8 {
		return ErrInvalidPassword
	}
	return nil
}

// ValidateIdentifier accepts either a phone number or an email address.
func ValidateIdentifier(identifier string) error {
	if strings.Contains(identifier, "@") {
		if ValidateEmail(identifier) != nil {
			return ErrInvalidIdentifier
		}
		return nil
	}
	if ValidatePhone(identifier) != nil {
		return ErrInvalidIdentifier
	}
	return nil
}

// ValidateTransactionType accepts any label of 1-20 characters that is not blank.
func ValidateTransactionType(value string) error {
	if strings.TrimSpace(value) == "" || utf8.RuneCountInString(value) > MaxTransactionTypeLength {
		return ErrInvalidTransactionType
	}
	return nil
}

func ValidateIdempotencyKey(key string) error {
	if len(key) == 0 || len(key) > MaxIdempotencyKeyLength || !idempotencyKeyRegex.MatchString(key) {
		return ErrInvalidIdempotencyKey
	}
	return nil
}
