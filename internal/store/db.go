package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("already exists")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidTransition = errors.New("invalid status transition")

	ErrEmailTaken = fmt.Errorf("email %w", ErrDuplicate)
	ErrPhoneTaken = fmt.Errorf("phone number %w", ErrDuplicate)
)

type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type Getter interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
}

type Selecter interface {
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
}

type DB interface {
	Execer
	Getter
	Selecter
}

func notFound(err error, format string, args ...any) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
	}
	return err
}
