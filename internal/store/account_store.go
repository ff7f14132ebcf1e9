package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"moneytransfer/internal/models"

	"github.com/shopspring/decimal"
)

type AccountStore struct {
	db DB
}

func NewAccountStore(db DB) *AccountStore {
	return &AccountStore{db: db}
}

const accountColumns = `id, user_id, balance, opening_balance, created_at`

func (s *AccountStore) Create(ctx context.Context, tx Getter, userID int64, openingBalance decimal.Decimal) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		INSERT INTO accounts (user_id, balance, opening_balance)
		VALUES ($1, $2, $2)
		RETURNING `+accountColumns, userID, openingBalance)
	return row, err
}

func (s *AccountStore) GetByUser(ctx context.Context, userID int64) (models.Account, error) {
	var row models.Account
	err := s.db.GetContext(ctx, &row, `SELECT `+accountColumns+` FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		return models.Account{}, notFound(err, "account for user %d", userID)
	}
	return row, nil
}

func (s *AccountStore) ListWithOwners(ctx context.Context, limit, offset int) ([]models.AccountWithOwner, error) {
	rows := []models.AccountWithOwner{}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id AS account_id, u.id AS user_id, u.first_name, u.last_name, u.email, u.phone,
		       a.balance, u.created_at
		FROM accounts a
		JOIN users u ON u.id = a.user_id
		ORDER BY a.id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *AccountStore) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := s.db.GetContext(ctx, &balance, `SELECT balance FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		return decimal.Zero, notFound(err, "account for user %d", userID)
	}
	return balance, nil
}

func (s *AccountStore) GetForUpdate(ctx context.Context, tx Getter, accountID int64) (models.Account, error) {
	var row models.Account
	err := tx.GetContext(ctx, &row, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID)
	if err != nil {
		return models.Account{}, notFound(err, "account %d", accountID)
	}
	return row, nil
}

// Adjust adds delta to the balance unless the result would drop below
// minBalance, and returns the new balance.
func (s *AccountStore) Adjust(ctx context.Context, tx Getter, accountID int64, delta, minBalance decimal.Decimal) (decimal.Decimal, error) {
	var balance decimal.Decimal
	err := tx.GetContext(ctx, &balance, `
		UPDATE accounts
		SET balance = balance + $1, updated_at = NOW()
		WHERE id = $2 AND balance + $1 >= $3
		RETURNING balance
	`, delta, accountID, minBalance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, err
	}
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM accounts WHERE id = $1)`, accountID); err != nil {
		return decimal.Zero, err
	}
	if !exists {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, ErrNotFound)
	}
	return decimal.Zero, fmt.Errorf("account %d: %w", accountID, ErrInsufficientFunds)
}

// Reconcile compares each stored balance with the opening balance plus the
// completed transfers in and out. A nil userID checks every account.
func (s *AccountStore) Reconcile(ctx context.Context, userID *int64) ([]models.BalanceCheck, error) {
	var rows []models.BalanceCheck
	err := s.db.SelectContext(ctx, &rows, `
		SELECT a.id AS account_id,
		       a.user_id,
		       a.balance AS stored_balance,
		       a.opening_balance + COALESCE(r.total, 0) - COALESCE(x.total, 0) AS calculated_balance,
		       a.balance - (a.opening_balance + COALESCE(r.total, 0) - COALESCE(x.total, 0)) AS difference
		FROM accounts a
		LEFT JOIN (
			SELECT receiver_id, SUM(amount) AS total
			FROM transactions
			WHERE status = 'completed'
			GROUP BY receiver_id
		) r ON r.receiver_id = a.user_id
		LEFT JOIN (
			SELECT sender_id, SUM(amount) AS total
			FROM transactions
			WHERE status = 'completed'
			GROUP BY sender_id
		) x ON x.sender_id = a.user_id
		WHERE $1::bigint IS NULL OR a.user_id = $1
		ORDER BY a.id
	`, userID)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
