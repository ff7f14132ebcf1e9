package store

import (
	"context"
	"fmt"
	"iter"

	"moneytransfer/internal/db"
	"moneytransfer/internal/models"

	"github.com/shopspring/decimal"
)

// LedgerStore is the append-only record of transfers. Rows are inserted as
// pending and move exactly once to a terminal status.
type LedgerStore struct {
	db DB
}

type TransactionInput struct {
	SenderID        int64
	ReceiverID      int64
	Amount          decimal.Decimal
	TransactionType string
	IdempotencyKey  *string
}

type Ordering int

const (
	NewestFirst Ordering = iota
	OldestFirst
)

const defaultPageSize = 50

type ListOptions struct {
	Ordering Ordering
	// AfterID is an exclusive keyset cursor in the chosen ordering; zero starts at the edge.
	AfterID  int64
	PageSize int
}

const transactionColumns = `id, sender_id, receiver_id, amount, status, transaction_type, idempotency_key, created_at, completed_at`

func NewLedgerStore(db DB) *LedgerStore {
	return &LedgerStore{db: db}
}

func (s *LedgerStore) Append(ctx context.Context, tx Getter, input TransactionInput) (models.Transaction, error) {
	var row models.Transaction
	err := tx.GetContext(ctx, &row, `
		INSERT INTO transactions (sender_id, receiver_id, amount, status, transaction_type, idempotency_key)
		VALUES ($1, $2, $3, 'pending', $4, $5)
		RETURNING `+transactionColumns,
		input.SenderID, input.ReceiverID, input.Amount, input.TransactionType, input.IdempotencyKey,
	)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return models.Transaction{}, fmt.Errorf("transaction: %w: %w", ErrDuplicate, err)
		}
		return models.Transaction{}, err
	}
	return row, nil
}

func (s *LedgerStore) MarkStatus(ctx context.Context, tx Execer, transactionID int64, status models.TransactionStatus) error {
	if !status.Terminal() {
		return fmt.Errorf("transaction %d to %s: %w", transactionID, status, ErrInvalidTransition)
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $1, completed_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`, status, transactionID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("transaction %d to %s: %w", transactionID, status, ErrInvalidTransition)
	}
	return nil
}

func (s *LedgerStore) Get(ctx context.Context, transactionID int64) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, transactionID)
	if err != nil {
		return models.Transaction{}, notFound(err, "transaction %d", transactionID)
	}
	return row, nil
}

func (s *LedgerStore) FindByIdempotencyKey(ctx context.Context, senderID int64, key string) (models.Transaction, error) {
	var row models.Transaction
	err := s.db.GetContext(ctx, &row, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE sender_id = $1 AND idempotency_key = $2
	`, senderID, key)
	if err != nil {
		return models.Transaction{}, notFound(err, "transaction for key %q", key)
	}
	return row, nil
}

// ListForUser yields the user's terminal transactions one page at a time.
// Every range over the returned sequence starts again from opts.AfterID.
func (s *LedgerStore) ListForUser(ctx context.Context, userID int64, opts ListOptions) iter.Seq2[models.Transaction, error] {
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE (sender_id = $1 OR receiver_id = $1)
		  AND status <> 'pending'
		  AND ($2::bigint = 0 OR id < $2)
		ORDER BY id DESC
		LIMIT $3
	`
	if opts.Ordering == OldestFirst {
		query = `
			SELECT ` + transactionColumns + `
			FROM transactions
			WHERE (sender_id = $1 OR receiver_id = $1)
			  AND status <> 'pending'
			  AND id > $2
			ORDER BY id ASC
			LIMIT $3
		`
	}
	return func(yield func(models.Transaction, error) bool) {
		cursor := opts.AfterID
		for {
			var page []models.Transaction
			if err := s.db.SelectContext(ctx, &page, query, userID, cursor, pageSize); err != nil {
				yield(models.Transaction{}, err)
				return
			}
			for _, row := range page {
				if !yield(row, nil) {
					return
				}
				cursor = row.ID
			}
			if len(page) < pageSize {
				return
			}
		}
	}
}

func (s *LedgerStore) ListAll(ctx context.Context, limit, offset int) ([]models.Transaction, error) {
	var rows []models.Transaction
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		ORDER BY id DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
