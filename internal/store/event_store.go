package store

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

const (
	EventPending   = "pending"
	EventDelivered = "delivered"
	EventFailed    = "failed"
)

// Event is an outbox row written in the same transaction as the transfer it
// describes.
type Event struct {
	ID            uuid.UUID `db:"id"`
	TransactionID int64     `db:"transaction_id"`
	EventType     string    `db:"event_type"`
	Payload       []byte    `db:"payload"`
	Status        string    `db:"status"`
	Attempts      int       `db:"attempts"`
	NextAttemptAt time.Time `db:"next_attempt_at"`
	CreatedAt     time.Time `db:"created_at"`
}

type EventStore struct {
	db DB
}

func NewEventStore(db DB) *EventStore {
	return &EventStore{db: db}
}

func (s *EventStore) Enqueue(ctx context.Context, tx Execer, transactionID int64, eventType string, payload any) (uuid.UUID, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, err
	}
	id := uuid.New()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transaction_events (id, transaction_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
	`, id, transactionID, eventType, body)
	if err != nil {
		return uuid.Nil, err
	}
	return id, nil
}

// ClaimPending leases up to limit due events by pushing next_attempt_at past
// the lease, so no other relay picks them up until the lease expires. Rows
// locked by another relay are skipped.
func (s *EventStore) ClaimPending(ctx context.Context, tx Selecter, limit int, lease time.Duration) ([]Event, error) {
	var rows []Event
	err := tx.SelectContext(ctx, &rows, `
		UPDATE transaction_events
		SET next_attempt_at = NOW() + $2 * INTERVAL '1 millisecond'
		WHERE id IN (
			SELECT id
			FROM transaction_events
			WHERE status = 'pending' AND next_attempt_at <= NOW()
			ORDER BY created_at
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, transaction_id, event_type, payload, status, attempts, next_attempt_at, created_at
	`, limit, lease.Milliseconds())
	if err != nil {
		return nil, err
	}
	slices.SortFunc(rows, func(a, b Event) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return rows, nil
}

func (s *EventStore) MarkDelivered(ctx context.Context, tx Execer, id uuid.UUID) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transaction_events
		SET status = 'delivered', attempts = attempts + 1, delivered_at = NOW(), last_error = NULL
		WHERE id = $1
	`, id)
	return err
}

func (s *EventStore) MarkRetry(ctx context.Context, tx Execer, id uuid.UUID, nextAttempt time.Time, lastErr string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transaction_events
		SET attempts = attempts + 1, next_attempt_at = $2, last_error = $3
		WHERE id = $1
	`, id, nextAttempt, lastErr)
	return err
}

func (s *EventStore) MarkFailed(ctx context.Context, tx Execer, id uuid.UUID, lastErr string) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE transaction_events
		SET status = 'failed', attempts = attempts + 1, last_error = $2
		WHERE id = $1
	`, id, lastErr)
	return err
}
