package events

import (
	"context"
	"log/slog"
	"time"

	"moneytransfer/internal/db"
	"moneytransfer/internal/store"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	DefaultBatchSize   = 10
	DefaultMaxAttempts = 5
	DefaultLease       = 2 * time.Minute
)

type Queue interface {
	ClaimPending(ctx context.Context, tx store.Selecter, limit int, lease time.Duration) ([]store.Event, error)
	MarkDelivered(ctx context.Context, tx store.Execer, id uuid.UUID) error
	MarkRetry(ctx context.Context, tx store.Execer, id uuid.UUID, nextAttempt time.Time, lastErr string) error
	MarkFailed(ctx context.Context, tx store.Execer, id uuid.UUID, lastErr string) error
}

type RelayOptions struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	// Lease must outlast sending a whole batch. An event whose outcome was
	// not recorded before the lease ran out is sent again.
	Lease       time.Duration
	Logger      *slog.Logger
}

// Relay drains the transaction_events outbox to a webhook. Claiming and
// recording outcomes are separate short transactions with the sends in
// between, so several relays can share a table.
type Relay struct {
	txRunner db.TxRunner
	queue    Queue
	sender   Sender
	opts     RelayOptions
	now      func() time.Time
}

func NewRelay(txRunner db.TxRunner, queue Queue, sender Sender, opts RelayOptions) *Relay {
	if opts.Interval <= 0 {
		opts.Interval = 5 * time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Lease <= 0 {
		opts.Lease = DefaultLease
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Relay{txRunner: txRunner, queue: queue, sender: sender, opts: opts, now: time.Now}
}

// Run polls until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) {
	r.opts.Logger.Info("event relay started", "interval", r.opts.Interval)
	ticker := time.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		if _, err := r.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			r.opts.Logger.Error("event relay batch failed", "error", err)
		}
		select {
		case <-ctx.Done():
			r.opts.Logger.Info("event relay stopped")
			return
		case <-ticker.C:
		}
	}
}

// ProcessBatch delivers up to BatchSize due events and returns how many were delivered.
func (r *Relay) ProcessBatch(ctx context.Context) (int, error) {
	var pending []store.Event
	err := r.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		pending, err = r.queue.ClaimPending(ctx, tx, r.opts.BatchSize, r.opts.Lease)
		return err
	})
	if err != nil {
		return 0, err
	}
	delivered := 0
	for _, event := range pending {
		sendErr := r.sender.Send(ctx, event)
		if err := r.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
			return r.record(ctx, tx, event, sendErr)
		}); err != nil {
			return delivered, err
		}
		if sendErr == nil {
			delivered++
		}
	}
	return delivered, nil
}

func (r *Relay) record(ctx context.Context, tx *sqlx.Tx, event store.Event, sendErr error) error {
	log := r.opts.Logger.With("event_id", event.ID, "transaction_id", event.TransactionID)
	switch {
	case sendErr == nil:
		if err := r.queue.MarkDelivered(ctx, tx, event.ID); err != nil {
			return err
		}
		log.Debug("event delivered")
	case event.Attempts+1 >= r.opts.MaxAttempts:
		if err := r.queue.MarkFailed(ctx, tx, event.ID, sendErr.Error()); err != nil {
			return err
		}
		log.Error("event delivery abandoned", "attempts", event.Attempts+1, "error", sendErr)
	default:
		next := r.now().Add(backoff(event.Attempts + 1))
		if err := r.queue.MarkRetry(ctx, tx, event.ID, next, sendErr.Error()); err != nil {
			return err
		}
		log.Warn("event delivery failed, retry scheduled", "attempts", event.Attempts+1, "next_attempt", next, "error", sendErr)
	}
	return nil
}

func backoff(attempts int) time.Duration {
	return time.Duration(attempts*10+10) * time.Second
}
