package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"moneytransfer/internal/db"
	"moneytransfer/internal/models"
	"moneytransfer/internal/money"
	"moneytransfer/internal/store"
	"moneytransfer/internal/validator"
	"moneytransfer/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const EventTransactionRecorded = "transaction.recorded"

type Directory interface {
	Resolve(ctx context.Context, identifier string) (models.User, error)
	GetByID(ctx context.Context, userID int64) (models.User, error)
}

type AccountStore interface {
	GetByUser(ctx context.Context, userID int64) (models.Account, error)
	GetForUpdate(ctx context.Context, tx store.Getter, accountID int64) (models.Account, error)
	Adjust(ctx context.Context, tx store.Getter, accountID int64, delta, minBalance decimal.Decimal) (decimal.Decimal, error)
}

type LedgerStore interface {
	Append(ctx context.Context, tx store.Getter, input store.TransactionInput) (models.Transaction, error)
	MarkStatus(ctx context.Context, tx store.Execer, transactionID int64, status models.TransactionStatus) error
	FindByIdempotencyKey(ctx context.Context, senderID int64, key string) (models.Transaction, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID *int64, action, entityType, entityID, data string) error
}

type EventStore interface {
	Enqueue(ctx context.Context, tx store.Execer, transactionID int64, eventType string, payload any) (uuid.UUID, error)
}

type BalanceHub interface {
	BroadcastBalance(userID int64, update websocket.BalanceUpdate)
}

type Options struct {
	// StoreTimeout bounds the commit unit. Zero means 5s.
	StoreTimeout          time.Duration
	RequireIdempotencyKey bool
	Logger                *slog.Logger
}

type TransactionService struct {
	txRunner     db.TxRunner
	directory    Directory
	accountStore AccountStore
	ledgerStore  LedgerStore
	auditStore   AuditStore
	eventStore   EventStore
	hub          BalanceHub
	opts         Options
	logger       *slog.Logger
}

func NewTransactionService(txRunner db.TxRunner, directory Directory, accountStore AccountStore, ledgerStore LedgerStore, auditStore AuditStore, eventStore EventStore, hub BalanceHub, opts Options) *TransactionService {
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TransactionService{
		txRunner:     txRunner,
		directory:    directory,
		accountStore: accountStore,
		ledgerStore:  ledgerStore,
		auditStore:   auditStore,
		eventStore:   eventStore,
		hub:          hub,
		opts:         opts,
		logger:       logger,
	}
}

type TransferRequest struct {
	SenderID           int64
	ReceiverIdentifier string
	Amount             decimal.Decimal
	TransactionType    string
	IdempotencyKey     string
}

type TransferResult struct {
	TransactionID int64
	Status        models.TransactionStatus
	Amount        decimal.Decimal
	SenderBalance decimal.Decimal
	Replayed      bool
}

type transferState string

const (
	stateReceived  transferState = "RECEIVED"
	stateValidated transferState = "VALIDATED"
	stateReserved  transferState = "RESERVED"
	stateCommitted transferState = "COMMITTED"
	stateAborted   transferState = "ABORTED"
	stateRejected  transferState = "REJECTED"
)

type transfer struct {
	log   *slog.Logger
	state transferState
}

func (t *transfer) moveTo(next transferState, args ...any) {
	t.log.Debug("transfer state", append([]any{"from", t.state, "to", next}, args...)...)
	t.state = next
}

// Transfer moves req.Amount from the sender to the resolved receiver. The
// balance changes, the ledger row, the audit row and the outbox event are
// committed together or not at all.
func (s *TransactionService) Transfer(ctx context.Context, req TransferRequest) (TransferResult, error) {
	t := &transfer{log: s.logger.With("sender_id", req.SenderID, "idempotency_key", req.IdempotencyKey), state: stateReceived}

	if err := s.validate(req); err != nil {
		t.moveTo(stateRejected, "reason", err)
		return TransferResult{}, err
	}
	receiver, err := s.directory.Resolve(ctx, req.ReceiverIdentifier)
	if err != nil {
		t.moveTo(stateRejected, "reason", err)
		return TransferResult{}, s.lookupError(t, ErrReceiverNotFound, err)
	}
	if receiver.ID == req.SenderID {
		t.moveTo(stateRejected, "reason", ErrSelfTransfer)
		return TransferResult{}, ErrSelfTransfer
	}
	senderAccount, err := s.accountStore.GetByUser(ctx, req.SenderID)
	if err != nil {
		t.moveTo(stateRejected, "reason", err)
		return TransferResult{}, s.lookupError(t, ErrAccountNotFound, err)
	}
	receiverAccount, err := s.accountStore.GetByUser(ctx, receiver.ID)
	if err != nil {
		t.moveTo(stateRejected, "reason", err)
		return TransferResult{}, s.lookupError(t, ErrAccountNotFound, err)
	}

	if req.IdempotencyKey != "" {
		result, found, err := s.replay(ctx, req, receiver.ID, senderAccount.Balance)
		if err != nil {
			t.moveTo(stateRejected, "reason", err)
			return TransferResult{}, err
		}
		if found {
			t.log.Info("idempotent transfer replayed", "transaction_id", result.TransactionID)
			return result, nil
		}
	}
	t.moveTo(stateValidated, "receiver_id", receiver.ID)

	if senderAccount.Balance.LessThan(req.Amount) {
		t.moveTo(stateRejected, "reason", ErrInsufficientFunds)
		return TransferResult{}, ErrInsufficientFunds
	}
	t.moveTo(stateReserved, "amount", money.Format(req.Amount))

	// The unit outlives the caller: a disconnect after this point must not
	// leave it half applied, so only the store timeout can stop it.
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()

	var recorded models.Transaction
	var senderBalance, receiverBalance decimal.Decimal
	err = s.txRunner.WithTx(commitCtx, func(tx *sqlx.Tx) error {
		locked, _, err := lockTwoAccounts(commitCtx, tx, s.accountStore, senderAccount.ID, receiverAccount.ID)
		if err != nil {
			return err
		}
		if locked.Balance.LessThan(req.Amount) {
			return fmt.Errorf("account %d: %w", locked.ID, store.ErrInsufficientFunds)
		}
		row, err := s.ledgerStore.Append(commitCtx, tx, store.TransactionInput{
			SenderID:        req.SenderID,
			ReceiverID:      receiver.ID,
			Amount:          req.Amount,
			TransactionType: req.TransactionType,
			IdempotencyKey:  keyPtr(req.IdempotencyKey),
		})
		if err != nil {
			return err
		}
		if senderBalance, err = s.accountStore.Adjust(commitCtx, tx, senderAccount.ID, req.Amount.Neg(), decimal.Zero); err != nil {
			return err
		}
		if receiverBalance, err = s.accountStore.Adjust(commitCtx, tx, receiverAccount.ID, req.Amount, decimal.Zero); err != nil {
			return err
		}
		if err := s.ledgerStore.MarkStatus(commitCtx, tx, row.ID, models.StatusCompleted); err != nil {
			return err
		}
		row.Status = models.StatusCompleted

		entityID := strconv.FormatInt(row.ID, 10)
		data, _ := json.Marshal(map[string]string{
			"receiver_id": strconv.FormatInt(receiver.ID, 10),
			"amount":      money.Format(req.Amount),
		})
		if err := s.auditStore.Log(commitCtx, tx, &req.SenderID, "transfer", "transaction", entityID, string(data)); err != nil {
			return err
		}
		if _, err := s.eventStore.Enqueue(commitCtx, tx, row.ID, EventTransactionRecorded, recordedEvent(row)); err != nil {
			return err
		}
		recorded = row
		return nil
	})
	if err != nil {
		if errors.Is(err, store.ErrDuplicate) && req.IdempotencyKey != "" {
			// a concurrent attempt with the same key committed first
			result, found, replayErr := s.replay(ctx, req, receiver.ID, senderAccount.Balance)
			if replayErr == nil && found {
				t.log.Info("idempotent transfer replayed after conflict", "transaction_id", result.TransactionID)
				return result, nil
			}
			if replayErr != nil {
				err = replayErr
			}
		}
		mapped := s.commitError(err)
		t.moveTo(stateAborted, "reason", mapped)
		return TransferResult{}, mapped
	}
	t.moveTo(stateCommitted, "transaction_id", recorded.ID)

	if s.hub != nil {
		s.hub.BroadcastBalance(req.SenderID, websocket.BalanceUpdate{
			AccountID:     senderAccount.ID,
			Balance:       money.Format(senderBalance),
			TransactionID: recorded.ID,
		})
		s.hub.BroadcastBalance(receiver.ID, websocket.BalanceUpdate{
			AccountID:     receiverAccount.ID,
			Balance:       money.Format(receiverBalance),
			TransactionID: recorded.ID,
		})
	}
	return TransferResult{
		TransactionID: recorded.ID,
		Status:        recorded.Status,
		Amount:        recorded.Amount,
		SenderBalance: senderBalance,
	}, nil
}

func (s *TransactionService) validate(req TransferRequest) error {
	if err := money.Validate(req.Amount); err != nil {
		return wrap(ErrInvalidAmount, err)
	}
	if err := validator.ValidateTransactionType(req.TransactionType); err != nil {
		return wrap(ErrInvalidTransactionType, err)
	}
	if err := validator.ValidateIdentifier(req.ReceiverIdentifier); err != nil {
		return wrap(ErrInvalidIdentifier, err)
	}
	if req.IdempotencyKey == "" {
		if s.opts.RequireIdempotencyKey {
			return ErrIdempotencyKeyRequired
		}
		return nil
	}
	if err := validator.ValidateIdempotencyKey(req.IdempotencyKey); err != nil {
		return wrap(ErrInvalidIdempotencyKey, err)
	}
	return nil
}

// replay reports an earlier transfer recorded under the same key. A key
// reused with different parameters is a client error.
func (s *TransactionService) replay(ctx context.Context, req TransferRequest, receiverID int64, senderBalance decimal.Decimal) (TransferResult, bool, error) {
	existing, err := s.ledgerStore.FindByIdempotencyKey(ctx, req.SenderID, req.IdempotencyKey)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return TransferResult{}, false, nil
		}
		s.logger.Error("idempotency lookup failed", "sender_id", req.SenderID, "error", err)
		return TransferResult{}, false, wrap(ErrTransactionFailed, err)
	}
	if existing.ReceiverID != receiverID || !existing.Amount.Equal(req.Amount) || existing.TransactionType != req.TransactionType {
		return TransferResult{}, false, ErrIdempotencyKeyReused
	}
	if current, err := s.accountStore.GetByUser(ctx, req.SenderID); err == nil {
		senderBalance = current.Balance
	}
	return TransferResult{
		TransactionID: existing.ID,
		Status:        existing.Status,
		Amount:        existing.Amount,
		SenderBalance: senderBalance,
		Replayed:      true,
	}, true, nil
}

func (s *TransactionService) lookupError(t *transfer, notFound *Error, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return wrap(notFound, err)
	}
	t.log.Error("transfer lookup failed", "error", err)
	return wrap(ErrTransactionFailed, err)
}

func (s *TransactionService) commitError(err error) error {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		return wrap(ErrInsufficientFunds, err)
	case errors.Is(err, store.ErrNotFound):
		return wrap(ErrAccountNotFound, err)
	case errors.Is(err, db.ErrRetryLimitExceeded):
		s.logger.Error("transfer gave up after repeated conflicts", "error", err)
		return wrap(ErrTransactionFailed, fmt.Errorf("%w: %w", ErrConcurrencyConflict, err))
	}
	var svcErr *Error
	if errors.As(err, &svcErr) {
		return err
	}
	s.logger.Error("transfer commit failed", "error", err)
	return wrap(ErrTransactionFailed, err)
}

// lockTwoAccounts locks both rows in ascending id order regardless of which
// side is the sender.
func lockTwoAccounts(ctx context.Context, tx store.Getter, accountStore AccountStore, firstID, secondID int64) (models.Account, models.Account, error) {
	leftID, rightID := firstID, secondID
	if rightID < leftID {
		leftID, rightID = rightID, leftID
	}
	leftAccount, err := accountStore.GetForUpdate(ctx, tx, leftID)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}
	rightAccount, err := accountStore.GetForUpdate(ctx, tx, rightID)
	if err != nil {
		return models.Account{}, models.Account{}, err
	}
	if firstID == leftID {
		return leftAccount, rightAccount, nil
	}
	return rightAccount, leftAccount, nil
}

func keyPtr(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

type TransactionRecorded struct {
	TransactionID   int64  `json:"transaction_id"`
	SenderID        int64  `json:"sender_id"`
	ReceiverID      int64  `json:"receiver_id"`
	Amount          string `json:"amount"`
	TransactionType string `json:"transaction_type"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

func recordedEvent(row models.Transaction) TransactionRecorded {
	return TransactionRecorded{
		TransactionID:   row.ID,
		SenderID:        row.SenderID,
		ReceiverID:      row.ReceiverID,
		Amount:          money.Format(row.Amount),
		TransactionType: row.TransactionType,
		Status:          string(row.Status),
		CreatedAt:       row.CreatedAt.UTC().Format(time.RFC3339),
	}
}
