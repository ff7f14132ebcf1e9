package services

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"moneytransfer/internal/models"
	"moneytransfer/internal/store"

	"github.com/shopspring/decimal"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

type BalanceReader interface {
	GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error)
}

type HistoryLedger interface {
	ListForUser(ctx context.Context, userID int64, opts store.ListOptions) iter.Seq2[models.Transaction, error]
}

type AccountView struct {
	UserID    int64
	OwnerName string
	Balance   decimal.Decimal
}

type HistoryOptions struct {
	Limit    int
	BeforeID int64
}

type HistoryItem struct {
	ID              int64
	Direction       string
	CounterpartID   int64
	CounterpartName string
	Amount          decimal.Decimal
	Status          models.TransactionStatus
	Type            string
	CreatedAt       time.Time
}

const (
	DirectionSent     = "sent"
	DirectionReceived = "received"
)

// QueryService serves read-only projections. It only ever sees committed
// rows and takes no locks.
type QueryService struct {
	directory Directory
	balances  BalanceReader
	ledger    HistoryLedger
	timeout   time.Duration
}

func NewQueryService(directory Directory, balances BalanceReader, ledger HistoryLedger, timeout time.Duration) *QueryService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &QueryService{directory: directory, balances: balances, ledger: ledger, timeout: timeout}
}

func (s *QueryService) GetAccountView(ctx context.Context, userID int64) (AccountView, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	user, err := s.directory.GetByID(ctx, userID)
	if err != nil {
		return AccountView{}, readError(ErrAccountNotFound, err)
	}
	balance, err := s.balances.GetBalance(ctx, userID)
	if err != nil {
		return AccountView{}, readError(ErrAccountNotFound, err)
	}
	return AccountView{UserID: userID, OwnerName: user.DisplayName(), Balance: balance}, nil
}

// GetTransactionHistory returns the newest terminal transactions first, each
// labelled with the counterpart's display name.
func (s *QueryService) GetTransactionHistory(ctx context.Context, userID int64, opts HistoryOptions) ([]HistoryItem, error) {
	if opts.BeforeID < 0 {
		return nil, ErrInvalidCursor
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	names := map[int64]string{}
	items := make([]HistoryItem, 0, limit)
	for row, err := range s.ledger.ListForUser(ctx, userID, store.ListOptions{
		Ordering: store.NewestFirst,
		AfterID:  opts.BeforeID,
		PageSize: limit,
	}) {
		if err != nil {
			return nil, fmt.Errorf("list transactions: %w", err)
		}
		counterpart := row.Counterpart(userID)
		name, ok := names[counterpart]
		if !ok {
			name, err = s.displayName(ctx, counterpart)
			if err != nil {
				return nil, err
			}
			names[counterpart] = name
		}
		direction := DirectionReceived
		if row.SenderID == userID {
			direction = DirectionSent
		}
		items = append(items, HistoryItem{
			ID:              row.ID,
			Direction:       direction,
			CounterpartID:   counterpart,
			CounterpartName: name,
			Amount:          row.Amount,
			Status:          row.Status,
			Type:            row.TransactionType,
			CreatedAt:       row.CreatedAt,
		})
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

func (s *QueryService) displayName(ctx context.Context, userID int64) (string, error) {
	user, err := s.directory.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "unknown", nil
		}
		return "", fmt.Errorf("resolve counterpart %d: %w", userID, err)
	}
	return user.DisplayName(), nil
}

func readError(notFound *Error, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return wrap(notFound, err)
	}
	return err
}
