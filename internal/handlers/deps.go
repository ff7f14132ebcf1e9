package handlers

import (
	"context"

	"moneytransfer/internal/models"
	"moneytransfer/internal/services"
	"moneytransfer/internal/store"

	"github.com/shopspring/decimal"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Getter, input store.NewUser) (models.User, error)
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, userID int64) (models.User, error)
	List(ctx context.Context, limit, offset int) ([]models.User, error)
}

type AccountStore interface {
	Create(ctx context.Context, tx store.Getter, userID int64, openingBalance decimal.Decimal) (models.Account, error)
	Reconcile(ctx context.Context, userID *int64) ([]models.BalanceCheck, error)
	ListWithOwners(ctx context.Context, limit, offset int) ([]models.AccountWithOwner, error)
}

type TransactionStore interface {
	ListAll(ctx context.Context, limit, offset int) ([]models.Transaction, error)
}

type AdminStore interface {
	IsAdmin(ctx context.Context, userID int64) (bool, error)
	BootstrapAdmin(ctx context.Context, tx store.Execer, userID int64) (bool, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID *int64, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]models.AuditLog, error)
}

type TransactionService interface {
	Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
}

type QueryService interface {
	GetAccountView(ctx context.Context, userID int64) (services.AccountView, error)
	GetTransactionHistory(ctx context.Context, userID int64, opts services.HistoryOptions) ([]services.HistoryItem, error)
}
