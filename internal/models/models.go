package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "pending"
	StatusCompleted TransactionStatus = "completed"
	StatusFailed    TransactionStatus = "failed"
)

// Terminal reports whether no further status transition is allowed.
func (s TransactionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

type User struct {
	ID           int64     `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

type Account struct {
	ID             int64           `db:"id" json:"id"`
	UserID         int64           `db:"user_id" json:"user_id"`
	Balance        decimal.Decimal `db:"balance" json:"balance"`
	OpeningBalance decimal.Decimal `db:"opening_balance" json:"opening_balance"`
	CreatedAt      time.Time       `db:"created_at" json:"created_at"`
}

type Transaction struct {
	ID              int64             `db:"id" json:"id"`
	SenderID        int64             `db:"sender_id" json:"sender_id"`
	ReceiverID      int64             `db:"receiver_id" json:"receiver_id"`
	Amount          decimal.Decimal   `db:"amount" json:"amount"`
	Status          TransactionStatus `db:"status" json:"status"`
	TransactionType string            `db:"transaction_type" json:"transaction_type"`
	IdempotencyKey  *string           `db:"idempotency_key" json:"idempotency_key,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time        `db:"completed_at" json:"completed_at,omitempty"`
}

// Counterpart returns the other party of the transaction as seen by userID.
func (t Transaction) Counterpart(userID int64) int64 {
	if t.SenderID == userID {
		return t.ReceiverID
	}
	return t.SenderID
}

type AuditLog struct {
	ID          string    `db:"id" json:"id"`
	ActorUserID *int64    `db:"actor_user_id" json:"actor_user_id,omitempty"`
	Action      string    `db:"action" json:"action"`
	EntityType  string    `db:"entity_type" json:"entity_type"`
	EntityID    string    `db:"entity_id" json:"entity_id"`
	Data        string    `db:"data" json:"data"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type BalanceCheck struct {
	AccountID         int64           `db:"account_id" json:"account_id"`
	UserID            int64           `db:"user_id" json:"user_id"`
	StoredBalance     decimal.Decimal `db:"stored_balance" json:"stored_balance"`
	CalculatedBalance decimal.Decimal `db:"calculated_balance" json:"calculated_balance"`
	Difference        decimal.Decimal `db:"difference" json:"difference"`
}

// AccountWithOwner is an account joined with the user holding it.
type AccountWithOwner struct {
	AccountID int64           `db:"account_id" json:"account_id"`
	UserID    int64           `db:"user_id" json:"user_id"`
	FirstName string          `db:"first_name" json:"first_name"`
	LastName  string          `db:"last_name" json:"last_name"`
	Email     string          `db:"email" json:"email"`
	Phone     string          `db:"phone" json:"phone"`
	Balance   decimal.Decimal `db:"balance" json:"balance"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}
