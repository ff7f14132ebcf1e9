package services

import (
	"context"
	"fmt"
	"iter"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"moneytransfer/internal/models"
	"moneytransfer/internal/store"
	"moneytransfer/internal/websocket"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// memStore backs every engine dependency with maps. WithTx runs units one at
// a time and restores a snapshot when the unit fails.
type memStore struct {
	txMu sync.Mutex

	mu           sync.Mutex
	users        map[int64]models.User
	accounts     map[int64]models.Account
	transactions []models.Transaction
	audits       []string
	events       []int64
	lockOrder    []int64
	failures     map[string]error
	userLookups  int
}

type memSnapshot struct {
	accounts     map[int64]models.Account
	transactions []models.Transaction
	audits       []string
	events       []int64
}

func newMemStore() *memStore {
	return &memStore{
		users:    map[int64]models.User{},
		accounts: map[int64]models.Account{},
		failures: map[string]error{},
	}
}

// addUser registers a user whose account id is 100 + userID.
func (m *memStore) addUser(id int64, first, phone, balance string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[id] = models.User{
		ID:        id,
		FirstName: first,
		LastName:  "Tester",
		Email:     strings.ToLower(first) + "@example.com",
		Phone:     phone,
	}
	amount := decimal.RequireFromString(balance)
	m.accounts[100+id] = models.Account{ID: 100 + id, UserID: id, Balance: amount, OpeningBalance: amount}
}

func (m *memStore) failOn(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

func (m *memStore) injected(op string) error {
	return m.failures[op]
}

func (m *memStore) balance(userID int64) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accounts[100+userID].Balance
}

func (m *memStore) totalBalance() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, account := range m.accounts {
		total = total.Add(account.Balance)
	}
	return total
}

func (m *memStore) recorded() []models.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.transactions)
}

func (m *memStore) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	snap := memSnapshot{
		accounts:     maps.Clone(m.accounts),
		transactions: slices.Clone(m.transactions),
		audits:       slices.Clone(m.audits),
		events:       slices.Clone(m.events),
	}
	m.lockOrder = nil
	m.mu.Unlock()

	if err := fn(nil); err != nil {
		m.mu.Lock()
		m.accounts = snap.accounts
		m.transactions = snap.transactions
		m.audits = snap.audits
		m.events = snap.events
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memStore) Resolve(_ context.Context, identifier string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("resolve"); err != nil {
		return models.User{}, err
	}
	for _, user := range m.users {
		if user.Phone == identifier || user.Email == strings.ToLower(identifier) {
			return user, nil
		}
	}
	return models.User{}, fmt.Errorf("user %s: %w", identifier, store.ErrNotFound)
}

func (m *memStore) GetByID(_ context.Context, userID int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.userLookups++
	user, ok := m.users[userID]
	if !ok {
		return models.User{}, fmt.Errorf("user %d: %w", userID, store.ErrNotFound)
	}
	return user, nil
}

func (m *memStore) GetByUser(_ context.Context, userID int64) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[100+userID]
	if !ok {
		return models.Account{}, fmt.Errorf("account for user %d: %w", userID, store.ErrNotFound)
	}
	return account, nil
}

func (m *memStore) GetBalance(ctx context.Context, userID int64) (decimal.Decimal, error) {
	account, err := m.GetByUser(ctx, userID)
	return account.Balance, err
}

func (m *memStore) GetForUpdate(_ context.Context, _ store.Getter, accountID int64) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockOrder = append(m.lockOrder, accountID)
	account, ok := m.accounts[accountID]
	if !ok {
		return models.Account{}, fmt.Errorf("account %d: %w", accountID, store.ErrNotFound)
	}
	return account, nil
}

func (m *memStore) Adjust(_ context.Context, _ store.Getter, accountID int64, delta, minBalance decimal.Decimal) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected(fmt.Sprintf("adjust:%d", accountID)); err != nil {
		return decimal.Zero, err
	}
	account, ok := m.accounts[accountID]
	if !ok {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, store.ErrNotFound)
	}
	next := account.Balance.Add(delta)
	if next.LessThan(minBalance) {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, store.ErrInsufficientFunds)
	}
	account.Balance = next
	m.accounts[accountID] = account
	return next, nil
}

func (m *memStore) Append(_ context.Context, _ store.Getter, input store.TransactionInput) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("append"); err != nil {
		return models.Transaction{}, err
	}
	if input.IdempotencyKey != nil {
		for _, row := range m.transactions {
			if row.SenderID == input.SenderID && row.IdempotencyKey != nil && *row.IdempotencyKey == *input.IdempotencyKey {
				return models.Transaction{}, fmt.Errorf("transaction: %w", store.ErrDuplicate)
			}
		}
	}
	row := models.Transaction{
		ID:              int64(len(m.transactions) + 1),
		SenderID:        input.SenderID,
		ReceiverID:      input.ReceiverID,
		Amount:          input.Amount,
		Status:          models.StatusPending,
		TransactionType: input.TransactionType,
		IdempotencyKey:  input.IdempotencyKey,
		CreatedAt:       time.Now(),
	}
	m.transactions = append(m.transactions, row)
	return row, nil
}

func (m *memStore) MarkStatus(_ context.Context, _ store.Execer, transactionID int64, status models.TransactionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("mark"); err != nil {
		return err
	}
	for i, row := range m.transactions {
		if row.ID != transactionID {
			continue
		}
		if row.Status != models.StatusPending || !status.Terminal() {
			return fmt.Errorf("transaction %d: %w", transactionID, store.ErrInvalidTransition)
		}
		now := time.Now()
		m.transactions[i].Status = status
		m.transactions[i].CompletedAt = &now
		return nil
	}
	return fmt.Errorf("transaction %d: %w", transactionID, store.ErrInvalidTransition)
}

func (m *memStore) FindByIdempotencyKey(_ context.Context, senderID int64, key string) (models.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, row := range m.transactions {
		if row.SenderID == senderID && row.IdempotencyKey != nil && *row.IdempotencyKey == key {
			return row, nil
		}
	}
	return models.Transaction{}, fmt.Errorf("key %s: %w", key, store.ErrNotFound)
}

func (m *memStore) ListForUser(_ context.Context, userID int64, opts store.ListOptions) iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		m.mu.Lock()
		var rows []models.Transaction
		for _, row := range m.transactions {
			if row.Status.Terminal() && (row.SenderID == userID || row.ReceiverID == userID) {
				if opts.AfterID == 0 || row.ID < opts.AfterID {
					rows = append(rows, row)
				}
			}
		}
		m.mu.Unlock()
		sort.Slice(rows, func(i, j int) bool { return rows[i].ID > rows[j].ID })
		for _, row := range rows {
			if !yield(row, nil) {
				return
			}
		}
	}
}

func (m *memStore) Log(_ context.Context, _ store.Execer, _ *int64, action, _, entityID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("audit"); err != nil {
		return err
	}
	m.audits = append(m.audits, action+":"+entityID)
	return nil
}

func (m *memStore) Enqueue(_ context.Context, _ store.Execer, transactionID int64, _ string, _ any) (uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.injected("event"); err != nil {
		return uuid.Nil, err
	}
	m.events = append(m.events, transactionID)
	return uuid.New(), nil
}

type recordingHub struct {
	mu      sync.Mutex
	updates map[int64][]websocket.BalanceUpdate
}

func (h *recordingHub) BroadcastBalance(userID int64, update websocket.BalanceUpdate) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.updates == nil {
		h.updates = map[int64][]websocket.BalanceUpdate{}
	}
	h.updates[userID] = append(h.updates[userID], update)
}

func newTestService(m *memStore, hub BalanceHub, opts Options) *TransactionService {
	return NewTransactionService(m, m, m, m, m, m, hub, opts)
}

func transferInput(sender, receiver int64, value string) store.TransactionInput {
	return store.TransactionInput{
		SenderID:        sender,
		ReceiverID:      receiver,
		Amount:          decimal.RequireFromString(value),
		TransactionType: "transfer",
	}
}
