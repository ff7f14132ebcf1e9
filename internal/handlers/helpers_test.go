package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"moneytransfer/internal/auth"
	"moneytransfer/internal/config"
	"moneytransfer/internal/models"
	"moneytransfer/internal/services"
	"moneytransfer/internal/store"
	"moneytransfer/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

const testSecret = "secret"

type fakeTxRunner struct {
	withTxFn func(ctx context.Context, fn func(*sqlx.Tx) error) error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.withTxFn != nil {
		return f.withTxFn(ctx, fn)
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn     func(ctx context.Context, tx store.Getter, input store.NewUser) (models.User, error)
	getByEmailFn func(ctx context.Context, email string) (models.User, error)
	getByIDFn    func(ctx context.Context, userID int64) (models.User, error)
	listFn       func(ctx context.Context, limit, offset int) ([]models.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Getter, input store.NewUser) (models.User, error) {
	if s.createFn == nil {
		return models.User{ID: 1, FirstName: input.FirstName, Email: input.Email}, nil
	}
	return s.createFn(ctx, tx, input)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, store.ErrNotFound
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByID(ctx context.Context, userID int64) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{}, store.ErrNotFound
	}
	return s.getByIDFn(ctx, userID)
}

func (s stubUserStore) List(ctx context.Context, limit, offset int) ([]models.User, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubAccountStore struct {
	createFn    func(ctx context.Context, tx store.Getter, userID int64, openingBalance decimal.Decimal) (models.Account, error)
	reconcileFn func(ctx context.Context, userID *int64) ([]models.BalanceCheck, error)
	listFn      func(ctx context.Context, limit, offset int) ([]models.AccountWithOwner, error)
}

func (s stubAccountStore) Create(ctx context.Context, tx store.Getter, userID int64, openingBalance decimal.Decimal) (models.Account, error) {
	if s.createFn == nil {
		return models.Account{UserID: userID, Balance: openingBalance}, nil
	}
	return s.createFn(ctx, tx, userID, openingBalance)
}

func (s stubAccountStore) Reconcile(ctx context.Context, userID *int64) ([]models.BalanceCheck, error) {
	if s.reconcileFn == nil {
		return nil, nil
	}
	return s.reconcileFn(ctx, userID)
}

func (s stubAccountStore) ListWithOwners(ctx context.Context, limit, offset int) ([]models.AccountWithOwner, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubTransactionStore struct {
	listAllFn func(ctx context.Context, limit, offset int) ([]models.Transaction, error)
}

func (s stubTransactionStore) ListAll(ctx context.Context, limit, offset int) ([]models.Transaction, error) {
	if s.listAllFn == nil {
		return nil, nil
	}
	return s.listAllFn(ctx, limit, offset)
}

type stubAdminStore struct {
	isAdminFn   func(ctx context.Context, userID int64) (bool, error)
	bootstrapFn func(ctx context.Context, tx store.Execer, userID int64) (bool, error)
}

func (s stubAdminStore) IsAdmin(ctx context.Context, userID int64) (bool, error) {
	if s.isAdminFn == nil {
		return false, nil
	}
	return s.isAdminFn(ctx, userID)
}

func (s stubAdminStore) BootstrapAdmin(ctx context.Context, tx store.Execer, userID int64) (bool, error) {
	if s.bootstrapFn == nil {
		return false, nil
	}
	return s.bootstrapFn(ctx, tx, userID)
}

type stubAuditStore struct {
	logFn  func(ctx context.Context, tx store.Execer, actorID *int64, action, entityType, entityID, data string) error
	listFn func(ctx context.Context, limit, offset int) ([]models.AuditLog, error)
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID *int64, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]models.AuditLog, error) {
	if s.listFn == nil {
		return nil, nil
	}
	return s.listFn(ctx, limit, offset)
}

type stubService struct {
	transferFn func(ctx context.Context, req services.TransferRequest) (services.TransferResult, error)
}

func (s stubService) Transfer(ctx context.Context, req services.TransferRequest) (services.TransferResult, error) {
	if s.transferFn == nil {
		return services.TransferResult{}, nil
	}
	return s.transferFn(ctx, req)
}

type stubQuery struct {
	accountFn func(ctx context.Context, userID int64) (services.AccountView, error)
	historyFn func(ctx context.Context, userID int64, opts services.HistoryOptions) ([]services.HistoryItem, error)
}

func (s stubQuery) GetAccountView(ctx context.Context, userID int64) (services.AccountView, error) {
	if s.accountFn == nil {
		return services.AccountView{}, nil
	}
	return s.accountFn(ctx, userID)
}

func (s stubQuery) GetTransactionHistory(ctx context.Context, userID int64, opts services.HistoryOptions) ([]services.HistoryItem, error) {
	if s.historyFn == nil {
		return nil, nil
	}
	return s.historyFn(ctx, userID, opts)
}

// testDeps holds every collaborator of a Handler; zero-valued stubs answer
// with harmless defaults.
type testDeps struct {
	txRunner     fakeTxRunner
	users        stubUserStore
	accounts     stubAccountStore
	transactions stubTransactionStore
	admin        stubAdminStore
	audit        stubAuditStore
	service      stubService
	query        stubQuery
}

func newTestHandler(deps testDeps) *Handler {
	cfg := config.Config{
		AppEnv:          "test",
		Port:            "0",
		JWTSecret:       testSecret,
		TokenTTL:        time.Minute,
		RefreshTokenTTL: time.Hour,
		AllowedOrigins:  "*",
		SignupBalance:   decimal.RequireFromString("10000"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(deps.txRunner, cfg, deps.users, deps.accounts, deps.transactions, deps.admin, deps.audit, deps.service, deps.query, websocket.NewHub(logger), logger)
}

// serve sends a request through the full router, authenticated as userID
// when userID is non-zero.
func serve(t *testing.T, handler *Handler, method, target string, body any, userID int64) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		payload, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, target, reader)
	if userID != 0 {
		req.Header.Set("Authorization", "Bearer "+tokenFor(t, userID))
	}
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}

func tokenFor(t *testing.T, userID int64) string {
	t.Helper()
	token, err := auth.GenerateToken(testSecret, userID, time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	return token
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.NewDecoder(rr.Body).Decode(&payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func expectStatus(t *testing.T, rr *httptest.ResponseRecorder, status int) {
	t.Helper()
	if rr.Code != status {
		t.Fatalf("expected %d, got %d: %s", status, rr.Code, rr.Body.String())
	}
}

func serveWithHeader(t *testing.T, handler *Handler, body, header, value string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transactions", bytes.NewBufferString(body))
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, 1))
	req.Header.Set(header, value)
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}
