package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"moneytransfer/internal/config"
	"moneytransfer/internal/db"
	"moneytransfer/internal/middleware"
	"moneytransfer/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner     db.TxRunner
	cfg          config.Config
	users        UserStore
	accounts     AccountStore
	transactions TransactionStore
	admin        AdminStore
	audit        AuditStore
	service      TransactionService
	query        QueryService
	hub          *websocket.Hub
	logger       *slog.Logger
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, accounts AccountStore, transactions TransactionStore, admin AdminStore, audit AuditStore, service TransactionService, query QueryService, hub *websocket.Hub, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		txRunner:     txRunner,
		cfg:          cfg,
		users:        users,
		accounts:     accounts,
		transactions: transactions,
		admin:        admin,
		audit:        audit,
		service:      service,
		query:        query,
		hub:          hub,
		logger:       logger,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   strings.Split(h.cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-Request-ID"},
		ExposedHeaders:   []string{"Idempotent-Replayed"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Post("/users", h.Register)
	router.Post("/login", h.Login)
	router.Post("/token/refresh", h.RefreshToken)
	router.Get("/ws/balances", h.WSBalances)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Get("/users", h.ListUsers)
		r.Get("/users/me", h.Me)
		r.Get("/users/email/{email}", h.GetUserByEmail)
		r.Get("/users/{id}", h.GetUser)
		r.Get("/accounts/me", h.GetAccount)
		r.Get("/accounts/me/self-check", h.SelfCheck)
		r.Get("/transactions", h.ListTransactions)
		r.Post("/transactions", h.CreateTransaction)
	})

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Use(middleware.RequireAdmin(h.admin))
		r.Get("/audit", h.ListAuditLogs)
		r.Get("/reconcile", h.Reconcile)
		r.Get("/transactions", h.AdminListTransactions)
		r.Get("/users", h.AdminListUsers)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
