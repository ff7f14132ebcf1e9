package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"moneytransfer/internal/config"
	"moneytransfer/internal/db"
	"moneytransfer/internal/events"
	"moneytransfer/internal/handlers"
	"moneytransfer/internal/services"
	"moneytransfer/internal/store"
	"moneytransfer/internal/websocket"
)

func main() {
	cfg := config.Load()
	logger := config.NewLogger(cfg)
	slog.SetDefault(logger)

	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	accounts := store.NewAccountStore(database)
	ledger := store.NewLedgerStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	outbox := store.NewEventStore(database)
	txRunner := db.NewTxRunner(database, db.TxOptions{
		MaxAttempts: cfg.TxMaxAttempts,
		LockTimeout: cfg.LockTimeout,
	})
	// transfers lock both account rows before reading them
	transferRunner := db.NewTxRunner(database, db.RowLockTxOptions(cfg.TxMaxAttempts, cfg.LockTimeout))
	hub := websocket.NewHub(logger)
	service := services.NewTransactionService(transferRunner, users, accounts, ledger, audit, outbox, hub, services.Options{
		StoreTimeout:          cfg.StoreTimeout,
		RequireIdempotencyKey: cfg.RequireIdempotencyKey,
		Logger:                logger,
	})
	query := services.NewQueryService(users, accounts, ledger, cfg.StoreTimeout)

	handler := handlers.New(txRunner, cfg, users, accounts, ledger, admin, audit, service, query, hub, logger)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var background sync.WaitGroup
	if cfg.WebhookURL != "" {
		sender := events.NewWebhookSender(cfg.WebhookURL, cfg.WebhookSecret, &http.Client{Timeout: 10 * time.Second})
		relay := events.NewRelay(txRunner, outbox, sender, events.RelayOptions{
			Interval: cfg.RelayInterval,
			Logger:   logger.With("component", "event_relay"),
		})
		background.Add(1)
		go func() {
			defer background.Done()
			relay.Run(ctx)
		}()
	} else {
		logger.Info("WEBHOOK_URL not set, transaction events stay in the outbox")
	}

	go func() {
		logger.Info("money transfer API listening", "addr", server.Addr, "env", cfg.AppEnv)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	background.Wait()
}
