package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// BalanceUpdate is pushed to every open connection of the account owner
// after a transfer commits.
type BalanceUpdate struct {
	AccountID     int64  `json:"account_id"`
	Balance       string `json:"balance"`
	TransactionID int64  `json:"transaction_id,omitempty"`
}

type Hub struct {
	mu      sync.RWMutex
	clients map[int64]map[*Client]struct{}
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients: make(map[int64]map[*Client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Register(userID int64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[*Client]struct{})
	}
	h.clients[userID][client] = struct{}{}
}

func (h *Hub) Unregister(userID int64, client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clients[userID] == nil {
		return
	}
	delete(h.clients[userID], client)
	if len(h.clients[userID]) == 0 {
		delete(h.clients, userID)
	}
}

// Connections returns the number of open connections for userID.
func (h *Hub) Connections(userID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID])
}

// BroadcastBalance never blocks: a client whose buffer is full misses the update.
func (h *Hub) BroadcastBalance(userID int64, update BalanceUpdate) {
	payload, err := json.Marshal(update)
	if err != nil {
		h.logger.Error("encode balance update", "user_id", userID, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients[userID] {
		select {
		case client.send <- payload:
		default:
			h.logger.Warn("dropping balance update for slow client", "user_id", userID)
		}
	}
}
