package events

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"moneytransfer/internal/store"
)

const (
	SignatureHeader = "X-Signature"
	EventTypeHeader = "X-Event-Type"
	EventIDHeader   = "X-Event-ID"
)

type Sender interface {
	Send(ctx context.Context, event store.Event) error
}

// WebhookSender POSTs the raw event payload, signed with HMAC-SHA256 over the body.
type WebhookSender struct {
	url    string
	secret []byte
	client *http.Client
}

func NewWebhookSender(url, secret string, client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookSender{url: url, secret: []byte(secret), client: client}
}

func (s *WebhookSender) Send(ctx context.Context, event store.Event) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(event.Payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "moneytransfer-webhook/1.0")
	req.Header.Set(EventTypeHeader, event.EventType)
	req.Header.Set(EventIDHeader, event.ID.String())
	req.Header.Set(SignatureHeader, Sign(s.secret, event.Payload))

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret, body []byte, signature string) bool {
	return hmac.Equal([]byte(Sign(secret, body)), []byte(signature))
}
