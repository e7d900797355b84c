package abuse

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/movieboxhq/coinback/internal/logging"
)

// WebhookNotifier delivers abuse entries to a fraud-ops endpoint as
// HMAC-signed JSON POSTs. Delivery is async and best-effort.
type WebhookNotifier struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookNotifier creates a notifier for the given endpoint.
func NewWebhookNotifier(url, secret string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		secret: secret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Notify sends the entry without blocking the caller.
func (n *WebhookNotifier) Notify(ctx context.Context, e *Entry) {
	logger := logging.L(ctx)
	go n.send(logger.With("abuse_id", e.ID), e)
}

func (n *WebhookNotifier) send(logger *slog.Logger, e *Entry) {
	payload, err := json.Marshal(e)
	if err != nil {
		logger.Warn("abuse webhook marshal failed", "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		logger.Warn("abuse webhook request failed", "error", err)
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Coinback-Event", "abuse.recorded")
	req.Header.Set("X-Coinback-Timestamp", fmt.Sprintf("%d", e.CreatedAt.Unix()))
	req.Header.Set("X-Coinback-Signature", n.sign(payload))

	resp, err := n.client.Do(req)
	if err != nil {
		logger.Warn("abuse webhook delivery failed", "error", err)
		return
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		logger.Warn("abuse webhook rejected", "status", resp.StatusCode)
	}
}

func (n *WebhookNotifier) sign(payload []byte) string {
	h := hmac.New(sha256.New, []byte(n.secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
