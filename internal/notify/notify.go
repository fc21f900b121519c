// Package notify pushes stock change events to an external webhook so POS
// clients can refresh without polling.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Notifier receives stock level changes. Implementations must be safe for
// concurrent use; delivery is best effort and never blocks the sale path.
type Notifier interface {
	StockUpdated(ctx context.Context, productID string, stok int) error
}

// Noop discards every event.
type Noop struct{}

func (Noop) StockUpdated(context.Context, string, int) error { return nil }

// Webhook posts events as JSON to a fixed URL.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type stockEvent struct {
	Event     string `json:"event"`
	ProductID string `json:"product_id"`
	Stok      int    `json:"stok"`
}

func (w *Webhook) StockUpdated(ctx context.Context, productID string, stok int) error {
	body, err := json.Marshal(stockEvent{Event: "stock_updated", ProductID: productID, Stok: stok})
	if err != nil {
		return fmt.Errorf("marshal stock event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build stock event request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post stock event: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("post stock event: status %d", resp.StatusCode)
	}
	return nil
}
