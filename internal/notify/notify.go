// Package notify pushes run summaries to an external receiver, such as
// a chat bridge or a deployment gate. Messages carry the same HMAC
// signature scheme the collector webhook uses, so receivers can share
// verification code.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pagepulse/pagepulse/pkg/run"
)

// Message is the JSON body posted to the receiver.
type Message struct {
	Event    string    `json:"event"`
	Product  string    `json:"product"`
	RunID    string    `json:"run_id"`
	TakenAt  time.Time `json:"taken_at"`
	Score100 int       `json:"score100"`
	Grade    string    `json:"grade"`
	Score5   float64   `json:"score5"`
	Pages    int       `json:"pages"`
}

// Client posts signed run summaries to a single receiver URL.
type Client struct {
	url    string
	secret []byte
	http   *http.Client
}

// NewClient creates a notifier for the given receiver URL. An empty
// secret sends unsigned messages.
func NewClient(url string, secret []byte) *Client {
	return &Client{
		url:    url,
		secret: secret,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

// RunArchived posts a summary of a freshly archived run.
func (c *Client) RunArchived(ctx context.Context, snap *run.Snapshot) error {
	msg := Message{
		Event:    "run_archived",
		Product:  snap.Product,
		RunID:    snap.ID,
		TakenAt:  snap.TakenAt,
		Score100: snap.Score100,
		Grade:    snap.Grade,
		Score5:   snap.Score5,
		Pages:    len(snap.Pages),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if len(c.secret) > 0 {
		req.Header.Set("X-Pagepulse-Signature-256", Sign(body, c.secret))
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("notification receiver returned %d: %s", resp.StatusCode, string(data))
	}
	return nil
}

// Sign computes the signature header value for a payload.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
