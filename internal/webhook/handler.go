package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/pagepulse/pagepulse/internal/archive"
	"github.com/pagepulse/pagepulse/pkg/run"
)

// RunArchiver archives completed runs pushed by collectors.
type RunArchiver interface {
	StoreRun(ctx context.Context, snap *run.Snapshot) (*archive.RunRow, error)
}

// ProductRegistrar registers products ahead of their first run.
type ProductRegistrar interface {
	EnsureProduct(ctx context.Context, name, displayName string) (*archive.Product, error)
}

// Handler processes incoming collector webhook events.
type Handler struct {
	secret   []byte
	runs     RunArchiver
	products ProductRegistrar
	logger   *slog.Logger
}

// NewHandler creates a new webhook Handler.
func NewHandler(secret []byte, runs RunArchiver, products ProductRegistrar, logger *slog.Logger) *Handler {
	return &Handler{
		secret:   secret,
		runs:     runs,
		products: products,
		logger:   logger,
	}
}

// ServeHTTP handles incoming webhook requests.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, 10<<20)) // 10 MB limit
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	signature := r.Header.Get("X-Pagepulse-Signature-256")
	if err := VerifySignature(body, signature, h.secret); err != nil {
		h.logger.Warn("webhook signature verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	env, err := ParseEnvelope(body)
	if err != nil {
		h.logger.Warn("webhook envelope rejected", "error", err)
		http.Error(w, "invalid envelope", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	switch env.Event {
	case EventRunCompleted:
		err = h.handleRunCompleted(ctx, env)
	case EventProductRegistered:
		err = h.handleProductRegistered(ctx, env)
	default:
		http.Error(w, "unsupported event: "+env.Event, http.StatusBadRequest)
		return
	}

	if err != nil {
		var integrity *run.IntegrityError
		if errors.Is(err, errBadPayload) || errors.As(err, &integrity) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.logger.Error("webhook event failed", "event", env.Event, "product", env.Product, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "accepted"})
}

func (h *Handler) handleRunCompleted(ctx context.Context, env *Envelope) error {
	var snap run.Snapshot
	if err := json.Unmarshal(env.Payload, &snap); err != nil {
		return fmt.Errorf("%w: run_completed payload is not a run snapshot: %v", errBadPayload, err)
	}
	if snap.Product == "" {
		snap.Product = env.Product
	}

	row, err := h.runs.StoreRun(ctx, &snap)
	if err != nil {
		return fmt.Errorf("archive run %s: %w", snap.ID, err)
	}

	h.logger.Info("run archived via webhook",
		"run_id", row.ID,
		"product", snap.Product,
		"score100", row.Score,
		"grade", row.Grade,
	)
	return nil
}

func (h *Handler) handleProductRegistered(ctx context.Context, env *Envelope) error {
	var reg ProductRegistration
	if err := json.Unmarshal(env.Payload, &reg); err != nil {
		return fmt.Errorf("%w: parse registration: %v", errBadPayload, err)
	}
	if reg.Name == "" {
		reg.Name = env.Product
	}
	if reg.Name == "" {
		return fmt.Errorf("%w: registration names no product", errBadPayload)
	}
	if reg.DisplayName == "" {
		reg.DisplayName = reg.Name
	}

	p, err := h.products.EnsureProduct(ctx, run.Slug(reg.Name), reg.DisplayName)
	if err != nil {
		return fmt.Errorf("register product %s: %w", reg.Name, err)
	}

	h.logger.Info("product registered via webhook", "product", p.Name, "display_name", p.DisplayName)
	return nil
}
