// Package webhook accepts signed push notifications from page collectors.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Collector event types.
const (
	EventRunCompleted      = "run_completed"
	EventProductRegistered = "product_registered"
)

// errBadPayload marks envelopes whose payload fails validation; the
// handler answers those with 400 instead of 500.
var errBadPayload = errors.New("bad payload")

// VerifySignature validates the X-Pagepulse-Signature-256 header against
// the raw request body.
func VerifySignature(payload []byte, signature string, secret []byte) error {
	if !strings.HasPrefix(signature, "sha256=") {
		return fmt.Errorf("invalid signature format")
	}
	sig, err := hex.DecodeString(signature[7:])
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	expected := mac.Sum(nil)

	if !hmac.Equal(sig, expected) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}

// Envelope is the outer collector message. Payload stays raw until the
// event type picks its shape.
type Envelope struct {
	Event   string          `json:"event"`
	Product string          `json:"product"`
	Payload json.RawMessage `json:"payload"`
}

// ProductRegistration is the payload of a product_registered event.
// DisplayName defaults to Name when omitted.
type ProductRegistration struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
}

// ParseEnvelope decodes and checks the outer webhook message.
func ParseEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("parse envelope: %w", err)
	}
	if env.Event == "" {
		return nil, fmt.Errorf("envelope has no event")
	}
	return &env, nil
}
