package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/pagepulse/pagepulse/internal/archive"
	"github.com/pagepulse/pagepulse/pkg/run"
)

func computeHMAC(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	secret := []byte("webhook-secret-123")
	payload := []byte(`{"event":"run_completed"}`)

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    []byte
		wantErr   bool
	}{
		{
			name:      "valid signature",
			payload:   payload,
			signature: computeHMAC(payload, secret),
			secret:    secret,
			wantErr:   false,
		},
		{
			name:      "wrong secret",
			payload:   payload,
			signature: computeHMAC(payload, []byte("wrong-secret")),
			secret:    secret,
			wantErr:   true,
		},
		{
			name:      "tampered payload",
			payload:   []byte(`{"event":"product_registered"}`),
			signature: computeHMAC(payload, secret),
			secret:    secret,
			wantErr:   true,
		},
		{
			name:      "missing sha256= prefix",
			payload:   payload,
			signature: "not-a-valid-sig",
			secret:    secret,
			wantErr:   true,
		},
		{
			name:      "invalid hex after prefix",
			payload:   payload,
			signature: "sha256=zzzz",
			secret:    secret,
			wantErr:   true,
		},
		{
			name:      "empty signature",
			payload:   payload,
			signature: "",
			secret:    secret,
			wantErr:   true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := VerifySignature(tc.payload, tc.signature, tc.secret)
			if tc.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParseEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr bool
		want    string // expected event
	}{
		{
			name:    "run completed",
			payload: `{"event":"run_completed","product":"web-shop","payload":{"id":"run-1"}}`,
			want:    EventRunCompleted,
		},
		{
			name:    "product registered",
			payload: `{"event":"product_registered","payload":{"name":"blog"}}`,
			want:    EventProductRegistered,
		},
		{
			name:    "missing event",
			payload: `{"product":"web-shop"}`,
			wantErr: true,
		},
		{
			name:    "invalid json",
			payload: `{invalid`,
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			env, err := ParseEnvelope([]byte(tc.payload))
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseEnvelope: %v", err)
			}
			if env.Event != tc.want {
				t.Errorf("event = %q, want %q", env.Event, tc.want)
			}
		})
	}
}

// fakeArchiver records archived runs and validates like the real service.
type fakeArchiver struct {
	stored []*run.Snapshot
}

func (f *fakeArchiver) StoreRun(_ context.Context, snap *run.Snapshot) (*archive.RunRow, error) {
	if err := run.Validate(snap); err != nil {
		return nil, err
	}
	f.stored = append(f.stored, snap)
	return &archive.RunRow{ID: snap.ID, Score: snap.Score100, Grade: snap.Grade}, nil
}

type fakeRegistrar struct {
	names    []string
	displays []string
}

func (f *fakeRegistrar) EnsureProduct(_ context.Context, name, displayName string) (*archive.Product, error) {
	f.names = append(f.names, name)
	f.displays = append(f.displays, displayName)
	return &archive.Product{ID: "prod-1", Name: name, DisplayName: displayName}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedRequest(t *testing.T, secret []byte, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest("POST", "/webhook/collector", bytes.NewReader(body))
	req.Header.Set("X-Pagepulse-Signature-256", computeHMAC(body, secret))
	return req
}

func validSnapshot(id string) *run.Snapshot {
	return &run.Snapshot{
		FormatVersion: run.FormatVersion,
		ID:            id,
		Product:       "Web Shop",
		TakenAt:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		Score100:      82,
		Grade:         "B",
		Score5:        4.1,
	}
}

func TestHandlerRunCompleted(t *testing.T) {
	secret := []byte("s3cret")
	archiver := &fakeArchiver{}
	h := NewHandler(secret, archiver, &fakeRegistrar{}, testLogger())

	snapJSON, err := json.Marshal(validSnapshot("run-1"))
	if err != nil {
		t.Fatal(err)
	}
	body, err := json.Marshal(Envelope{Event: EventRunCompleted, Product: "Web Shop", Payload: snapJSON})
	if err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, secret, body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "accepted") {
		t.Errorf("body = %q, want accepted", rec.Body.String())
	}
	if len(archiver.stored) != 1 || archiver.stored[0].ID != "run-1" {
		t.Errorf("archived runs = %+v, want run-1", archiver.stored)
	}
}

func TestHandlerRunCompletedFillsProduct(t *testing.T) {
	secret := []byte("s3cret")
	archiver := &fakeArchiver{}
	h := NewHandler(secret, archiver, &fakeRegistrar{}, testLogger())

	snap := validSnapshot("run-2")
	snap.Product = ""
	snapJSON, _ := json.Marshal(snap)
	body, _ := json.Marshal(Envelope{Event: EventRunCompleted, Product: "Blog", Payload: snapJSON})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, signedRequest(t, secret, body))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
	}
	if len(archiver.stored) != 1 || archiver.stored[0].Product != "Blog" {
		t.Errorf("product = %+v, want Blog from envelope", archiver.stored)
	}
}

func TestHandlerRejects(t *testing.T) {
	secret := []byte("s3cret")

	badSnap := validSnapshot("run-bad")
	badSnap.FormatVersion = 99
	badSnapJSON, _ := json.Marshal(badSnap)
	badRunBody, _ := json.Marshal(Envelope{Event: EventRunCompleted, Payload: badSnapJSON})

	unknownBody, _ := json.Marshal(Envelope{Event: "page_exploded", Payload: []byte(`{}`)})

	tests := []struct {
		name       string
		method     string
		body       []byte
		sign       bool
		wantStatus int
	}{
		{name: "get not allowed", method: "GET", body: nil, sign: true, wantStatus: http.StatusMethodNotAllowed},
		{name: "unsigned request", method: "POST", body: []byte(`{"event":"run_completed"}`), sign: false, wantStatus: http.StatusUnauthorized},
		{name: "invalid envelope", method: "POST", body: []byte(`{invalid`), sign: true, wantStatus: http.StatusBadRequest},
		{name: "invalid snapshot", method: "POST", body: badRunBody, sign: true, wantStatus: http.StatusBadRequest},
		{name: "unsupported event", method: "POST", body: unknownBody, sign: true, wantStatus: http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := NewHandler(secret, &fakeArchiver{}, &fakeRegistrar{}, testLogger())

			req := httptest.NewRequest(tc.method, "/webhook/collector", bytes.NewReader(tc.body))
			if tc.sign {
				req.Header.Set("X-Pagepulse-Signature-256", computeHMAC(tc.body, secret))
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d; body %s", rec.Code, tc.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestHandlerProductRegistered(t *testing.T) {
	secret := []byte("s3cret")

	tests := []struct {
		name        string
		payload     string
		product     string
		wantName    string
		wantDisplay string
	}{
		{
			name:        "full registration",
			payload:     `{"name":"Web Shop","display_name":"The Web Shop"}`,
			wantName:    "web-shop",
			wantDisplay: "The Web Shop",
		},
		{
			name:        "display defaults to name",
			payload:     `{"name":"blog"}`,
			wantName:    "blog",
			wantDisplay: "blog",
		},
		{
			name:        "falls back to envelope product",
			payload:     `{}`,
			product:     "Docs Portal",
			wantName:    "docs-portal",
			wantDisplay: "Docs Portal",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			registrar := &fakeRegistrar{}
			h := NewHandler(secret, &fakeArchiver{}, registrar, testLogger())

			body, err := json.Marshal(Envelope{
				Event:   EventProductRegistered,
				Product: tc.product,
				Payload: []byte(tc.payload),
			})
			if err != nil {
				t.Fatal(err)
			}

			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, signedRequest(t, secret, body))

			if rec.Code != http.StatusAccepted {
				t.Fatalf("status = %d, want 202; body %s", rec.Code, rec.Body.String())
			}
			if len(registrar.names) != 1 || registrar.names[0] != tc.wantName {
				t.Errorf("registered names = %v, want [%s]", registrar.names, tc.wantName)
			}
			if registrar.displays[0] != tc.wantDisplay {
				t.Errorf("display = %q, want %q", registrar.displays[0], tc.wantDisplay)
			}
		})
	}
}
