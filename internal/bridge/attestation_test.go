package bridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"storflow/internal/config"
)

func newAttestationTestClient(t *testing.T, handler http.HandlerFunc) *AttestationClient {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.AttestationConfig{
		Endpoint:       server.URL,
		PollIntervalMS: 10,
	}
	return NewAttestationClient(cfg, zap.NewNop())
}

func TestFetchAttestationComplete(t *testing.T) {
	client := newAttestationTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/attestations/0xabc" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"complete","attestation":"0xdeadbeef"}`))
	})

	attestation, ready, err := client.FetchAttestation(context.Background(), "0xabc")
	if err != nil {
		t.Fatalf("FetchAttestation failed: %v", err)
	}
	if !ready {
		t.Fatal("expected attestation to be ready")
	}
	if len(attestation) != 4 {
		t.Errorf("expected 4 attestation bytes, got %d", len(attestation))
	}
}

func TestFetchAttestationNotReady(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"not found", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "not found", http.StatusNotFound)
		}},
		{"pending confirmations", func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"status":"pending_confirmations","attestation":""}`))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newAttestationTestClient(t, tt.handler)

			_, ready, err := client.FetchAttestation(context.Background(), "0xabc")
			if err != nil {
				t.Fatalf("FetchAttestation failed: %v", err)
			}
			if ready {
				t.Error("attestation should not be ready")
			}
		})
	}
}

func TestWaitForAttestationEventuallyCompletes(t *testing.T) {
	var calls atomic.Int32
	client := newAttestationTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"status":"complete","attestation":"0x0102"}`))
	})

	result := client.WaitForAttestation(context.Background(), "0xabc")
	if result.Outcome != OutcomeAttested {
		t.Fatalf("expected attested outcome, got %d (%v)", result.Outcome, result.Err)
	}
	if len(result.Attestation) != 2 {
		t.Errorf("expected 2 attestation bytes, got %d", len(result.Attestation))
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 polls, got %d", calls.Load())
	}
}

func TestWaitForAttestationDeadline(t *testing.T) {
	client := newAttestationTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result := client.WaitForAttestation(ctx, "0xabc")
	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("expected timed-out outcome, got %d", result.Outcome)
	}
	if result.Err == nil {
		t.Error("timed-out result should carry an error")
	}
}
