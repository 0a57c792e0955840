package bridge

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"storflow/internal/config"
)

// AttestationOutcome is the terminal result of one attestation wait
type AttestationOutcome int

const (
	OutcomeAttested AttestationOutcome = iota
	OutcomeTimedOut
	OutcomeFailed
)

// AttestationResult is the typed outcome of WaitForAttestation
type AttestationResult struct {
	Outcome     AttestationOutcome
	Attestation []byte
	Err         error
}

// AttestationClient polls the attestation network's HTTP API for the signed
// message matching a burn's message hash.
type AttestationClient struct {
	endpoint     string
	pollInterval time.Duration
	timeout      time.Duration
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewAttestationClient creates an attestation client from configuration
func NewAttestationClient(cfg *config.AttestationConfig, logger *zap.Logger) *AttestationClient {
	interval := time.Duration(cfg.PollIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := time.Duration(cfg.TimeoutMinutes) * time.Minute
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}

	return &AttestationClient{
		endpoint:     cfg.Endpoint,
		pollInterval: interval,
		timeout:      timeout,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		logger:       logger,
	}
}

type attestationResponse struct {
	Status      string `json:"status"` // "complete" or "pending_confirmations"
	Attestation string `json:"attestation"`
}

// FetchAttestation performs a single lookup. The bool result reports whether
// the attestation is available yet; unavailability is not an error.
func (c *AttestationClient) FetchAttestation(ctx context.Context, messageHash string) ([]byte, bool, error) {
	url := fmt.Sprintf("%s/v1/attestations/%s", c.endpoint, messageHash)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("failed to query attestation service: %w", err)
	}
	defer resp.Body.Close()

	// The service answers 404 until it has observed the burn
	if resp.StatusCode == http.StatusNotFound {
		return nil, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("attestation service returned status %d: %s", resp.StatusCode, string(body))
	}

	var result attestationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, false, fmt.Errorf("failed to decode attestation response: %w", err)
	}

	if result.Status != "complete" {
		return nil, false, nil
	}

	attestation, err := hex.DecodeString(strings.TrimPrefix(result.Attestation, "0x"))
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode attestation hex: %w", err)
	}

	return attestation, true, nil
}

// WaitForAttestation polls at a fixed interval until the attestation arrives,
// the configured ceiling elapses, or the context is cancelled. Transient
// lookup errors do not abort the wait; the deadline is the only ceiling.
func (c *AttestationClient) WaitForAttestation(ctx context.Context, messageHash string) AttestationResult {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	c.logger.Info("Waiting for attestation",
		zap.String("message_hash", messageHash),
		zap.Duration("poll_interval", c.pollInterval),
		zap.Duration("timeout", c.timeout))

	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return AttestationResult{
					Outcome: OutcomeTimedOut,
					Err:     fmt.Errorf("attestation for %s not received within %s", messageHash, c.timeout),
				}
			}
			return AttestationResult{Outcome: OutcomeFailed, Err: ctx.Err()}
		case <-ticker.C:
			attestation, ready, err := c.FetchAttestation(ctx, messageHash)
			if err != nil {
				c.logger.Warn("Attestation lookup failed, will retry",
					zap.String("message_hash", messageHash),
					zap.Error(err))
				continue
			}
			if !ready {
				continue
			}

			c.logger.Info("Attestation received",
				zap.String("message_hash", messageHash),
				zap.Int("attestation_len", len(attestation)))

			return AttestationResult{Outcome: OutcomeAttested, Attestation: attestation}
		}
	}
}
