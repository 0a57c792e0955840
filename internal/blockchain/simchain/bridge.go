package simchain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/bridge"
)

// Bridge is a deterministic in-process stand-in for the burn / attest /
// redeem legs of a transfer. Every hash is derived from the inputs, so a
// given sequence of calls always produces the same receipts.
type Bridge struct {
	chainID          string
	attestationDelay time.Duration
	logger           *zap.Logger

	mu    sync.Mutex
	nonce uint64
}

// NewBridge builds a simulated bridge for one source chain. attestationDelay
// controls how long WaitForAttestation blocks before answering.
func NewBridge(chainID string, attestationDelay time.Duration, logger *zap.Logger) *Bridge {
	return &Bridge{
		chainID:          chainID,
		attestationDelay: attestationDelay,
		logger:           logger.Named("simchain.bridge"),
	}
}

// Burn records a simulated burn and returns a submission whose hashes are
// stable functions of the chain, nonce, amount and recipient.
func (b *Bridge) Burn(ctx context.Context, amount decimal.Decimal, mintRecipient [32]byte) (*bridge.BurnSubmission, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	nonce := b.nonce
	b.nonce++
	b.mu.Unlock()

	message := []byte(fmt.Sprintf("burn:%s:%d:%s:%s",
		b.chainID, nonce, amount.String(), hex.EncodeToString(mintRecipient[:])))
	messageHash := digest(message)
	txHash := digest(append([]byte("tx:"), message...))

	b.logger.Info("simulated burn",
		zap.String("chain_id", b.chainID),
		zap.Uint64("nonce", nonce),
		zap.String("amount", amount.String()),
		zap.String("tx_hash", txHash))

	return &bridge.BurnSubmission{
		TxHash:      txHash,
		Message:     message,
		MessageHash: messageHash,
	}, nil
}

// WaitForAttestation sleeps for the configured delay and then signs the
// message hash deterministically. The context deadline still wins, so
// timeout behavior matches the live attestation client.
func (b *Bridge) WaitForAttestation(ctx context.Context, messageHash string) bridge.AttestationResult {
	select {
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return bridge.AttestationResult{
				Outcome: bridge.OutcomeTimedOut,
				Err:     fmt.Errorf("attestation for %s not received within deadline", messageHash),
			}
		}
		return bridge.AttestationResult{Outcome: bridge.OutcomeFailed, Err: ctx.Err()}
	case <-time.After(b.attestationDelay):
	}

	sig := sha256.Sum256([]byte("attestation:" + messageHash))
	return bridge.AttestationResult{
		Outcome:     bridge.OutcomeAttested,
		Attestation: sig[:],
	}
}

// Redeem accepts any message with a non-empty attestation and returns a
// deterministic target-chain transaction hash.
func (b *Bridge) Redeem(ctx context.Context, message, attestation []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(attestation) == 0 {
		return "", fmt.Errorf("empty attestation")
	}

	txHash := digest(append(append([]byte("redeem:"), message...), attestation...))
	b.logger.Info("simulated redemption", zap.String("tx_hash", txHash))
	return txHash, nil
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
