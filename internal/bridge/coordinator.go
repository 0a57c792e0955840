package bridge

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/models"
)

// BurnSubmission describes a confirmed source-chain burn: the transaction
// that locked the value and the bridge message the attestation network signs
type BurnSubmission struct {
	TxHash      string
	Message     []byte
	MessageHash string
}

// Burner submits the source-chain side of a transfer. One Burner per
// supported source chain.
type Burner interface {
	Burn(ctx context.Context, amount decimal.Decimal, mintRecipient [32]byte) (*BurnSubmission, error)
}

// Attestor waits for the attestation network to sign a burn message
type Attestor interface {
	WaitForAttestation(ctx context.Context, messageHash string) AttestationResult
}

// Redeemer submits the attested message on the target chain and returns the
// redemption transaction hash
type Redeemer interface {
	Redeem(ctx context.Context, message, attestation []byte) (string, error)
}

// Coordinator drives value transfers from a source chain to the target chain
// through the attested-message protocol. BridgeToTarget returns a pending
// receipt as soon as the burn is submitted; a background monitor advances the
// receipt through in_progress to completed or failed.
type Coordinator struct {
	burners     map[string]Burner // keyed by source chain ID
	attestor    Attestor
	redeemer    Redeemer
	targetChain string
	logger      *zap.Logger

	mu       sync.RWMutex
	receipts map[string]*models.BridgeReceipt
	done     map[string]chan struct{}
}

// NewCoordinator creates a bridge coordinator
func NewCoordinator(
	burners map[string]Burner,
	attestor Attestor,
	redeemer Redeemer,
	targetChain string,
	logger *zap.Logger,
) *Coordinator {
	return &Coordinator{
		burners:     burners,
		attestor:    attestor,
		redeemer:    redeemer,
		targetChain: targetChain,
		logger:      logger,
		receipts:    make(map[string]*models.BridgeReceipt),
		done:        make(map[string]chan struct{}),
	}
}

// BridgeToTarget burns USDC on the source chain and returns a pending
// receipt. The attestation wait and target-chain redemption run in the
// background; progress is observable via GetReceipt or Wait.
func (c *Coordinator) BridgeToTarget(
	ctx context.Context,
	sourceChain string,
	amount decimal.Decimal,
	mintRecipient [32]byte,
) (*models.BridgeReceipt, error) {
	burner, ok := c.burners[sourceChain]
	if !ok {
		return nil, fmt.Errorf("unsupported source chain %s", sourceChain)
	}
	if !amount.IsPositive() {
		return nil, fmt.Errorf("bridge amount must be positive, got %s", amount)
	}

	submission, err := burner.Burn(ctx, amount, mintRecipient)
	if err != nil {
		return nil, fmt.Errorf("failed to submit burn on chain %s: %w", sourceChain, err)
	}

	receipt := &models.BridgeReceipt{
		ID:           uuid.NewString(),
		SourceChain:  sourceChain,
		TargetChain:  c.targetChain,
		SourceTxHash: submission.TxHash,
		Status:       models.BridgeStatusPending,
		Amount:       amount,
		Token:        "USDC",
		Timestamp:    time.Now(),
	}

	doneCh := make(chan struct{})
	c.mu.Lock()
	c.receipts[receipt.ID] = receipt
	c.done[receipt.ID] = doneCh
	c.mu.Unlock()

	c.logger.Info("Bridge transfer submitted",
		zap.String("receipt_id", receipt.ID),
		zap.String("source_chain", sourceChain),
		zap.String("source_tx_hash", submission.TxHash),
		zap.String("amount", amount.String()))

	go c.monitor(receipt.ID, submission, doneCh)

	return receipt.Clone(), nil
}

// monitor owns the receipt after submission. It runs detached from the
// caller's context; the attestor's own deadline is the cancellation ceiling.
func (c *Coordinator) monitor(receiptID string, submission *BurnSubmission, doneCh chan struct{}) {
	defer close(doneCh)

	ctx := context.Background()

	c.update(receiptID, func(r *models.BridgeReceipt) {
		r.Status = models.BridgeStatusInProgress
	})

	result := c.attestor.WaitForAttestation(ctx, submission.MessageHash)

	switch result.Outcome {
	case OutcomeAttested:
		// fall through to redemption below
	case OutcomeTimedOut:
		c.fail(receiptID, result.Err)
		return
	default:
		c.fail(receiptID, result.Err)
		return
	}

	c.update(receiptID, func(r *models.BridgeReceipt) {
		r.Attestation = append([]byte(nil), result.Attestation...)
	})

	targetTxHash, err := c.redeemer.Redeem(ctx, submission.Message, result.Attestation)
	if err != nil {
		c.fail(receiptID, fmt.Errorf("failed to redeem on target chain: %w", err))
		return
	}

	c.update(receiptID, func(r *models.BridgeReceipt) {
		r.Status = models.BridgeStatusCompleted
		r.TargetTxHash = &targetTxHash
	})

	c.logger.Info("Bridge transfer completed",
		zap.String("receipt_id", receiptID),
		zap.String("target_tx_hash", targetTxHash))
}

func (c *Coordinator) update(receiptID string, fn func(*models.BridgeReceipt)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if receipt, ok := c.receipts[receiptID]; ok {
		fn(receipt)
	}
}

func (c *Coordinator) fail(receiptID string, err error) {
	msg := "bridge transfer failed"
	if err != nil {
		msg = err.Error()
	}
	c.update(receiptID, func(r *models.BridgeReceipt) {
		r.Status = models.BridgeStatusFailed
		r.Error = &msg
	})
	c.logger.Error("Bridge transfer failed",
		zap.String("receipt_id", receiptID),
		zap.String("error", msg))
}

// GetReceipt returns a copy of a receipt by ID
func (c *Coordinator) GetReceipt(id string) (*models.BridgeReceipt, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	receipt, ok := c.receipts[id]
	if !ok {
		return nil, false
	}
	return receipt.Clone(), true
}

// Wait blocks until the receipt reaches a terminal status or the context is
// cancelled. This is the orchestrator's join point.
func (c *Coordinator) Wait(ctx context.Context, id string) (*models.BridgeReceipt, error) {
	c.mu.RLock()
	doneCh, ok := c.done[id]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown bridge receipt %s", id)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-doneCh:
	}

	receipt, _ := c.GetReceipt(id)
	return receipt, nil
}
