package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/blobstore"
	"storflow/internal/estimator"
	"storflow/internal/models"
	"storflow/internal/proofs"
)

// Storage-network blobs are erasure coded in fixed units; the proof
// registry counts units rather than raw encoded bytes.
const encodedUnitBytes = 64 * 1024

// ==================== DEPENDENCIES ====================

// Estimator produces cost quotes before any chain interaction
type Estimator interface {
	GetCostEstimate(ctx context.Context, params estimator.EstimateParams) (*models.CostEstimate, error)
}

// Bridge moves USDC from a source chain to the target chain. Wait blocks
// until the transfer's monitor reaches a terminal state.
type Bridge interface {
	BridgeToTarget(ctx context.Context, sourceChain string, amount decimal.Decimal, mintRecipient [32]byte) (*models.BridgeReceipt, error)
	Wait(ctx context.Context, id string) (*models.BridgeReceipt, error)
}

// Swapper converts bridged USDC into the two tokens the storage network
// requires
type Swapper interface {
	AutoSwapForTarget(ctx context.Context, bridgedToken string, bridgedAmount, requiredTokenA, requiredTokenB decimal.Decimal) (models.SwapResult, models.SwapResult, error)
}

// Uploader pushes the payload to the storage network publisher
type Uploader interface {
	Upload(ctx context.Context, payload []byte, params blobstore.UploadParams) (*models.StorageReceipt, error)
}

// ProofSubmitter records the storage proof on the origin chain's registry
type ProofSubmitter interface {
	SubmitProof(ctx context.Context, originChain string, proof *models.StorageProof) (*proofs.SubmitResult, error)
}

// ==================== ORCHESTRATOR ====================

// StoreRequest describes one cross-chain storage purchase
type StoreRequest struct {
	SourceChain      string
	Payload          []byte
	RetentionPeriods int
	Deletable        bool
	Budget           *decimal.Decimal // optional ceiling in source-token units
}

// Orchestrator drives storage operations through the
// quoting -> bridging -> swapping -> storing -> completed pipeline.
// Each operation is owned by exactly one goroutine; readers observe
// progress through the store.
type Orchestrator struct {
	estimator     Estimator
	bridge        Bridge
	swapper       Swapper
	uploader      Uploader
	proofs        ProofSubmitter
	store         OperationStore
	mintRecipient [32]byte // operator's target-chain address, bytes32 form
	logger        *zap.Logger
}

// NewOrchestrator wires the pipeline. mintRecipient is where bridged USDC
// lands on the target chain.
func NewOrchestrator(
	est Estimator,
	bridge Bridge,
	swapper Swapper,
	uploader Uploader,
	proofSubmitter ProofSubmitter,
	store OperationStore,
	mintRecipient [32]byte,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		estimator:     est,
		bridge:        bridge,
		swapper:       swapper,
		uploader:      uploader,
		proofs:        proofSubmitter,
		store:         store,
		mintRecipient: mintRecipient,
		logger:        logger.Named("orchestrator"),
	}
}

// StoreFromChain runs the full pipeline synchronously and returns the
// terminal operation record.
func (o *Orchestrator) StoreFromChain(ctx context.Context, req StoreRequest) (*models.StorageOperation, error) {
	op, err := o.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	o.run(ctx, op, req)
	return op.Clone(), nil
}

// StartStore begins the pipeline and returns immediately with the record in
// its quoting state. The pipeline continues on its own goroutine, detached
// from the caller's context.
func (o *Orchestrator) StartStore(ctx context.Context, req StoreRequest) (*models.StorageOperation, error) {
	op, err := o.begin(ctx, req)
	if err != nil {
		return nil, err
	}
	go o.run(context.Background(), op, req)
	return op.Clone(), nil
}

// GetOperation returns a snapshot of one operation
func (o *Orchestrator) GetOperation(ctx context.Context, id string) (*models.StorageOperation, error) {
	return o.store.Get(ctx, id)
}

// GetAllOperations returns snapshots of every known operation, newest first
func (o *Orchestrator) GetAllOperations(ctx context.Context) ([]*models.StorageOperation, error) {
	return o.store.List(ctx)
}

// begin validates the request and persists the initial record
func (o *Orchestrator) begin(ctx context.Context, req StoreRequest) (*models.StorageOperation, error) {
	if len(req.Payload) == 0 {
		return nil, fmt.Errorf("payload must not be empty")
	}
	if req.SourceChain == "" {
		return nil, fmt.Errorf("source chain is required")
	}
	if req.RetentionPeriods <= 0 {
		return nil, fmt.Errorf("retention periods must be positive, got %d", req.RetentionPeriods)
	}

	now := time.Now()
	op := &models.StorageOperation{
		ID:          uuid.NewString(),
		Status:      models.OperationStatusQuoting,
		CurrentStep: "computing cost estimate",
		SourceChain: req.SourceChain,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.store.Put(ctx, op); err != nil {
		return nil, fmt.Errorf("failed to persist operation: %w", err)
	}
	return op, nil
}

// run owns op for the whole pipeline. Nothing else mutates the record; the
// store only ever sees snapshots.
func (o *Orchestrator) run(ctx context.Context, op *models.StorageOperation, req StoreRequest) {
	logger := o.logger.With(zap.String("operation_id", op.ID), zap.String("source_chain", req.SourceChain))

	// Stage 1: quote. A budget violation fails the operation before any
	// funds move.
	estimate, err := o.estimator.GetCostEstimate(ctx, estimator.EstimateParams{
		SourceChain:      req.SourceChain,
		PayloadSizeKB:    payloadSizeKB(req.Payload),
		RetentionPeriods: req.RetentionPeriods,
		Deletable:        req.Deletable,
		Budget:           req.Budget,
	})
	if err != nil {
		o.failOp(op, logger, fmt.Errorf("cost estimation failed: %w", err))
		return
	}
	op.CostEstimate = estimate
	if !estimate.WithinBudget {
		o.failOp(op, logger, fmt.Errorf("budget exceeded: need %s source tokens, budget is %s",
			estimate.TotalSourceTokenNeeded.String(), req.Budget.String()))
		return
	}

	// Stage 2: bridge, then join on the monitor's terminal state
	o.advance(op, models.OperationStatusBridging, "bridging USDC to target chain")
	receipt, err := o.bridge.BridgeToTarget(ctx, req.SourceChain, bridgeAmount(estimate), o.mintRecipient)
	if err != nil {
		o.failOp(op, logger, fmt.Errorf("bridge submission failed: %w", err))
		return
	}
	op.BridgeReceipt = receipt
	o.persist(op)

	final, err := o.bridge.Wait(ctx, receipt.ID)
	if err != nil {
		o.failOp(op, logger, fmt.Errorf("bridge wait failed: %w", err))
		return
	}
	op.BridgeReceipt = final
	if final.Status != models.BridgeStatusCompleted {
		msg := "bridge transfer failed"
		if final.Error != nil {
			msg = *final.Error
		}
		o.failOp(op, logger, fmt.Errorf("%s", msg))
		return
	}
	logger.Info("Bridge transfer completed", zap.String("receipt_id", final.ID))

	// Stage 3: swap bridged USDC into the storage purchase tokens. Both leg
	// results are kept even when one fails; there is no automatic unwind.
	o.advance(op, models.OperationStatusSwapping, "swapping USDC for storage tokens")
	resultA, resultB, err := o.swapper.AutoSwapForTarget(ctx, final.Token, final.Amount,
		estimate.StorageCost.OutputTokenA, estimate.StorageCost.OutputTokenB)
	op.SwapResults = []models.SwapResult{resultA, resultB}
	if err != nil {
		o.failOp(op, logger, fmt.Errorf("swap failed: %w", err))
		return
	}
	o.persist(op)

	// Stage 4: upload
	o.advance(op, models.OperationStatusStoring, "uploading payload to storage network")
	storageReceipt, err := o.uploader.Upload(ctx, req.Payload, blobstore.UploadParams{
		RetentionPeriods: req.RetentionPeriods,
		Deletable:        req.Deletable,
	})
	if err != nil {
		o.failOp(op, logger, fmt.Errorf("upload failed: %w", err))
		return
	}
	op.BlobID = &storageReceipt.BlobID
	op.StorageReceipt = storageReceipt
	o.persist(op)
	logger.Info("Payload stored", zap.String("blob_id", storageReceipt.BlobID))

	// Stage 5: anchor the proof on the origin chain
	op.CurrentStep = "submitting storage proof"
	o.persist(op)
	proof := buildProof(storageReceipt, final)
	if _, err := o.proofs.SubmitProof(ctx, req.SourceChain, proof); err != nil {
		o.failOp(op, logger, fmt.Errorf("proof submission failed: %w", err))
		return
	}
	op.Proof = proof

	o.advance(op, models.OperationStatusCompleted, "completed")
	logger.Info("Storage operation completed", zap.String("blob_id", storageReceipt.BlobID))
}

func (o *Orchestrator) advance(op *models.StorageOperation, next models.OperationStatus, step string) {
	if !op.Status.CanAdvanceTo(next) {
		o.logger.Warn("Illegal status transition skipped",
			zap.String("operation_id", op.ID),
			zap.String("from", string(op.Status)),
			zap.String("to", string(next)))
		return
	}
	op.Status = next
	op.CurrentStep = step
	o.persist(op)
}

func (o *Orchestrator) failOp(op *models.StorageOperation, logger *zap.Logger, err error) {
	msg := err.Error()
	op.Status = models.OperationStatusFailed
	op.Error = &msg
	o.persist(op)
	logger.Warn("Storage operation failed",
		zap.String("step", op.CurrentStep),
		zap.Error(err))
}

func (o *Orchestrator) persist(op *models.StorageOperation) {
	op.UpdatedAt = time.Now()
	if err := o.store.Put(context.Background(), op); err != nil {
		o.logger.Error("Failed to persist operation snapshot",
			zap.String("operation_id", op.ID),
			zap.Error(err))
	}
}

// bridgeAmount is the USDC to move: everything the purchase needs on the
// target side, i.e. the quote total minus the costs paid on the source chain.
func bridgeAmount(estimate *models.CostEstimate) decimal.Decimal {
	return estimate.TotalUSD.
		Sub(estimate.SourceChainGasUSD).
		Sub(estimate.BridgeFeeUSD).
		Round(6)
}

func payloadSizeKB(payload []byte) int64 {
	return (int64(len(payload)) + 1023) / 1024
}

func buildProof(receipt *models.StorageReceipt, bridgeReceipt *models.BridgeReceipt) *models.StorageProof {
	units := (receipt.EncodedSizeBytes + encodedUnitBytes - 1) / encodedUnitBytes
	if units < 1 {
		units = 1
	}
	return &models.StorageProof{
		BlobID:               receipt.BlobID,
		StoredEpoch:          receipt.StartEpoch,
		CertifiedEpoch:       receipt.StartEpoch,
		SizeBytes:            receipt.SizeBytes,
		EncodedUnitCount:     units,
		SourceTxHash:         bridgeReceipt.SourceTxHash,
		AttestationSignature: bridgeReceipt.Attestation,
	}
}
