package simchain

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"storflow/internal/blobstore"
	"storflow/internal/models"
	"storflow/internal/proofs"
)

const encodingExpansionFactor = 5

// Storage simulates the storage network publisher. Blob ids are content
// digests, so re-uploading the same payload reports already-certified.
type Storage struct {
	maxPayloadBytes int64
	currentEpoch    uint64
	logger          *zap.Logger

	mu    sync.Mutex
	blobs map[string]uint64 // blob id -> end epoch
}

// NewStorage builds a simulated publisher with the given payload limit
func NewStorage(maxPayloadBytes int64, currentEpoch uint64, logger *zap.Logger) *Storage {
	return &Storage{
		maxPayloadBytes: maxPayloadBytes,
		currentEpoch:    currentEpoch,
		logger:          logger.Named("simchain.storage"),
		blobs:           make(map[string]uint64),
	}
}

// Upload validates the payload the same way the live publisher client does
// and returns a deterministic receipt.
func (s *Storage) Upload(ctx context.Context, payload []byte, params blobstore.UploadParams) (*models.StorageReceipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, fmt.Errorf("payload must not be empty")
	}
	if int64(len(payload)) > s.maxPayloadBytes {
		return nil, fmt.Errorf("payload too large: %d bytes exceeds limit of %d", len(payload), s.maxPayloadBytes)
	}
	if params.RetentionPeriods <= 0 {
		return nil, fmt.Errorf("retention periods must be positive")
	}

	blobID := digest(payload)
	endEpoch := s.currentEpoch + uint64(params.RetentionPeriods)

	s.mu.Lock()
	priorEnd, exists := s.blobs[blobID]
	if !exists || endEpoch > priorEnd {
		s.blobs[blobID] = endEpoch
	}
	s.mu.Unlock()

	if exists {
		s.logger.Info("blob already certified", zap.String("blob_id", blobID))
		return &models.StorageReceipt{
			BlobID:           blobID,
			EndEpoch:         priorEnd,
			SizeBytes:        int64(len(payload)),
			AlreadyCertified: true,
		}, nil
	}

	s.logger.Info("simulated upload",
		zap.String("blob_id", blobID),
		zap.Int("size_bytes", len(payload)),
		zap.Uint64("end_epoch", endEpoch))

	return &models.StorageReceipt{
		BlobID:           blobID,
		StartEpoch:       s.currentEpoch,
		EndEpoch:         endEpoch,
		SizeBytes:        int64(len(payload)),
		EncodedSizeBytes: int64(len(payload)) * encodingExpansionFactor,
		Deletable:        params.Deletable,
	}, nil
}

// Registry simulates the origin-chain proof registry contract
type Registry struct {
	logger *zap.Logger

	mu       sync.Mutex
	verified map[string]bool
}

// NewRegistry builds an empty simulated proof registry
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		logger:   logger.Named("simchain.registry"),
		verified: make(map[string]bool),
	}
}

// SubmitProof records the proof and marks its id verified
func (r *Registry) SubmitProof(ctx context.Context, originChain string, proof *models.StorageProof) (*proofs.SubmitResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if proof.BlobID == "" {
		return nil, fmt.Errorf("proof is missing a blob id")
	}

	proofID := proofs.ProofID(proof).Hex()
	txHash := digest([]byte("proof:" + originChain + ":" + proofID))

	r.mu.Lock()
	r.verified[proofID] = true
	r.mu.Unlock()

	r.logger.Info("simulated proof submission",
		zap.String("origin_chain", originChain),
		zap.String("proof_id", proofID),
		zap.String("tx_hash", txHash))

	return &proofs.SubmitResult{TxHash: txHash, ProofID: proofID}, nil
}

// VerifyProof reports whether a proof id has been submitted
func (r *Registry) VerifyProof(ctx context.Context, originChain string, proofID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.verified[proofID], nil
}
