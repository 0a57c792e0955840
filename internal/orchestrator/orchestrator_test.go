package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/blobstore"
	"storflow/internal/estimator"
	"storflow/internal/models"
	"storflow/internal/proofs"
)

// ==================== STUBS ====================

type stubEstimator struct {
	estimate *models.CostEstimate
	err      error
}

func (s *stubEstimator) GetCostEstimate(ctx context.Context, params estimator.EstimateParams) (*models.CostEstimate, error) {
	if s.err != nil {
		return nil, s.err
	}
	est := *s.estimate
	est.BudgetCeiling = params.Budget
	return &est, nil
}

type stubBridge struct {
	mu        sync.Mutex
	calls     int
	finalErr  *string // non-nil makes the transfer fail with this message
	submitErr error
}

func (s *stubBridge) BridgeToTarget(ctx context.Context, sourceChain string, amount decimal.Decimal, mintRecipient [32]byte) (*models.BridgeReceipt, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &models.BridgeReceipt{
		ID:           "bridge-1",
		SourceChain:  sourceChain,
		TargetChain:  "stash",
		SourceTxHash: "0xburn",
		Status:       models.BridgeStatusPending,
		Amount:       amount,
		Token:        "USDC",
		Timestamp:    time.Now(),
	}, nil
}

func (s *stubBridge) Wait(ctx context.Context, id string) (*models.BridgeReceipt, error) {
	receipt := &models.BridgeReceipt{
		ID:           id,
		SourceChain:  "8453",
		TargetChain:  "stash",
		SourceTxHash: "0xburn",
		Status:       models.BridgeStatusCompleted,
		Amount:       decimal.NewFromInt(30),
		Token:        "USDC",
		Attestation:  []byte{0xaa},
	}
	target := "stashtx"
	receipt.TargetTxHash = &target
	if s.finalErr != nil {
		receipt.Status = models.BridgeStatusFailed
		receipt.TargetTxHash = nil
		receipt.Error = s.finalErr
	}
	return receipt, nil
}

func (s *stubBridge) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubSwapper struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (s *stubSwapper) AutoSwapForTarget(ctx context.Context, bridgedToken string, bridgedAmount, requiredTokenA, requiredTokenB decimal.Decimal) (models.SwapResult, models.SwapResult, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	a := models.SwapResult{Success: true, InputToken: bridgedToken, OutputToken: "STOR", OutputAmount: requiredTokenA}
	b := models.SwapResult{Success: true, InputToken: bridgedToken, OutputToken: "STASH", OutputAmount: requiredTokenB}
	if s.err != nil {
		msg := s.err.Error()
		b.Success = false
		b.Error = &msg
		return a, b, s.err
	}
	return a, b, nil
}

func (s *stubSwapper) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type stubUploader struct {
	err error
}

func (s *stubUploader) Upload(ctx context.Context, payload []byte, params blobstore.UploadParams) (*models.StorageReceipt, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &models.StorageReceipt{
		BlobID:           "blob-abc",
		StartEpoch:       100,
		EndEpoch:         100 + uint64(params.RetentionPeriods),
		SizeBytes:        int64(len(payload)),
		EncodedSizeBytes: int64(len(payload)) * 5,
		Deletable:        params.Deletable,
	}, nil
}

type stubProofs struct {
	err  error
	last *models.StorageProof
}

func (s *stubProofs) SubmitProof(ctx context.Context, originChain string, proof *models.StorageProof) (*proofs.SubmitResult, error) {
	s.last = proof
	if s.err != nil {
		return nil, s.err
	}
	return &proofs.SubmitResult{TxHash: "0xproof", ProofID: "0xid"}, nil
}

// recordingStore wraps a MemoryStore and captures every status written
type recordingStore struct {
	*MemoryStore
	mu       sync.Mutex
	statuses []models.OperationStatus
}

func (s *recordingStore) Put(ctx context.Context, op *models.StorageOperation) error {
	s.mu.Lock()
	s.statuses = append(s.statuses, op.Status)
	s.mu.Unlock()
	return s.MemoryStore.Put(ctx, op)
}

func testEstimate() *models.CostEstimate {
	return &models.CostEstimate{
		StorageCost: models.StorageCost{
			OutputTokenA: decimal.NewFromInt(20),
			OutputTokenB: decimal.NewFromInt(40),
		},
		BridgeFeeUSD:           decimal.RequireFromString("0.03"),
		SourceChainGasUSD:      decimal.RequireFromString("0.15"),
		TargetChainGasUSD:      decimal.RequireFromString("0.01"),
		TotalSourceTokenNeeded: decimal.RequireFromString("0.02"),
		TotalUSD:               decimal.RequireFromString("30.19"),
		WithinBudget:           true,
	}
}

func newTestOrchestrator(est Estimator, bridge *stubBridge, swapper *stubSwapper, uploader *stubUploader, proofSubmitter *stubProofs, store OperationStore) *Orchestrator {
	return NewOrchestrator(est, bridge, swapper, uploader, proofSubmitter, store, [32]byte{1}, zap.NewNop())
}

// ==================== TESTS ====================

func TestStoreFromChainCompletes(t *testing.T) {
	bridge := &stubBridge{}
	swapper := &stubSwapper{}
	proofSubmitter := &stubProofs{}
	store := &recordingStore{MemoryStore: NewMemoryStore()}
	o := newTestOrchestrator(&stubEstimator{estimate: testEstimate()}, bridge, swapper, &stubUploader{}, proofSubmitter, store)

	op, err := o.StoreFromChain(context.Background(), StoreRequest{
		SourceChain:      "8453",
		Payload:          []byte("payload bytes"),
		RetentionPeriods: 5,
	})
	if err != nil {
		t.Fatalf("StoreFromChain() error = %v", err)
	}

	if op.Status != models.OperationStatusCompleted {
		t.Fatalf("status = %s, want completed (error: %v)", op.Status, op.Error)
	}
	if op.CostEstimate == nil {
		t.Error("expected cost estimate on the record")
	}
	if op.BridgeReceipt == nil || op.BridgeReceipt.Status != models.BridgeStatusCompleted {
		t.Error("expected a completed bridge receipt")
	}
	if len(op.SwapResults) != 2 {
		t.Fatalf("swap results = %d, want 2", len(op.SwapResults))
	}
	if op.BlobID == nil || *op.BlobID != "blob-abc" {
		t.Error("expected blob id on the record")
	}
	if op.Proof == nil {
		t.Fatal("expected a proof on the record")
	}
	if op.Proof.SourceTxHash != "0xburn" {
		t.Errorf("proof source tx = %s, want 0xburn", op.Proof.SourceTxHash)
	}
	if proofSubmitter.last == nil || proofSubmitter.last.BlobID != "blob-abc" {
		t.Error("proof submitter should receive the upload's blob id")
	}

	// statuses written to the store only ever move forward
	rank := map[models.OperationStatus]int{
		models.OperationStatusQuoting:   0,
		models.OperationStatusBridging:  1,
		models.OperationStatusSwapping:  2,
		models.OperationStatusStoring:   3,
		models.OperationStatusCompleted: 4,
	}
	prev := -1
	for _, st := range store.statuses {
		r, ok := rank[st]
		if !ok {
			t.Fatalf("unexpected status %s in store history", st)
		}
		if r < prev {
			t.Fatalf("status regressed: history %v", store.statuses)
		}
		prev = r
	}
}

func TestStoreFromChainBudgetExceededFailsBeforeBridging(t *testing.T) {
	estimate := testEstimate()
	estimate.WithinBudget = false
	bridge := &stubBridge{}
	budget := decimal.RequireFromString("0.001")
	o := newTestOrchestrator(&stubEstimator{estimate: estimate}, bridge, &stubSwapper{}, &stubUploader{}, &stubProofs{}, NewMemoryStore())

	op, err := o.StoreFromChain(context.Background(), StoreRequest{
		SourceChain:      "1",
		Payload:          []byte("data"),
		RetentionPeriods: 1,
		Budget:           &budget,
	})
	if err != nil {
		t.Fatalf("StoreFromChain() error = %v", err)
	}

	if op.Status != models.OperationStatusFailed {
		t.Fatalf("status = %s, want failed", op.Status)
	}
	if op.Error == nil || !strings.Contains(*op.Error, "budget exceeded") {
		t.Errorf("error = %v, want budget exceeded", op.Error)
	}
	if op.CostEstimate == nil {
		t.Error("the rejected estimate should stay on the record")
	}
	if bridge.callCount() != 0 {
		t.Errorf("bridge calls = %d, want 0", bridge.callCount())
	}
}

func TestStoreFromChainBridgeTimeoutPreservesState(t *testing.T) {
	msg := "attestation for 0xabc not received within 30m0s"
	bridge := &stubBridge{finalErr: &msg}
	swapper := &stubSwapper{}
	o := newTestOrchestrator(&stubEstimator{estimate: testEstimate()}, bridge, swapper, &stubUploader{}, &stubProofs{}, NewMemoryStore())

	op, err := o.StoreFromChain(context.Background(), StoreRequest{
		SourceChain:      "8453",
		Payload:          []byte("data"),
		RetentionPeriods: 2,
	})
	if err != nil {
		t.Fatalf("StoreFromChain() error = %v", err)
	}

	if op.Status != models.OperationStatusFailed {
		t.Fatalf("status = %s, want failed", op.Status)
	}
	if op.Error == nil || !strings.Contains(*op.Error, "not received within") {
		t.Errorf("error = %v, want attestation timeout", op.Error)
	}
	if op.BridgeReceipt == nil || op.BridgeReceipt.Status != models.BridgeStatusFailed {
		t.Error("the failed bridge receipt should stay on the record")
	}
	if swapper.callCount() != 0 {
		t.Errorf("swap calls = %d, want 0", swapper.callCount())
	}
}

func TestStoreFromChainSwapLegFailureRetainsResults(t *testing.T) {
	swapper := &stubSwapper{err: errors.New("no route found for USDC -> STASH")}
	o := newTestOrchestrator(&stubEstimator{estimate: testEstimate()}, &stubBridge{}, swapper, &stubUploader{}, &stubProofs{}, NewMemoryStore())

	op, err := o.StoreFromChain(context.Background(), StoreRequest{
		SourceChain:      "8453",
		Payload:          []byte("data"),
		RetentionPeriods: 2,
	})
	if err != nil {
		t.Fatalf("StoreFromChain() error = %v", err)
	}

	if op.Status != models.OperationStatusFailed {
		t.Fatalf("status = %s, want failed", op.Status)
	}
	if len(op.SwapResults) != 2 {
		t.Fatalf("swap results = %d, want both legs retained", len(op.SwapResults))
	}
	if !op.SwapResults[0].Success || op.SwapResults[1].Success {
		t.Error("expected first leg success and second leg failure on the record")
	}
}

func TestStoreFromChainUploadFailure(t *testing.T) {
	uploader := &stubUploader{err: fmt.Errorf("payload too large: 9000000 bytes exceeds limit of 1048576")}
	o := newTestOrchestrator(&stubEstimator{estimate: testEstimate()}, &stubBridge{}, &stubSwapper{}, uploader, &stubProofs{}, NewMemoryStore())

	op, err := o.StoreFromChain(context.Background(), StoreRequest{
		SourceChain:      "8453",
		Payload:          []byte("data"),
		RetentionPeriods: 2,
	})
	if err != nil {
		t.Fatalf("StoreFromChain() error = %v", err)
	}

	if op.Status != models.OperationStatusFailed {
		t.Fatalf("status = %s, want failed", op.Status)
	}
	if op.Error == nil || !strings.Contains(*op.Error, "payload too large") {
		t.Errorf("error = %v, want payload too large", op.Error)
	}
	if len(op.SwapResults) != 2 {
		t.Error("completed swap results should stay on the record")
	}
	if op.BlobID != nil {
		t.Error("no blob id should be recorded for a failed upload")
	}
}

func TestStartStoreRunsAsync(t *testing.T) {
	o := newTestOrchestrator(&stubEstimator{estimate: testEstimate()}, &stubBridge{}, &stubSwapper{}, &stubUploader{}, &stubProofs{}, NewMemoryStore())

	op, err := o.StartStore(context.Background(), StoreRequest{
		SourceChain:      "8453",
		Payload:          []byte("async payload"),
		RetentionPeriods: 3,
	})
	if err != nil {
		t.Fatalf("StartStore() error = %v", err)
	}
	if op.Status != models.OperationStatusQuoting {
		t.Fatalf("initial status = %s, want quoting", op.Status)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case <-deadline:
			t.Fatal("operation did not complete in time")
		case <-time.After(10 * time.Millisecond):
		}
		current, err := o.GetOperation(context.Background(), op.ID)
		if err != nil {
			t.Fatalf("GetOperation() error = %v", err)
		}
		if current.Status.IsTerminal() {
			if current.Status != models.OperationStatusCompleted {
				t.Fatalf("status = %s, want completed (error: %v)", current.Status, current.Error)
			}
			return
		}
	}
}

func TestGetOperationUnknownID(t *testing.T) {
	o := newTestOrchestrator(&stubEstimator{estimate: testEstimate()}, &stubBridge{}, &stubSwapper{}, &stubUploader{}, &stubProofs{}, NewMemoryStore())

	_, err := o.GetOperation(context.Background(), "missing")
	if !errors.Is(err, ErrOperationNotFound) {
		t.Errorf("GetOperation() error = %v, want ErrOperationNotFound", err)
	}
}

func TestBeginValidation(t *testing.T) {
	o := newTestOrchestrator(&stubEstimator{estimate: testEstimate()}, &stubBridge{}, &stubSwapper{}, &stubUploader{}, &stubProofs{}, NewMemoryStore())

	tests := []struct {
		name string
		req  StoreRequest
	}{
		{"empty payload", StoreRequest{SourceChain: "1", RetentionPeriods: 1}},
		{"missing source chain", StoreRequest{Payload: []byte("x"), RetentionPeriods: 1}},
		{"zero retention", StoreRequest{SourceChain: "1", Payload: []byte("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := o.StoreFromChain(context.Background(), tt.req); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}

func TestBridgeAmountExcludesSourceSideCosts(t *testing.T) {
	got := bridgeAmount(testEstimate())
	// 30.19 - 0.15 gas - 0.03 bridge fee = 30.01
	if !got.Equal(decimal.RequireFromString("30.01")) {
		t.Errorf("bridgeAmount = %s, want 30.01", got)
	}
}

func TestPayloadSizeKBRoundsUp(t *testing.T) {
	tests := []struct {
		bytes int
		want  int64
	}{
		{1, 1},
		{1024, 1},
		{1025, 2},
		{4096, 4},
	}
	for _, tt := range tests {
		if got := payloadSizeKB(make([]byte, tt.bytes)); got != tt.want {
			t.Errorf("payloadSizeKB(%d) = %d, want %d", tt.bytes, got, tt.want)
		}
	}
}
