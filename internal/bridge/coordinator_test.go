package bridge

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/models"
)

type stubBurner struct {
	submission *BurnSubmission
	err        error
}

func (b *stubBurner) Burn(ctx context.Context, amount decimal.Decimal, mintRecipient [32]byte) (*BurnSubmission, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.submission, nil
}

type stubAttestor struct {
	result AttestationResult
}

func (a *stubAttestor) WaitForAttestation(ctx context.Context, messageHash string) AttestationResult {
	return a.result
}

type stubRedeemer struct {
	txHash string
	err    error
}

func (r *stubRedeemer) Redeem(ctx context.Context, message, attestation []byte) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return r.txHash, nil
}

func happySubmission() *BurnSubmission {
	return &BurnSubmission{
		TxHash:      "0xburn",
		Message:     []byte("message"),
		MessageHash: "0xhash",
	}
}

func newTestCoordinator(attestor Attestor, redeemer Redeemer) *Coordinator {
	burners := map[string]Burner{
		"8453": &stubBurner{submission: happySubmission()},
	}
	return NewCoordinator(burners, attestor, redeemer, "stash", zap.NewNop())
}

func TestBridgeToTargetUnsupportedChain(t *testing.T) {
	coord := newTestCoordinator(
		&stubAttestor{result: AttestationResult{Outcome: OutcomeAttested}},
		&stubRedeemer{txHash: "TX"},
	)

	receipt, err := coord.BridgeToTarget(context.Background(), "unsupported-chain-id", decimal.NewFromInt(10), [32]byte{})
	if err == nil {
		t.Fatal("expected error for unsupported chain")
	}
	if !strings.Contains(err.Error(), "unsupported source chain") {
		t.Errorf("unexpected error: %v", err)
	}
	if receipt != nil {
		t.Error("no receipt should be created for an unsupported chain")
	}
}

func TestBridgeToTargetRejectsNonPositiveAmount(t *testing.T) {
	coord := newTestCoordinator(
		&stubAttestor{result: AttestationResult{Outcome: OutcomeAttested}},
		&stubRedeemer{txHash: "TX"},
	)

	if _, err := coord.BridgeToTarget(context.Background(), "8453", decimal.Zero, [32]byte{}); err == nil {
		t.Fatal("expected error for zero amount")
	}
}

func TestBridgeToTargetCompletes(t *testing.T) {
	coord := newTestCoordinator(
		&stubAttestor{result: AttestationResult{Outcome: OutcomeAttested, Attestation: []byte{0xAA, 0xBB}}},
		&stubRedeemer{txHash: "STASHTX"},
	)

	receipt, err := coord.BridgeToTarget(context.Background(), "8453", decimal.NewFromInt(10), [32]byte{})
	if err != nil {
		t.Fatalf("BridgeToTarget failed: %v", err)
	}
	if receipt.Status != models.BridgeStatusPending {
		t.Errorf("expected pending receipt, got %s", receipt.Status)
	}
	if receipt.SourceTxHash != "0xburn" {
		t.Errorf("expected source tx hash recorded, got %s", receipt.SourceTxHash)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := coord.Wait(ctx, receipt.ID)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if final.Status != models.BridgeStatusCompleted {
		t.Fatalf("expected completed, got %s", final.Status)
	}
	if final.TargetTxHash == nil || *final.TargetTxHash != "STASHTX" {
		t.Error("expected target tx hash to be recorded")
	}
	if len(final.Attestation) != 2 {
		t.Errorf("expected attestation to be recorded, got %d bytes", len(final.Attestation))
	}
}

func TestBridgeToTargetAttestationTimeout(t *testing.T) {
	coord := newTestCoordinator(
		&stubAttestor{result: AttestationResult{
			Outcome: OutcomeTimedOut,
			Err:     fmt.Errorf("attestation for 0xhash not received within 30m0s"),
		}},
		&stubRedeemer{txHash: "STASHTX"},
	)

	receipt, err := coord.BridgeToTarget(context.Background(), "8453", decimal.NewFromInt(10), [32]byte{})
	if err != nil {
		t.Fatalf("BridgeToTarget failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := coord.Wait(ctx, receipt.ID)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if final.Status != models.BridgeStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.Error == nil || !strings.Contains(*final.Error, "not received within") {
		t.Errorf("expected timeout error on receipt, got %v", final.Error)
	}
}

func TestBridgeToTargetRedeemFailure(t *testing.T) {
	coord := newTestCoordinator(
		&stubAttestor{result: AttestationResult{Outcome: OutcomeAttested, Attestation: []byte{0x01}}},
		&stubRedeemer{err: fmt.Errorf("out of gas")},
	)

	receipt, err := coord.BridgeToTarget(context.Background(), "8453", decimal.NewFromInt(10), [32]byte{})
	if err != nil {
		t.Fatalf("BridgeToTarget failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	final, err := coord.Wait(ctx, receipt.ID)
	if err != nil {
		t.Fatalf("Wait failed: %v", err)
	}

	if final.Status != models.BridgeStatusFailed {
		t.Fatalf("expected failed, got %s", final.Status)
	}
	if final.Error == nil || !strings.Contains(*final.Error, "out of gas") {
		t.Errorf("expected redeem error on receipt, got %v", final.Error)
	}
}

func TestGetReceiptUnknown(t *testing.T) {
	coord := newTestCoordinator(
		&stubAttestor{result: AttestationResult{Outcome: OutcomeAttested}},
		&stubRedeemer{txHash: "TX"},
	)

	if _, ok := coord.GetReceipt("missing"); ok {
		t.Error("expected no receipt for unknown id")
	}
	if _, err := coord.Wait(context.Background(), "missing"); err == nil {
		t.Error("expected error waiting on unknown receipt")
	}
}
