package proofs

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"storflow/internal/config"
	"storflow/internal/models"
)

func newTestService(t *testing.T) *Service {
	t.Helper()

	cfg := &config.Config{
		Chains: map[string]config.ChainConfig{
			"1": {
				ChainID:              "1",
				Name:                 "ethereum",
				ProofRegistryAddress: "0x00000000000000000000000000000000000000AA",
			},
		},
	}
	svc, err := NewService(cfg, nil, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return svc
}

func sampleProof() *models.StorageProof {
	return &models.StorageProof{
		BlobID:               "blob-abc",
		StoredEpoch:          100,
		CertifiedEpoch:       101,
		SizeBytes:            2048,
		EncodedUnitCount:     4,
		SourceTxHash:         "0x1111111111111111111111111111111111111111111111111111111111111111",
		AttestationSignature: []byte{0x01, 0x02, 0x03},
	}
}

func TestEncodeProof(t *testing.T) {
	svc := newTestService(t)

	data, err := svc.EncodeProof(sampleProof())
	if err != nil {
		t.Fatalf("EncodeProof failed: %v", err)
	}

	selector := svc.abi.Methods["submitProof"].ID
	if !bytes.Equal(data[:4], selector) {
		t.Errorf("calldata does not start with submitProof selector")
	}

	// Encoding must be deterministic for the same proof
	again, err := svc.EncodeProof(sampleProof())
	if err != nil {
		t.Fatalf("EncodeProof failed: %v", err)
	}
	if !bytes.Equal(data, again) {
		t.Error("expected deterministic encoding")
	}
}

func TestEncodeProofRequiresBlobID(t *testing.T) {
	svc := newTestService(t)

	proof := sampleProof()
	proof.BlobID = ""
	if _, err := svc.EncodeProof(proof); err == nil {
		t.Fatal("expected error for missing blob id")
	}
}

func TestProofIDDerivation(t *testing.T) {
	a := sampleProof()
	b := sampleProof()
	b.BlobID = "blob-other"

	if ProofID(a) != ProofID(sampleProof()) {
		t.Error("proof id should be stable for the same blob")
	}
	if ProofID(a) == ProofID(b) {
		t.Error("different blobs should get different proof ids")
	}
}

func TestSubmitProofUnsupportedChain(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.SubmitProof(context.Background(), "999", sampleProof())
	if err == nil {
		t.Fatal("expected error for unknown chain")
	}
	if !strings.Contains(err.Error(), "unsupported source chain") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVerifyProofNoClient(t *testing.T) {
	svc := newTestService(t)

	// Chain "1" is configured but has no connected client
	if _, err := svc.VerifyProof(context.Background(), "1", sampleProof()); err == nil {
		t.Fatal("expected error without a connected client")
	}
}
