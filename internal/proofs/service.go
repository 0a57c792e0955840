package proofs

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"storflow/internal/blockchain/evm"
	"storflow/internal/config"
	"storflow/internal/models"
)

// RegistryABI is the ABI for the proof registry contract on origin chains
const RegistryABI = `[
	{
		"inputs": [
			{"internalType": "bytes32", "name": "proofId", "type": "bytes32"},
			{"internalType": "string", "name": "blobId", "type": "string"},
			{"internalType": "uint64", "name": "storedEpoch", "type": "uint64"},
			{"internalType": "uint64", "name": "certifiedEpoch", "type": "uint64"},
			{"internalType": "uint256", "name": "sizeBytes", "type": "uint256"},
			{"internalType": "uint256", "name": "encodedUnitCount", "type": "uint256"},
			{"internalType": "bytes32", "name": "sourceTxRef", "type": "bytes32"},
			{"internalType": "bytes", "name": "attestation", "type": "bytes"}
		],
		"name": "submitProof",
		"outputs": [],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"inputs": [{"internalType": "bytes32", "name": "proofId", "type": "bytes32"}],
		"name": "isVerified",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "view",
		"type": "function"
	}
]`

// Gas ceiling used when estimation fails
const fallbackGasLimit = 400000

// Service submits storage proofs to origin-chain registry contracts and can
// re-verify them later
type Service struct {
	cfg            *config.Config
	clients        map[string]*evm.Client // keyed by chain ID
	abi            abi.ABI
	confirmTimeout time.Duration
	logger         *zap.Logger
}

// NewService creates a proof service over the given per-chain clients
func NewService(cfg *config.Config, clients map[string]*evm.Client, logger *zap.Logger) (*Service, error) {
	parsedABI, err := abi.JSON(strings.NewReader(RegistryABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse registry ABI: %w", err)
	}

	return &Service{
		cfg:            cfg,
		clients:        clients,
		abi:            parsedABI,
		confirmTimeout: 2 * time.Minute,
		logger:         logger,
	}, nil
}

// SubmitResult identifies a submitted proof
type SubmitResult struct {
	TxHash  string `json:"tx_hash"`
	ProofID string `json:"proof_id"`
}

// ProofID derives the registry key for a proof from its blob identifier
func ProofID(proof *models.StorageProof) common.Hash {
	return crypto.Keccak256Hash([]byte(proof.BlobID))
}

// EncodeProof packs the submitProof calldata for a proof
func (s *Service) EncodeProof(proof *models.StorageProof) ([]byte, error) {
	if proof.BlobID == "" {
		return nil, fmt.Errorf("proof has no blob id")
	}

	data, err := s.abi.Pack("submitProof",
		ProofID(proof),
		proof.BlobID,
		proof.StoredEpoch,
		proof.CertifiedEpoch,
		big.NewInt(proof.SizeBytes),
		big.NewInt(proof.EncodedUnitCount),
		common.HexToHash(proof.SourceTxHash),
		proof.AttestationSignature,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack submitProof call: %w", err)
	}

	return data, nil
}

// SubmitProof encodes and submits a proof to the origin chain's registry,
// waiting for the transaction to confirm. Gas is estimated with a buffer;
// when estimation fails a fixed ceiling is used instead of failing outright.
func (s *Service) SubmitProof(ctx context.Context, originChain string, proof *models.StorageProof) (*SubmitResult, error) {
	client, registry, err := s.registryFor(originChain)
	if err != nil {
		return nil, err
	}

	data, err := s.EncodeProof(proof)
	if err != nil {
		return nil, err
	}

	txHash, err := client.SignAndSendTransaction(ctx, registry, data, big.NewInt(0), fallbackGasLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to submit proof: %w", err)
	}

	if _, err := client.WaitForTransaction(ctx, txHash, s.confirmTimeout); err != nil {
		return nil, fmt.Errorf("proof transaction failed: %w", err)
	}

	proofID := ProofID(proof)
	s.logger.Info("Storage proof submitted",
		zap.String("origin_chain", originChain),
		zap.String("blob_id", proof.BlobID),
		zap.String("proof_id", proofID.Hex()),
		zap.String("tx_hash", txHash.Hex()))

	return &SubmitResult{
		TxHash:  txHash.Hex(),
		ProofID: proofID.Hex(),
	}, nil
}

// VerifyProof queries the origin-chain registry for a proof's verified flag
func (s *Service) VerifyProof(ctx context.Context, originChain string, proof *models.StorageProof) (bool, error) {
	client, registry, err := s.registryFor(originChain)
	if err != nil {
		return false, err
	}

	data, err := s.abi.Pack("isVerified", ProofID(proof))
	if err != nil {
		return false, fmt.Errorf("failed to pack isVerified call: %w", err)
	}

	result, err := client.CallContract(ctx, ethereum.CallMsg{
		To:   &registry,
		Data: data,
	})
	if err != nil {
		return false, fmt.Errorf("failed to call isVerified: %w", err)
	}

	var verified bool
	if err := s.abi.UnpackIntoInterface(&verified, "isVerified", result); err != nil {
		return false, fmt.Errorf("failed to unpack isVerified result: %w", err)
	}

	return verified, nil
}

func (s *Service) registryFor(originChain string) (*evm.Client, common.Address, error) {
	chainCfg, ok := s.cfg.Chains[originChain]
	if !ok {
		return nil, common.Address{}, fmt.Errorf("unsupported source chain %s", originChain)
	}
	client, ok := s.clients[originChain]
	if !ok {
		return nil, common.Address{}, fmt.Errorf("no client configured for chain %s", originChain)
	}
	if chainCfg.ProofRegistryAddress == "" {
		return nil, common.Address{}, fmt.Errorf("no proof registry configured for chain %s", originChain)
	}
	return client, common.HexToAddress(chainCfg.ProofRegistryAddress), nil
}
