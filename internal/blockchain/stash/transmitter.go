package stash

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"storflow/internal/config"
)

// Transmitter provides methods to interact with the message transmitter
// contract on the stash chain, which mints bridged USDC once an attested
// burn message is submitted to it.
type Transmitter struct {
	client *Client
	cfg    *config.StashConfig
	logger *zap.Logger
}

// NewTransmitter creates a new Transmitter instance
func NewTransmitter(client *Client, cfg *config.StashConfig, logger *zap.Logger) *Transmitter {
	return &Transmitter{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

// ==================== Message Types ====================

// ReceiveMessageMsg submits a burn message and its attestation signature
type ReceiveMessageMsg struct {
	ReceiveMessage struct {
		Message     string `json:"message"`
		Attestation string `json:"attestation"`
	} `json:"receive_message"`
}

// UsedNonceQueryMsg checks whether a message nonce was already redeemed
type UsedNonceQueryMsg struct {
	UsedNonce struct {
		SourceDomain uint32 `json:"source_domain"`
		Nonce        uint64 `json:"nonce"`
	} `json:"used_nonce"`
}

type UsedNonceResponse struct {
	Used bool `json:"used"`
}

// ==================== Execute Functions ====================

// Redeem submits the burn message and attestation to the transmitter
// contract, minting USDC to the recipient encoded in the message
func (t *Transmitter) Redeem(ctx context.Context, message, attestation []byte) (string, error) {
	t.logger.Info("Submitting attested message to transmitter",
		zap.String("transmitter", t.cfg.TransmitterAddress),
		zap.Int("message_len", len(message)),
		zap.Int("attestation_len", len(attestation)))

	executeMsg := ReceiveMessageMsg{}
	executeMsg.ReceiveMessage.Message = base64.StdEncoding.EncodeToString(message)
	executeMsg.ReceiveMessage.Attestation = base64.StdEncoding.EncodeToString(attestation)

	txHash, err := t.client.ExecuteContract(ctx, t.cfg.TransmitterAddress, executeMsg, nil)
	if err != nil {
		return "", fmt.Errorf("failed to execute ReceiveMessage: %w", err)
	}

	t.logger.Info("ReceiveMessage transaction sent",
		zap.String("tx_hash", txHash))

	return txHash, nil
}

// RedeemAndWait submits the attested message and waits for the transaction
func (t *Transmitter) RedeemAndWait(ctx context.Context, message, attestation []byte, timeout time.Duration) (string, error) {
	txHash, err := t.Redeem(ctx, message, attestation)
	if err != nil {
		return "", err
	}

	if err := t.client.WaitForTx(ctx, txHash, timeout); err != nil {
		return txHash, fmt.Errorf("ReceiveMessage transaction failed: %w", err)
	}

	t.logger.Info("ReceiveMessage transaction confirmed",
		zap.String("tx_hash", txHash))

	return txHash, nil
}

// ==================== Query Functions ====================

// IsNonceUsed checks whether a burn message was already redeemed
func (t *Transmitter) IsNonceUsed(ctx context.Context, sourceDomain uint32, nonce uint64) (bool, error) {
	queryMsg := UsedNonceQueryMsg{}
	queryMsg.UsedNonce.SourceDomain = sourceDomain
	queryMsg.UsedNonce.Nonce = nonce

	data, err := t.client.QueryContract(ctx, t.cfg.TransmitterAddress, queryMsg)
	if err != nil {
		return false, fmt.Errorf("failed to query used nonce: %w", err)
	}

	var resp UsedNonceResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return false, fmt.Errorf("failed to decode used nonce response: %w", err)
	}

	return resp.Used, nil
}
