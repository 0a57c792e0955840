package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"storflow/internal/config"
)

// MessengerABI is the ABI for the token messenger contract that burns USDC
// on the source chain and emits the bridge message
const MessengerABI = `[
	{
		"inputs": [
			{"internalType": "uint256", "name": "amount", "type": "uint256"},
			{"internalType": "uint32", "name": "destinationDomain", "type": "uint32"},
			{"internalType": "bytes32", "name": "mintRecipient", "type": "bytes32"},
			{"internalType": "address", "name": "burnToken", "type": "address"}
		],
		"name": "depositForBurn",
		"outputs": [{"internalType": "uint64", "name": "nonce", "type": "uint64"}],
		"stateMutability": "nonpayable",
		"type": "function"
	},
	{
		"anonymous": false,
		"inputs": [
			{"indexed": false, "internalType": "bytes", "name": "message", "type": "bytes"}
		],
		"name": "MessageSent",
		"type": "event"
	}
]`

// ERC20ApproveABI covers the approve call needed before depositForBurn
const ERC20ApproveABI = `[
	{
		"inputs": [
			{"internalType": "address", "name": "spender", "type": "address"},
			{"internalType": "uint256", "name": "amount", "type": "uint256"}
		],
		"name": "approve",
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}],
		"stateMutability": "nonpayable",
		"type": "function"
	}
]`

// Messenger provides methods to burn USDC on an EVM source chain and
// extract the resulting bridge message for attestation
type Messenger struct {
	client      *Client
	chainConfig *config.ChainConfig
	abi         abi.ABI
	erc20ABI    abi.ABI
	logger      *zap.Logger
}

// NewMessenger creates a new Messenger instance
func NewMessenger(client *Client, chainConfig *config.ChainConfig, logger *zap.Logger) (*Messenger, error) {
	parsedABI, err := abi.JSON(strings.NewReader(MessengerABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse messenger ABI: %w", err)
	}

	erc20ABI, err := abi.JSON(strings.NewReader(ERC20ApproveABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse erc20 ABI: %w", err)
	}

	return &Messenger{
		client:      client,
		chainConfig: chainConfig,
		abi:         parsedABI,
		erc20ABI:    erc20ABI,
		logger:      logger,
	}, nil
}

// Client returns the underlying EVM client
func (m *Messenger) Client() *Client {
	return m.client
}

// BurnParams holds parameters for the depositForBurn call
type BurnParams struct {
	Amount            *big.Int // USDC amount in base units
	DestinationDomain uint32   // bridge domain of the target chain
	MintRecipient     [32]byte // target-chain recipient, bytes32-encoded
}

// Approve grants the messenger contract an allowance over the operator's USDC
func (m *Messenger) Approve(ctx context.Context, amount *big.Int) (common.Hash, error) {
	data, err := m.erc20ABI.Pack("approve",
		common.HexToAddress(m.chainConfig.MessengerContract),
		amount,
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack approve call: %w", err)
	}

	txHash, err := m.client.SignAndSendTransaction(ctx,
		common.HexToAddress(m.chainConfig.USDCContractAddress), data, big.NewInt(0), 0)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send approve transaction: %w", err)
	}

	m.logger.Info("Approve transaction sent",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("amount", amount.String()))

	return txHash, nil
}

// Burn calls depositForBurn on the messenger contract
func (m *Messenger) Burn(ctx context.Context, params BurnParams) (common.Hash, error) {
	m.logger.Info("Calling depositForBurn on messenger",
		zap.String("messenger", m.chainConfig.MessengerContract),
		zap.String("amount", params.Amount.String()),
		zap.Uint32("destination_domain", params.DestinationDomain))

	data, err := m.abi.Pack("depositForBurn",
		params.Amount,
		params.DestinationDomain,
		params.MintRecipient,
		common.HexToAddress(m.chainConfig.USDCContractAddress),
	)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to pack depositForBurn call: %w", err)
	}

	txHash, err := m.client.SignAndSendTransaction(ctx,
		common.HexToAddress(m.chainConfig.MessengerContract), data, big.NewInt(0), 0)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send burn transaction: %w", err)
	}

	m.logger.Info("Burn transaction sent",
		zap.String("tx_hash", txHash.Hex()))

	return txHash, nil
}

// BurnAndWait calls depositForBurn and waits for the transaction to be mined,
// returning the receipt plus the emitted bridge message and its hash
func (m *Messenger) BurnAndWait(ctx context.Context, params BurnParams, timeout time.Duration) (*types.Receipt, []byte, common.Hash, error) {
	txHash, err := m.Burn(ctx, params)
	if err != nil {
		return nil, nil, common.Hash{}, err
	}

	receipt, err := m.client.WaitForTransaction(ctx, txHash, timeout)
	if err != nil {
		return nil, nil, common.Hash{}, fmt.Errorf("burn transaction failed: %w", err)
	}

	message, messageHash, err := m.ExtractMessage(receipt)
	if err != nil {
		return receipt, nil, common.Hash{}, err
	}

	m.logger.Info("Burn transaction confirmed",
		zap.String("tx_hash", txHash.Hex()),
		zap.String("message_hash", messageHash.Hex()),
		zap.Uint64("gas_used", receipt.GasUsed),
		zap.Uint64("block_number", receipt.BlockNumber.Uint64()))

	return receipt, message, messageHash, nil
}

// ExtractMessage finds the MessageSent event in a burn receipt and returns
// the raw message bytes together with their keccak256 hash. The attestation
// service indexes attestations by this hash, and redemption on the target
// chain needs the raw message back.
func (m *Messenger) ExtractMessage(receipt *types.Receipt) ([]byte, common.Hash, error) {
	eventID := m.abi.Events["MessageSent"].ID

	for _, log := range receipt.Logs {
		if len(log.Topics) == 0 || log.Topics[0] != eventID {
			continue
		}

		values, err := m.abi.Events["MessageSent"].Inputs.Unpack(log.Data)
		if err != nil {
			return nil, common.Hash{}, fmt.Errorf("failed to unpack MessageSent event: %w", err)
		}
		if len(values) != 1 {
			return nil, common.Hash{}, fmt.Errorf("unexpected MessageSent field count: %d", len(values))
		}
		message, ok := values[0].([]byte)
		if !ok {
			return nil, common.Hash{}, fmt.Errorf("MessageSent payload is not bytes")
		}

		return message, crypto.Keccak256Hash(message), nil
	}

	return nil, common.Hash{}, fmt.Errorf("no MessageSent event in receipt %s", receipt.TxHash.Hex())
}
