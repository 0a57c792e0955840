package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"

	"storflow/internal/config"
	"storflow/internal/wallet"
)

// Client wraps Ethereum client functionality for interacting with EVM chains
type Client struct {
	ethClient   *ethclient.Client
	chainConfig *config.ChainConfig
	signer      wallet.Signer
	logger      *zap.Logger
}

// NewClient creates a new EVM client for the specified chain
func NewClient(chainCfg *config.ChainConfig, signer wallet.Signer, logger *zap.Logger) (*Client, error) {
	ethClient, err := ethclient.Dial(chainCfg.RPCEndpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint %s: %w", chainCfg.RPCEndpoint, err)
	}

	logger.Info("EVM client initialized",
		zap.String("chain_id", chainCfg.ChainID),
		zap.String("chain_name", chainCfg.Name),
		zap.String("operator_address", signer.Address().Hex()))

	return &Client{
		ethClient:   ethClient,
		chainConfig: chainCfg,
		signer:      signer,
		logger:      logger,
	}, nil
}

// Close closes the underlying RPC connection
func (c *Client) Close() {
	c.ethClient.Close()
}

// ChainID returns the configured chain ID
func (c *Client) ChainID() string {
	return c.chainConfig.ChainID
}

// ChainName returns the configured chain name
func (c *Client) ChainName() string {
	return c.chainConfig.Name
}

// OperatorAddress returns the operator's address
func (c *Client) OperatorAddress() common.Address {
	return c.signer.Address()
}

// GetTokenBalance returns the ERC20 balance of an address
func (c *Client) GetTokenBalance(ctx context.Context, token, address common.Address) (*big.Int, error) {
	// ERC20 balanceOf(address) selector: 0x70a08231
	data := append(
		common.Hex2Bytes("70a08231"),
		common.LeftPadBytes(address.Bytes(), 32)...,
	)

	result, err := c.ethClient.CallContract(ctx, ethereum.CallMsg{
		To:   &token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call balanceOf: %w", err)
	}

	if len(result) < 32 {
		return nil, fmt.Errorf("invalid balance response length: %d", len(result))
	}

	return new(big.Int).SetBytes(result), nil
}

// GetUSDCBalance returns the USDC balance of an address on this chain
func (c *Client) GetUSDCBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.GetTokenBalance(ctx, common.HexToAddress(c.chainConfig.USDCContractAddress), address)
}

// GetNativeBalance returns the native coin balance of an address
func (c *Client) GetNativeBalance(ctx context.Context, address common.Address) (*big.Int, error) {
	return c.ethClient.BalanceAt(ctx, address, nil)
}

// GetNonce returns the current pending nonce for the operator address
func (c *Client) GetNonce(ctx context.Context) (uint64, error) {
	return c.ethClient.PendingNonceAt(ctx, c.signer.Address())
}

// GetGasPrice returns the suggested gas price
func (c *Client) GetGasPrice(ctx context.Context) (*big.Int, error) {
	return c.ethClient.SuggestGasPrice(ctx)
}

// EstimateGas estimates gas for a transaction
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.ethClient.EstimateGas(ctx, msg)
}

// CallContract performs a read-only contract call
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.ethClient.CallContract(ctx, msg, nil)
}

// SendTransaction sends a signed transaction
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return c.ethClient.SendTransaction(ctx, tx)
}

// WaitForTransaction waits for a transaction to be mined
func (c *Client) WaitForTransaction(ctx context.Context, txHash common.Hash, timeout time.Duration) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("timeout waiting for transaction %s", txHash.Hex())
		case <-ticker.C:
			receipt, err := c.ethClient.TransactionReceipt(ctx, txHash)
			if err == nil && receipt != nil {
				if receipt.Status == 0 {
					return receipt, fmt.Errorf("transaction failed: %s", txHash.Hex())
				}
				return receipt, nil
			}
			// Transaction not yet mined, continue waiting
		}
	}
}

// GetTransactionReceipt gets the receipt for a transaction
func (c *Client) GetTransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	return c.ethClient.TransactionReceipt(ctx, txHash)
}

// IsContractDeployed checks if a contract exists at the given address
func (c *Client) IsContractDeployed(ctx context.Context, address common.Address) (bool, error) {
	code, err := c.ethClient.CodeAt(ctx, address, nil)
	if err != nil {
		return false, fmt.Errorf("failed to get code at address: %w", err)
	}
	return len(code) > 0, nil
}

// SignAndSendTransaction creates, signs, and sends a transaction. The gas
// limit is the estimate plus a 20% buffer; when estimation fails the
// provided fallback limit is used instead.
func (c *Client) SignAndSendTransaction(
	ctx context.Context,
	to common.Address,
	data []byte,
	value *big.Int,
	fallbackGasLimit uint64,
) (common.Hash, error) {
	chainID, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get chain ID: %w", err)
	}

	nonce, err := c.ethClient.PendingNonceAt(ctx, c.signer.Address())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := c.ethClient.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to suggest gas price: %w", err)
	}

	gasLimit, err := c.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:  c.signer.Address(),
		To:    &to,
		Data:  data,
		Value: value,
	})
	if err != nil {
		if fallbackGasLimit == 0 {
			return common.Hash{}, fmt.Errorf("failed to estimate gas: %w", err)
		}
		c.logger.Warn("Gas estimation failed, using fallback limit",
			zap.String("to", to.Hex()),
			zap.Uint64("fallback_gas_limit", fallbackGasLimit),
			zap.Error(err))
		gasLimit = fallbackGasLimit
	} else {
		// Add 20% buffer
		gasLimit = gasLimit * 120 / 100
	}

	tx := types.NewTransaction(nonce, to, value, gasLimit, gasPrice, data)

	signedTx, err := c.signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := c.ethClient.SendTransaction(ctx, signedTx); err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.Info("Transaction sent",
		zap.String("tx_hash", signedTx.Hash().Hex()),
		zap.String("to", to.Hex()),
		zap.Uint64("nonce", nonce),
		zap.Uint64("gas_limit", gasLimit))

	return signedTx.Hash(), nil
}
