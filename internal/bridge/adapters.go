package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"storflow/internal/blockchain/evm"
	"storflow/internal/blockchain/stash"
)

// USDC uses 6 decimal places on every supported chain
const usdcDecimals = 6

// EVMBurner adapts an EVM messenger to the Burner interface
type EVMBurner struct {
	messenger         *evm.Messenger
	destinationDomain uint32
	confirmTimeout    time.Duration
}

// NewEVMBurner creates a Burner over a chain's messenger contract
func NewEVMBurner(messenger *evm.Messenger, destinationDomain uint32, confirmTimeout time.Duration) *EVMBurner {
	return &EVMBurner{
		messenger:         messenger,
		destinationDomain: destinationDomain,
		confirmTimeout:    confirmTimeout,
	}
}

// Burn approves and burns USDC, waiting for the burn to confirm
func (b *EVMBurner) Burn(ctx context.Context, amount decimal.Decimal, mintRecipient [32]byte) (*BurnSubmission, error) {
	baseUnits := amount.Shift(usdcDecimals).BigInt()
	if baseUnits.Sign() <= 0 {
		return nil, fmt.Errorf("amount %s rounds to zero base units", amount)
	}

	approveTx, err := b.messenger.Approve(ctx, baseUnits)
	if err != nil {
		return nil, err
	}
	if _, err := b.messenger.Client().WaitForTransaction(ctx, approveTx, b.confirmTimeout); err != nil {
		return nil, fmt.Errorf("approve transaction failed: %w", err)
	}

	receipt, message, messageHash, err := b.messenger.BurnAndWait(ctx, evm.BurnParams{
		Amount:            baseUnits,
		DestinationDomain: b.destinationDomain,
		MintRecipient:     mintRecipient,
	}, b.confirmTimeout)
	if err != nil {
		return nil, err
	}

	return &BurnSubmission{
		TxHash:      receipt.TxHash.Hex(),
		Message:     message,
		MessageHash: messageHash.Hex(),
	}, nil
}

// StashRedeemer adapts the stash chain's transmitter to the Redeemer interface
type StashRedeemer struct {
	transmitter    *stash.Transmitter
	confirmTimeout time.Duration
}

// NewStashRedeemer creates a Redeemer over the target chain's transmitter
func NewStashRedeemer(transmitter *stash.Transmitter, confirmTimeout time.Duration) *StashRedeemer {
	return &StashRedeemer{
		transmitter:    transmitter,
		confirmTimeout: confirmTimeout,
	}
}

// Redeem submits the attested message and waits for confirmation
func (r *StashRedeemer) Redeem(ctx context.Context, message, attestation []byte) (string, error) {
	return r.transmitter.RedeemAndWait(ctx, message, attestation, r.confirmTimeout)
}
