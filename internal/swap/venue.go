package swap

import (
	"context"

	"github.com/shopspring/decimal"
)

// PairInfo describes one liquidity pool a venue offers for a token pair
type PairInfo struct {
	ContractAddress string
	SpotRate        decimal.Decimal // output token per input token, before fees
	LiquidityDepth  decimal.Decimal // pool depth in input-token units
}

// Venue is one DEX: it reports pair availability and executes single-hop
// swaps on its pair contracts.
type Venue interface {
	Name() string

	// Pair returns pool information for a directed token pair, or false
	// when the venue carries no pool for it
	Pair(ctx context.Context, inputToken, outputToken string) (*PairInfo, bool, error)

	// ExecuteSwap performs one hop, enforcing minOutput on chain, and
	// returns the transaction hash and realized output amount
	ExecuteSwap(ctx context.Context, inputToken, outputToken string, inputAmount, minOutput decimal.Decimal) (string, decimal.Decimal, error)
}
