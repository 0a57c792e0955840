package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cosmossdk.io/math"
	sdk "github.com/cosmos/cosmos-sdk/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/config"
)

// All stash-chain denoms use 6 decimal places
const denomDecimals = 6

// ContractBackend is the chain access a wasm venue needs
type ContractBackend interface {
	QueryContract(ctx context.Context, contractAddr string, queryMsg interface{}) ([]byte, error)
	ExecuteContract(ctx context.Context, contractAddr string, executeMsg interface{}, funds sdk.Coins) (string, error)
	WaitForTx(ctx context.Context, txHash string, timeout time.Duration) error
	GetTxEventAttribute(ctx context.Context, txHash, eventType, attrKey string) (string, error)
}

// WasmVenue is a DEX whose pairs are CosmWasm pair contracts on the stash
// chain. Pair contracts follow the common pool/swap message shapes: a
// `pool` query exposing reserves and a `swap` execute taking the offer as
// attached funds.
type WasmVenue struct {
	name           string
	pairs          map[string]config.PairConfig // key: "IN/OUT"
	denoms         map[string]string            // symbol -> denom
	backend        ContractBackend
	confirmTimeout time.Duration
	logger         *zap.Logger
}

// NewWasmVenue creates a venue from its configuration
func NewWasmVenue(
	venueCfg config.VenueConfig,
	stashCfg *config.StashConfig,
	backend ContractBackend,
	logger *zap.Logger,
) *WasmVenue {
	return &WasmVenue{
		name:  venueCfg.Name,
		pairs: venueCfg.Pairs,
		denoms: map[string]string{
			"USDC":  stashCfg.USDCDenom,
			"STASH": stashCfg.GasDenom,
			"STOR":  stashCfg.StorageDenom,
		},
		backend:        backend,
		confirmTimeout: 60 * time.Second,
		logger:         logger,
	}
}

// Name returns the venue name
func (v *WasmVenue) Name() string {
	return v.name
}

// pairConfig resolves the pool contract for a directed pair; pools are
// configured once per unordered pair
func (v *WasmVenue) pairConfig(inputToken, outputToken string) (config.PairConfig, bool) {
	if pair, ok := v.pairs[inputToken+"/"+outputToken]; ok {
		return pair, true
	}
	pair, ok := v.pairs[outputToken+"/"+inputToken]
	return pair, ok
}

type poolQueryMsg struct {
	Pool struct{} `json:"pool"`
}

type poolResponse struct {
	Assets []struct {
		Info struct {
			NativeToken struct {
				Denom string `json:"denom"`
			} `json:"native_token"`
		} `json:"info"`
		Amount string `json:"amount"`
	} `json:"assets"`
}

// Pair queries the pool contract for live reserves and derives the spot rate
// and input-side depth
func (v *WasmVenue) Pair(ctx context.Context, inputToken, outputToken string) (*PairInfo, bool, error) {
	pairCfg, ok := v.pairConfig(inputToken, outputToken)
	if !ok {
		return nil, false, nil
	}

	inDenom, ok := v.denoms[inputToken]
	if !ok {
		return nil, false, fmt.Errorf("unknown token symbol %s", inputToken)
	}
	outDenom, ok := v.denoms[outputToken]
	if !ok {
		return nil, false, fmt.Errorf("unknown token symbol %s", outputToken)
	}

	data, err := v.backend.QueryContract(ctx, pairCfg.ContractAddress, poolQueryMsg{})
	if err != nil {
		return nil, false, fmt.Errorf("failed to query pool %s: %w", pairCfg.ContractAddress, err)
	}

	var pool poolResponse
	if err := json.Unmarshal(data, &pool); err != nil {
		return nil, false, fmt.Errorf("failed to decode pool response: %w", err)
	}

	var inReserve, outReserve decimal.Decimal
	for _, asset := range pool.Assets {
		amount, err := decimal.NewFromString(asset.Amount)
		if err != nil {
			return nil, false, fmt.Errorf("invalid pool amount %q: %w", asset.Amount, err)
		}
		switch asset.Info.NativeToken.Denom {
		case inDenom:
			inReserve = amount
		case outDenom:
			outReserve = amount
		}
	}

	if inReserve.IsZero() || outReserve.IsZero() {
		return nil, false, fmt.Errorf("pool %s has empty reserves", pairCfg.ContractAddress)
	}

	return &PairInfo{
		ContractAddress: pairCfg.ContractAddress,
		SpotRate:        outReserve.Div(inReserve),
		LiquidityDepth:  inReserve.Shift(-denomDecimals),
	}, true, nil
}

type swapExecuteMsg struct {
	Swap struct {
		OutputDenom string `json:"output_denom"`
		MinOutput   string `json:"min_output"`
	} `json:"swap"`
}

// ExecuteSwap performs one hop through the pair contract, attaching the
// offer amount as funds and reading the realized output from the wasm event
func (v *WasmVenue) ExecuteSwap(
	ctx context.Context,
	inputToken, outputToken string,
	inputAmount, minOutput decimal.Decimal,
) (string, decimal.Decimal, error) {
	pairCfg, ok := v.pairConfig(inputToken, outputToken)
	if !ok {
		return "", decimal.Zero, fmt.Errorf("venue %s has no pool for %s/%s", v.name, inputToken, outputToken)
	}

	inDenom := v.denoms[inputToken]
	outDenom := v.denoms[outputToken]

	offerUnits := math.NewIntFromBigInt(inputAmount.Shift(denomDecimals).BigInt())
	if !offerUnits.IsPositive() {
		return "", decimal.Zero, fmt.Errorf("input amount %s rounds to zero base units", inputAmount)
	}
	minUnits := math.NewIntFromBigInt(minOutput.Shift(denomDecimals).BigInt())

	executeMsg := swapExecuteMsg{}
	executeMsg.Swap.OutputDenom = outDenom
	executeMsg.Swap.MinOutput = minUnits.String()

	funds := sdk.NewCoins(sdk.NewCoin(inDenom, offerUnits))

	txHash, err := v.backend.ExecuteContract(ctx, pairCfg.ContractAddress, executeMsg, funds)
	if err != nil {
		return "", decimal.Zero, fmt.Errorf("failed to execute swap: %w", err)
	}

	if err := v.backend.WaitForTx(ctx, txHash, v.confirmTimeout); err != nil {
		return txHash, decimal.Zero, fmt.Errorf("swap transaction failed: %w", err)
	}

	returned, err := v.backend.GetTxEventAttribute(ctx, txHash, "wasm", "return_amount")
	if err != nil {
		return txHash, decimal.Zero, fmt.Errorf("failed to read swap output: %w", err)
	}

	outputUnits, err := decimal.NewFromString(returned)
	if err != nil {
		return txHash, decimal.Zero, fmt.Errorf("invalid return_amount %q: %w", returned, err)
	}
	output := outputUnits.Shift(-denomDecimals)

	v.logger.Info("Venue swap executed",
		zap.String("venue", v.name),
		zap.String("pair", inputToken+"/"+outputToken),
		zap.String("tx_hash", txHash),
		zap.String("output_amount", output.String()))

	return txHash, output, nil
}

var _ Venue = (*WasmVenue)(nil)
