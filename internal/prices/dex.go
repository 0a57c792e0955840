package prices

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/config"
)

// ContractQuerier is the read-only contract access the DEX source needs
type ContractQuerier interface {
	QueryContract(ctx context.Context, contractAddr string, queryMsg interface{}) ([]byte, error)
}

// DexSource derives prices from on-chain pool reserves on the stash chain.
// It is the last tier of the fallback chain: USDC is taken at $1 and other
// tokens are priced off their deepest USDC pair.
type DexSource struct {
	querier ContractQuerier
	pairs   map[string]dexPair // symbol -> USDC pair
	logger  *zap.Logger
}

type dexPair struct {
	contractAddr string
	tokenDenom   string
	usdcDenom    string
}

// NewDexSource creates a DexSource from the stash chain configuration.
// For each non-USDC symbol it uses the first configured venue carrying a
// USDC pair for that token.
func NewDexSource(cfg *config.StashConfig, querier ContractQuerier, logger *zap.Logger) *DexSource {
	pairs := make(map[string]dexPair)
	denoms := map[string]string{
		"STOR":  cfg.StorageDenom,
		"STASH": cfg.GasDenom,
	}

	for symbol, denom := range denoms {
		key := "USDC/" + symbol
		for _, venue := range cfg.Venues {
			if pair, ok := venue.Pairs[key]; ok {
				pairs[symbol] = dexPair{
					contractAddr: pair.ContractAddress,
					tokenDenom:   denom,
					usdcDenom:    cfg.USDCDenom,
				}
				break
			}
		}
	}

	return &DexSource{
		querier: querier,
		pairs:   pairs,
		logger:  logger,
	}
}

// Name returns the source name
func (s *DexSource) Name() string {
	return "onchain_dex"
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

// FetchPrice derives the USD price of a symbol from pool reserves
func (s *DexSource) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if symbol == "USDC" {
		return decimal.NewFromInt(1), nil
	}

	pair, ok := s.pairs[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no USDC pair configured for symbol %s", symbol)
	}

	data, err := s.querier.QueryContract(ctx, pair.contractAddr, poolQueryMsg{})
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query pool: %w", err)
	}

	var pool poolResponse
	if err := json.Unmarshal(data, &pool); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode pool response: %w", err)
	}

	var usdcReserve, tokenReserve decimal.Decimal
	for _, asset := range pool.Assets {
		amount, err := decimal.NewFromString(asset.Amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid pool amount %q: %w", asset.Amount, err)
		}
		switch asset.Info.NativeToken.Denom {
		case pair.usdcDenom:
			usdcReserve = amount
		case pair.tokenDenom:
			tokenReserve = amount
		}
	}

	if tokenReserve.IsZero() || usdcReserve.IsZero() {
		return decimal.Zero, fmt.Errorf("pool for %s has empty reserves", symbol)
	}

	// Both denoms use 6 decimal places, so the raw reserve ratio is the price
	price := usdcReserve.Div(tokenReserve)

	s.logger.Debug("Derived price from pool reserves",
		zap.String("symbol", symbol),
		zap.String("pair", pair.contractAddr),
		zap.String("price_usd", price.String()))

	return price, nil
}
