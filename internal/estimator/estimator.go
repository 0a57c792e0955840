package estimator

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/config"
	"storflow/internal/models"
)

var bpsDivisor = decimal.NewFromInt(10000)

// PriceProvider supplies a consistent USD price snapshot for a set of symbols
type PriceProvider interface {
	GetPrices(ctx context.Context, symbols ...string) (map[string]models.TokenPrice, error)
}

// Service produces full cost breakdowns for cross-chain storage purchases.
// Prices are fetched once at entry; everything after that is a deterministic
// computation over the snapshot.
type Service struct {
	cfg    *config.Config
	prices PriceProvider
	logger *zap.Logger
}

// NewService creates a new estimator service
func NewService(cfg *config.Config, prices PriceProvider, logger *zap.Logger) *Service {
	return &Service{
		cfg:    cfg,
		prices: prices,
		logger: logger,
	}
}

// EstimateParams holds the inputs of a quote request
type EstimateParams struct {
	SourceChain      string // EVM chain ID, e.g. "1"
	PayloadSizeKB    int64
	RetentionPeriods int
	Deletable        bool
	Budget           *decimal.Decimal // optional ceiling in source-token units
}

// GetCostEstimate fetches a price snapshot and computes the full quote
func (s *Service) GetCostEstimate(ctx context.Context, params EstimateParams) (*models.CostEstimate, error) {
	chainCfg, ok := s.cfg.Chains[params.SourceChain]
	if !ok {
		return nil, fmt.Errorf("unsupported source chain %s", params.SourceChain)
	}
	if params.PayloadSizeKB <= 0 {
		return nil, fmt.Errorf("payload size must be positive, got %d KB", params.PayloadSizeKB)
	}
	if params.RetentionPeriods <= 0 {
		return nil, fmt.Errorf("retention periods must be positive, got %d", params.RetentionPeriods)
	}

	snapshot, err := s.prices.GetPrices(ctx, "STOR", "STASH", "USDC", chainCfg.NativeSymbol)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch price snapshot: %w", err)
	}

	return s.Compute(&chainCfg, snapshot, params)
}

// Compute builds the estimate from an already-fetched price snapshot.
// Pure given the snapshot, so callers can replay it deterministically.
func (s *Service) Compute(
	chainCfg *config.ChainConfig,
	snapshot map[string]models.TokenPrice,
	params EstimateParams,
) (*models.CostEstimate, error) {
	for _, symbol := range []string{"STOR", "STASH", "USDC", chainCfg.NativeSymbol} {
		if _, ok := snapshot[symbol]; !ok {
			return nil, fmt.Errorf("price snapshot missing symbol %s", symbol)
		}
	}

	sizeKB := decimal.NewFromInt(params.PayloadSizeKB)
	periods := decimal.NewFromInt(int64(params.RetentionPeriods))
	storageCfg := &s.cfg.Storage

	// Storage cost in each output token scales linearly in size and retention
	storAmount := sizeKB.Mul(periods).Mul(storageCfg.StorRatePerKBEpoch)
	stashAmount := sizeKB.Mul(periods).Mul(storageCfg.StashRatePerKBEpoch)

	// Permanent retention costs more
	if !params.Deletable {
		storAmount = storAmount.Mul(storageCfg.PermanentMultiplier)
		stashAmount = stashAmount.Mul(storageCfg.PermanentMultiplier)
	}

	storPrice := snapshot["STOR"].PriceUSD
	stashPrice := snapshot["STASH"].PriceUSD
	usdcPrice := snapshot["USDC"].PriceUSD
	sourcePrice := snapshot[chainCfg.NativeSymbol].PriceUSD

	if sourcePrice.IsZero() {
		return nil, fmt.Errorf("zero price for source token %s", chainCfg.NativeSymbol)
	}

	storageUSD := storAmount.Mul(storPrice).Add(stashAmount.Mul(stashPrice))

	// The bridged value covers the storage purchase; the bridge fee is a
	// chain-specific percentage of it
	bridgedUSDC := storageUSD.Div(usdcPrice)
	bridgeFee := bridgedUSDC.Mul(decimal.NewFromInt(int64(chainCfg.BridgeFeeBps))).Div(bpsDivisor)
	bridgeFeeUSD := bridgeFee.Mul(usdcPrice)

	slippageTolerance := decimal.NewFromInt(int64(s.cfg.Swap.DefaultSlippageBps)).Div(bpsDivisor)
	estimatedSlippageUSD := storageUSD.Mul(slippageTolerance)

	totalUSD := storageUSD.
		Add(bridgeFeeUSD).
		Add(chainCfg.SourceGasUSD).
		Add(s.cfg.Stash.TargetGasUSD).
		Add(estimatedSlippageUSD)

	totalSourceToken := totalUSD.Div(sourcePrice)

	withinBudget := true
	if params.Budget != nil {
		withinBudget = totalSourceToken.LessThanOrEqual(*params.Budget)
	}

	estimate := &models.CostEstimate{
		StorageCost: models.StorageCost{
			OutputTokenA:     storAmount,
			OutputTokenB:     stashAmount,
			RetentionPeriods: params.RetentionPeriods,
			PayloadSizeKB:    params.PayloadSizeKB,
		},
		BridgeFee:              bridgeFee,
		BridgeFeeUSD:           bridgeFeeUSD,
		SourceChainGasUSD:      chainCfg.SourceGasUSD,
		TargetChainGasUSD:      s.cfg.Stash.TargetGasUSD,
		ExchangeRate:           sourcePrice,
		SlippageTolerance:      slippageTolerance,
		EstimatedSlippage:      estimatedSlippageUSD,
		TotalSourceTokenNeeded: totalSourceToken,
		TotalUSD:               totalUSD,
		WithinBudget:           withinBudget,
		BudgetCeiling:          params.Budget,
	}

	s.logger.Debug("Computed cost estimate",
		zap.String("source_chain", params.SourceChain),
		zap.Int64("payload_size_kb", params.PayloadSizeKB),
		zap.Int("retention_periods", params.RetentionPeriods),
		zap.String("total_usd", totalUSD.String()),
		zap.String("total_source_token", totalSourceToken.String()),
		zap.Bool("within_budget", withinBudget))

	return estimate, nil
}
