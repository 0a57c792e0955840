package simchain

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/swap"
)

// Venue is an in-memory constant-reserves DEX venue. Reserves move with
// every executed swap, so repeated trades see worsening rates the way a
// real pool would.
type Venue struct {
	name   string
	logger *zap.Logger

	mu    sync.Mutex
	pools map[string]*pool
}

type pool struct {
	reserveIn  decimal.Decimal
	reserveOut decimal.Decimal
}

// NewVenue builds an empty simulated venue
func NewVenue(name string, logger *zap.Logger) *Venue {
	return &Venue{
		name:   name,
		logger: logger.Named("simchain.venue"),
		pools:  make(map[string]*pool),
	}
}

// AddPool seeds both directions of a pair with the given reserves,
// denominated in whole tokens.
func (v *Venue) AddPool(tokenA, tokenB string, reserveA, reserveB decimal.Decimal) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pools[pairKey(tokenA, tokenB)] = &pool{reserveIn: reserveA, reserveOut: reserveB}
	v.pools[pairKey(tokenB, tokenA)] = &pool{reserveIn: reserveB, reserveOut: reserveA}
}

func (v *Venue) Name() string {
	return v.name
}

// Pair reports the current spot rate and depth for a directed pair
func (v *Venue) Pair(ctx context.Context, inputToken, outputToken string) (*swap.PairInfo, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	p, ok := v.pools[pairKey(inputToken, outputToken)]
	if !ok {
		return nil, false, nil
	}
	return &swap.PairInfo{
		ContractAddress: fmt.Sprintf("sim:%s:%s-%s", v.name, inputToken, outputToken),
		SpotRate:        p.reserveOut.Div(p.reserveIn),
		LiquidityDepth:  p.reserveIn,
	}, true, nil
}

// ExecuteSwap fills a hop at the spot rate degraded by price impact,
// enforces minOutput, and moves the reserves.
func (v *Venue) ExecuteSwap(ctx context.Context, inputToken, outputToken string, inputAmount, minOutput decimal.Decimal) (string, decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return "", decimal.Zero, err
	}
	if !inputAmount.IsPositive() {
		return "", decimal.Zero, fmt.Errorf("input amount must be positive")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	key := pairKey(inputToken, outputToken)
	p, ok := v.pools[key]
	if !ok {
		return "", decimal.Zero, fmt.Errorf("no pool for %s", key)
	}

	impact := inputAmount.Div(p.reserveIn)
	if impact.GreaterThan(decimal.NewFromInt(1)) {
		impact = decimal.NewFromInt(1)
	}
	spot := p.reserveOut.Div(p.reserveIn)
	output := inputAmount.Mul(spot).Mul(decimal.NewFromInt(1).Sub(impact)).RoundDown(6)

	if output.LessThan(minOutput) {
		return "", decimal.Zero, fmt.Errorf("minimum output not met: %s < %s", output.String(), minOutput.String())
	}
	if output.GreaterThanOrEqual(p.reserveOut) {
		return "", decimal.Zero, fmt.Errorf("insufficient liquidity for %s", key)
	}

	p.reserveIn = p.reserveIn.Add(inputAmount)
	p.reserveOut = p.reserveOut.Sub(output)
	if rev, ok := v.pools[pairKey(outputToken, inputToken)]; ok {
		rev.reserveIn = p.reserveOut
		rev.reserveOut = p.reserveIn
	}

	txHash := digest([]byte(fmt.Sprintf("swap:%s:%s:%s:%s", v.name, key, inputAmount.String(), output.String())))
	v.logger.Info("simulated swap",
		zap.String("pair", key),
		zap.String("input", inputAmount.String()),
		zap.String("output", output.String()),
		zap.String("tx_hash", txHash))

	return txHash, output, nil
}

func pairKey(in, out string) string {
	return in + "/" + out
}
