package swap

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/config"
	"storflow/internal/models"
)

var one = decimal.NewFromInt(1)

// PriceProvider supplies USD prices for the auto-swap budget split
type PriceProvider interface {
	GetPrices(ctx context.Context, symbols ...string) (map[string]models.TokenPrice, error)
}

// Router converts a bridged token into target tokens across the configured
// venues. Routing prefers a direct pool and falls back to one intermediate
// hop through the chain's high-liquidity bridge tokens.
type Router struct {
	venues       []Venue
	bridgeTokens []string // hop candidates in preference order
	perHopFee    decimal.Decimal
	slippage     decimal.Decimal // default tolerance as a fraction
	prices       PriceProvider
	logger       *zap.Logger
}

// NewRouter creates a swap router. Bridge tokens are tried as intermediate
// hops in the given order, typically the gas token then a stablecoin.
func NewRouter(
	cfg *config.SwapConfig,
	venues []Venue,
	bridgeTokens []string,
	prices PriceProvider,
	logger *zap.Logger,
) *Router {
	return &Router{
		venues:       venues,
		bridgeTokens: bridgeTokens,
		perHopFee:    cfg.PerHopFee,
		slippage:     decimal.NewFromInt(int64(cfg.DefaultSlippageBps)).Div(decimal.NewFromInt(10000)),
		prices:       prices,
		logger:       logger,
	}
}

// hop is one leg of a route with the venue chosen for it
type hop struct {
	inputToken  string
	outputToken string
	venue       Venue
	estimated   decimal.Decimal // output after fee and impact
	impact      decimal.Decimal
}

// quoteHop finds the best venue for one directed pair at a given input
// amount. Returns false when no venue carries the pair.
func (r *Router) quoteHop(ctx context.Context, inputToken, outputToken string, inputAmount decimal.Decimal) (*hop, bool, error) {
	var best *hop

	for _, venue := range r.venues {
		pair, ok, err := venue.Pair(ctx, inputToken, outputToken)
		if err != nil {
			r.logger.Warn("Venue pair lookup failed",
				zap.String("venue", venue.Name()),
				zap.String("pair", inputToken+"/"+outputToken),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		impact := decimal.Zero
		if pair.LiquidityDepth.IsPositive() {
			impact = inputAmount.Div(pair.LiquidityDepth)
			if impact.GreaterThan(one) {
				impact = one
			}
		}

		estimated := inputAmount.
			Mul(pair.SpotRate).
			Mul(one.Sub(r.perHopFee)).
			Mul(one.Sub(impact))

		if best == nil || estimated.GreaterThan(best.estimated) {
			best = &hop{
				inputToken:  inputToken,
				outputToken: outputToken,
				venue:       venue,
				estimated:   estimated,
				impact:      impact,
			}
		}
	}

	if best == nil {
		return nil, false, nil
	}
	return best, true, nil
}

// findRoute builds the hop sequence for a swap: direct when a pool exists,
// otherwise one intermediate hop through the first viable bridge token
func (r *Router) findRoute(ctx context.Context, inputToken, outputToken string, inputAmount decimal.Decimal) ([]*hop, error) {
	direct, ok, err := r.quoteHop(ctx, inputToken, outputToken, inputAmount)
	if err != nil {
		return nil, err
	}
	if ok {
		return []*hop{direct}, nil
	}

	for _, mid := range r.bridgeTokens {
		if mid == inputToken || mid == outputToken {
			continue
		}

		first, ok, err := r.quoteHop(ctx, inputToken, mid, inputAmount)
		if err != nil || !ok {
			continue
		}
		second, ok, err := r.quoteHop(ctx, mid, outputToken, first.estimated)
		if err != nil || !ok {
			continue
		}

		return []*hop{first, second}, nil
	}

	return nil, fmt.Errorf("no route found from %s to %s", inputToken, outputToken)
}

// GetSwapQuote quotes a conversion at the given slippage tolerance (a
// fraction, e.g. 0.005). A zero tolerance selects the router default.
func (r *Router) GetSwapQuote(
	ctx context.Context,
	inputToken, outputToken string,
	inputAmount decimal.Decimal,
	slippageTolerance decimal.Decimal,
) (*models.SwapQuote, error) {
	if !inputAmount.IsPositive() {
		return nil, fmt.Errorf("swap input amount must be positive, got %s", inputAmount)
	}
	if slippageTolerance.IsZero() {
		slippageTolerance = r.slippage
	}

	route, err := r.findRoute(ctx, inputToken, outputToken, inputAmount)
	if err != nil {
		return nil, err
	}

	tokens := []string{inputToken}
	venues := make([]string, 0, len(route))
	estimated := inputAmount
	totalImpact := decimal.Zero
	for _, h := range route {
		tokens = append(tokens, h.outputToken)
		venues = append(venues, h.venue.Name())
		estimated = h.estimated
		// Compound impact across hops
		totalImpact = one.Sub(one.Sub(totalImpact).Mul(one.Sub(h.impact)))
	}

	quote := &models.SwapQuote{
		InputToken:      inputToken,
		OutputToken:     outputToken,
		InputAmount:     inputAmount,
		EstimatedOutput: estimated,
		MinimumOutput:   estimated.Mul(one.Sub(slippageTolerance)),
		PriceImpact:     totalImpact,
		Route:           tokens,
		Venues:          venues,
		Slippage:        slippageTolerance,
	}

	r.logger.Debug("Swap quote computed",
		zap.String("route", strings.Join(tokens, "->")),
		zap.Strings("venues", venues),
		zap.String("estimated_output", estimated.String()),
		zap.String("minimum_output", quote.MinimumOutput.String()))

	return quote, nil
}

// ExecuteSwap converts inputAmount of inputToken into outputToken. The route
// is re-quoted at execution time; if the fresh minimum falls below the
// caller's floor the swap aborts before any transaction is submitted.
func (r *Router) ExecuteSwap(
	ctx context.Context,
	inputToken, outputToken string,
	inputAmount decimal.Decimal,
	minOutputAmount decimal.Decimal,
	slippageTolerance decimal.Decimal,
) models.SwapResult {
	result := models.SwapResult{
		InputToken:  inputToken,
		OutputToken: outputToken,
		InputAmount: inputAmount,
	}

	quote, err := r.GetSwapQuote(ctx, inputToken, outputToken, inputAmount, slippageTolerance)
	if err != nil {
		return failResult(result, err)
	}

	if quote.MinimumOutput.LessThan(minOutputAmount) {
		return failResult(result, fmt.Errorf(
			"slippage tolerance exceeded: minimum output %s below required %s",
			quote.MinimumOutput, minOutputAmount))
	}

	floor := minOutputAmount
	if quote.MinimumOutput.GreaterThan(floor) {
		floor = quote.MinimumOutput
	}

	route, err := r.findRoute(ctx, inputToken, outputToken, inputAmount)
	if err != nil {
		return failResult(result, err)
	}

	amount := inputAmount
	var lastTxHash string
	for i, h := range route {
		// The final hop carries the caller's floor; intermediate hops
		// protect themselves with the tolerance alone
		hopMin := h.estimated.Mul(one.Sub(quote.Slippage))
		if i == len(route)-1 {
			hopMin = floor
		}

		txHash, output, err := h.venue.ExecuteSwap(ctx, h.inputToken, h.outputToken, amount, hopMin)
		if err != nil {
			return failResult(result, fmt.Errorf("swap %s->%s on %s failed: %w",
				h.inputToken, h.outputToken, h.venue.Name(), err))
		}
		lastTxHash = txHash
		amount = output
	}

	if amount.LessThan(minOutputAmount) {
		return failResult(result, fmt.Errorf(
			"slippage tolerance exceeded: realized output %s below required %s",
			amount, minOutputAmount))
	}

	result.Success = true
	result.TxHash = &lastTxHash
	result.OutputAmount = amount

	r.logger.Info("Swap executed",
		zap.String("input_token", inputToken),
		zap.String("output_token", outputToken),
		zap.String("input_amount", inputAmount.String()),
		zap.String("output_amount", amount.String()),
		zap.String("tx_hash", lastTxHash))

	return result
}

// AutoSwapForTarget splits a bridged amount across the two required output
// tokens proportionally to their USD value and executes both swaps. Rounding
// remainder is folded into the first leg's input so the bridged amount is
// consumed in full. If either leg fails the call fails; both results are
// returned so the caller can reconcile the leg that did succeed.
func (r *Router) AutoSwapForTarget(
	ctx context.Context,
	bridgedToken string,
	bridgedAmount decimal.Decimal,
	requiredTokenA decimal.Decimal, // STOR units
	requiredTokenB decimal.Decimal, // STASH units
) (models.SwapResult, models.SwapResult, error) {
	var resultA, resultB models.SwapResult

	if !bridgedAmount.IsPositive() {
		return resultA, resultB, fmt.Errorf("bridged amount must be positive, got %s", bridgedAmount)
	}

	snapshot, err := r.prices.GetPrices(ctx, "STOR", "STASH")
	if err != nil {
		return resultA, resultB, fmt.Errorf("failed to fetch prices for swap split: %w", err)
	}

	usdA := requiredTokenA.Mul(snapshot["STOR"].PriceUSD)
	usdB := requiredTokenB.Mul(snapshot["STASH"].PriceUSD)
	totalUSD := usdA.Add(usdB)
	if !totalUSD.IsPositive() {
		return resultA, resultB, fmt.Errorf("required output value must be positive")
	}

	amountB := bridgedAmount.Mul(usdB).Div(totalUSD).RoundDown(6)
	amountA := bridgedAmount.Sub(amountB)

	if amountA.IsPositive() {
		resultA = r.ExecuteSwap(ctx, bridgedToken, "STOR", amountA, decimal.Zero, decimal.Zero)
	} else {
		resultA = models.SwapResult{Success: true, InputToken: bridgedToken, OutputToken: "STOR"}
	}

	if amountB.IsPositive() {
		resultB = r.ExecuteSwap(ctx, bridgedToken, "STASH", amountB, decimal.Zero, decimal.Zero)
	} else {
		resultB = models.SwapResult{Success: true, InputToken: bridgedToken, OutputToken: "STASH"}
	}

	if !resultA.Success {
		return resultA, resultB, fmt.Errorf("swap to STOR failed: %s", errString(resultA.Error))
	}
	if !resultB.Success {
		return resultA, resultB, fmt.Errorf("swap to STASH failed: %s", errString(resultB.Error))
	}

	return resultA, resultB, nil
}

func failResult(result models.SwapResult, err error) models.SwapResult {
	msg := err.Error()
	result.Error = &msg
	return result
}

func errString(s *string) string {
	if s == nil {
		return "unknown error"
	}
	return *s
}
