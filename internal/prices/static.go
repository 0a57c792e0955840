package prices

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// StaticSource serves a fixed price table. Used in simulation mode so the
// whole pipeline stays deterministic.
type StaticSource struct {
	prices map[string]decimal.Decimal
}

// NewStaticSource creates a source answering from the given table
func NewStaticSource(table map[string]decimal.Decimal) *StaticSource {
	prices := make(map[string]decimal.Decimal, len(table))
	for symbol, price := range table {
		prices[symbol] = price
	}
	return &StaticSource{prices: prices}
}

func (s *StaticSource) Name() string {
	return "static"
}

func (s *StaticSource) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	price, ok := s.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price configured for %s", symbol)
	}
	return price, nil
}
