package prices

import (
	"context"

	"github.com/shopspring/decimal"
)

// Source fetches a USD spot price for a token symbol from one provider.
// Implementations are tried in configured preference order by the Aggregator.
type Source interface {
	Name() string
	FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
