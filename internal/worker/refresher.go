package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"storflow/internal/models"
)

// PriceProvider is the slice of the price aggregator the refresher needs
type PriceProvider interface {
	GetPrices(ctx context.Context, symbols ...string) (map[string]models.TokenPrice, error)
}

// Refresher keeps the price cache warm so estimate requests rarely pay the
// upstream fetch latency.
type Refresher struct {
	prices   PriceProvider
	symbols  []string
	interval time.Duration
	logger   *zap.Logger
}

// NewRefresher creates a price cache refresher for the given symbols
func NewRefresher(prices PriceProvider, symbols []string, interval time.Duration, logger *zap.Logger) *Refresher {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	return &Refresher{
		prices:   prices,
		symbols:  symbols,
		interval: interval,
		logger:   logger.Named("refresher"),
	}
}

// Run starts the refresh loop
func (r *Refresher) Run(ctx context.Context) {
	r.logger.Info("Refresher started",
		zap.Strings("symbols", r.symbols),
		zap.Duration("interval", r.interval))

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// Initial refresh
	r.refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Refresher stopping")
			return
		case <-ticker.C:
			r.refresh(ctx)
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, PollTimeout)
	defer cancel()

	if _, err := r.prices.GetPrices(refreshCtx, r.symbols...); err != nil {
		r.logger.Warn("Price refresh failed", zap.Error(err))
	}
}
