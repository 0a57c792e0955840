package prices

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"storflow/internal/config"
	"storflow/internal/models"
)

// Aggregator serves USD token prices with a short-lived cache in front of a
// fixed fallback chain of sources. The first source that answers wins; a
// lower-priority source is only consulted when every source before it fails.
type Aggregator struct {
	sources []Source
	ttl     time.Duration
	logger  *zap.Logger

	mu    sync.RWMutex
	cache map[string]models.TokenPrice
}

// NewAggregator creates an Aggregator over the given sources, in priority order
func NewAggregator(cfg *config.PricesConfig, sources []Source, logger *zap.Logger) *Aggregator {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 60 * time.Second
	}

	return &Aggregator{
		sources: sources,
		ttl:     ttl,
		logger:  logger,
		cache:   make(map[string]models.TokenPrice),
	}
}

// GetPrice returns the USD price for a symbol, from cache when fresh
func (a *Aggregator) GetPrice(ctx context.Context, symbol string) (models.TokenPrice, error) {
	a.mu.RLock()
	cached, ok := a.cache[symbol]
	a.mu.RUnlock()

	if ok && time.Since(cached.ObservedAt) < a.ttl {
		return cached, nil
	}

	for _, source := range a.sources {
		price, err := source.FetchPrice(ctx, symbol)
		if err != nil {
			a.logger.Warn("Price source failed",
				zap.String("source", source.Name()),
				zap.String("symbol", symbol),
				zap.Error(err))
			continue
		}

		result := models.TokenPrice{
			Symbol:     symbol,
			PriceUSD:   price,
			ObservedAt: time.Now(),
			SourceName: source.Name(),
		}

		a.mu.Lock()
		a.cache[symbol] = result
		a.mu.Unlock()

		a.logger.Debug("Price fetched",
			zap.String("symbol", symbol),
			zap.String("price_usd", price.String()),
			zap.String("source", source.Name()))

		return result, nil
	}

	return models.TokenPrice{}, fmt.Errorf("failed to fetch price for %s: all sources unavailable", symbol)
}

// GetPrices fetches prices for several symbols as one consistent snapshot.
// It fails on the first symbol no source can price.
func (a *Aggregator) GetPrices(ctx context.Context, symbols ...string) (map[string]models.TokenPrice, error) {
	snapshot := make(map[string]models.TokenPrice, len(symbols))
	for _, symbol := range symbols {
		price, err := a.GetPrice(ctx, symbol)
		if err != nil {
			return nil, err
		}
		snapshot[symbol] = price
	}
	return snapshot, nil
}

// Invalidate drops the cached price for a symbol
func (a *Aggregator) Invalidate(symbol string) {
	a.mu.Lock()
	delete(a.cache, symbol)
	a.mu.Unlock()
}
