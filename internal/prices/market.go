package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/config"
)

// MarketSource fetches prices from a market-data aggregator REST API that
// exposes a simple-price endpoint keyed by provider token ids.
type MarketSource struct {
	endpoint   string
	ids        map[string]string // symbol -> provider token id
	httpClient *http.Client
	logger     *zap.Logger
}

// NewMarketSource creates a MarketSource from the prices configuration
func NewMarketSource(cfg *config.PricesConfig, logger *zap.Logger) *MarketSource {
	return &MarketSource{
		endpoint:   cfg.MarketAPIEndpoint,
		ids:        cfg.MarketAPIIDs,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Name returns the source name
func (s *MarketSource) Name() string {
	return "market_api"
}

// FetchPrice fetches the USD price for a symbol
func (s *MarketSource) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	id, ok := s.ids[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no market API id configured for symbol %s", symbol)
	}

	url := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=usd", s.endpoint, id)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query market API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("market API returned status %d: %s", resp.StatusCode, string(body))
	}

	// Response shape: {"<id>": {"usd": 1.2345}}
	var result map[string]map[string]json.Number
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode market API response: %w", err)
	}

	entry, ok := result[id]
	if !ok {
		return decimal.Zero, fmt.Errorf("market API response missing id %s", id)
	}
	raw, ok := entry["usd"]
	if !ok {
		return decimal.Zero, fmt.Errorf("market API response missing usd price for %s", id)
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid price %q for %s: %w", raw.String(), symbol, err)
	}
	if price.IsNegative() || price.IsZero() {
		return decimal.Zero, fmt.Errorf("non-positive price %s for %s", price.String(), symbol)
	}

	return price, nil
}
