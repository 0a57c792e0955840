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

// OracleSource fetches prices from a decentralized price-feed network's
// HTTP gateway. It is the second tier of the fallback chain.
type OracleSource struct {
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewOracleSource creates an OracleSource from the prices configuration
func NewOracleSource(cfg *config.PricesConfig, logger *zap.Logger) *OracleSource {
	return &OracleSource{
		endpoint:   cfg.OracleEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Name returns the source name
func (s *OracleSource) Name() string {
	return "oracle"
}

type oraclePriceResponse struct {
	Symbol    string `json:"symbol"`
	Price     string `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

// FetchPrice fetches the USD price for a symbol
func (s *OracleSource) FetchPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if s.endpoint == "" {
		return decimal.Zero, fmt.Errorf("oracle endpoint not configured")
	}

	url := fmt.Sprintf("%s/v1/prices/%s", s.endpoint, symbol)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query oracle: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return decimal.Zero, fmt.Errorf("oracle returned status %d: %s", resp.StatusCode, string(body))
	}

	var result oraclePriceResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode oracle response: %w", err)
	}

	price, err := decimal.NewFromString(result.Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid oracle price %q for %s: %w", result.Price, symbol, err)
	}
	if price.IsNegative() || price.IsZero() {
		return decimal.Zero, fmt.Errorf("non-positive oracle price %s for %s", price.String(), symbol)
	}

	return price, nil
}
