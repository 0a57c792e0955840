package prices

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/config"
)

func newMarketTestServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *MarketSource) {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := &config.PricesConfig{
		MarketAPIEndpoint: server.URL,
		MarketAPIIDs: map[string]string{
			"STOR": "stor-token",
			"USDC": "usd-coin",
		},
	}
	return server, NewMarketSource(cfg, zap.NewNop())
}

func TestMarketSourceFetchPrice(t *testing.T) {
	_, source := newMarketTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/simple/price" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("ids"); got != "stor-token" {
			t.Errorf("unexpected ids param %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"stor-token": {"usd": 2.37}}`))
	})

	price, err := source.FetchPrice(context.Background(), "STOR")
	if err != nil {
		t.Fatalf("FetchPrice failed: %v", err)
	}
	if !price.Equal(decimal.NewFromFloat(2.37)) {
		t.Errorf("expected 2.37, got %s", price)
	}
}

func TestMarketSourceUnknownSymbol(t *testing.T) {
	_, source := newMarketTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("server should not be called for unmapped symbol")
	})

	if _, err := source.FetchPrice(context.Background(), "DOGE"); err == nil {
		t.Fatal("expected error for unmapped symbol")
	}
}

func TestMarketSourceUpstreamError(t *testing.T) {
	_, source := newMarketTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	if _, err := source.FetchPrice(context.Background(), "USDC"); err == nil {
		t.Fatal("expected error on upstream failure")
	}
}

func TestMarketSourceRejectsNonPositivePrice(t *testing.T) {
	_, source := newMarketTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"usd-coin": {"usd": 0}}`))
	})

	if _, err := source.FetchPrice(context.Background(), "USDC"); err == nil {
		t.Fatal("expected error for zero price")
	}
}
