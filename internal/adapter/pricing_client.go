package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/portfolio-reconciler/internal/circuitbreaker"
	"golang.org/x/time/rate"
)

// PricingClient fetches fiat prices from a CoinGecko-compatible pricing API.
// A missing or erroring response means "price unknown", never a fatal
// condition; the breaker stops hammering the source after repeated failures
// inside one scan.
type PricingClient struct {
	baseURL     string
	currency    string
	client      *http.Client
	limiter     *rate.Limiter
	breaker     *circuitbreaker.CircuitBreaker
	callTimeout time.Duration
}

// NewPricingClient creates a new pricing API client
func NewPricingClient(baseURL, currency string, callTimeout time.Duration) *PricingClient {
	if callTimeout == 0 {
		callTimeout = 10 * time.Second
	}
	if currency == "" {
		currency = "usd"
	}

	return &PricingClient{
		baseURL:     baseURL,
		currency:    currency,
		client:      &http.Client{Timeout: callTimeout},
		limiter:     rate.NewLimiter(rate.Limit(2), 2),
		breaker:     circuitbreaker.NewCircuitBreaker(circuitbreaker.DefaultConfig("pricing")),
		callTimeout: callTimeout,
	}
}

// FetchPrice returns the fiat price for a canonical pricing identifier
func (c *PricingClient) FetchPrice(ctx context.Context, priceID string) (float64, error) {
	if priceID == "" {
		return 0, fmt.Errorf("price identifier is empty")
	}

	var price float64
	err := c.breaker.Execute(ctx, func() error {
		endpoint := fmt.Sprintf("%s/simple/price?ids=%s&vs_currencies=%s",
			c.baseURL, url.QueryEscape(priceID), c.currency)

		body, err := c.get(ctx, endpoint)
		if err != nil {
			return err
		}

		// Parse: {"bitcoin":{"usd":45000}}
		var raw map[string]map[string]float64
		if err := json.Unmarshal(body, &raw); err != nil {
			return fmt.Errorf("failed to parse pricing response: %w", err)
		}

		prices, ok := raw[priceID]
		if !ok {
			return fmt.Errorf("price identifier %s not found", priceID)
		}

		price = prices[c.currency]
		return nil
	})
	if err != nil {
		return 0, err
	}

	return price, nil
}

// searchResponse represents the pricing API's symbol search envelope
type searchResponse struct {
	Coins []struct {
		ID     string `json:"id"`
		Symbol string `json:"symbol"`
	} `json:"coins"`
}

// LookupPriceID resolves a token symbol to its canonical pricing identifier.
// Returns an empty identifier when no exact symbol match exists.
func (c *PricingClient) LookupPriceID(ctx context.Context, symbol string) (string, error) {
	if symbol == "" {
		return "", fmt.Errorf("symbol is empty")
	}

	var priceID string
	err := c.breaker.Execute(ctx, func() error {
		endpoint := fmt.Sprintf("%s/search?query=%s", c.baseURL, url.QueryEscape(symbol))

		body, err := c.get(ctx, endpoint)
		if err != nil {
			return err
		}

		var parsed searchResponse
		if err := json.Unmarshal(body, &parsed); err != nil {
			return fmt.Errorf("failed to parse search response: %w", err)
		}

		for _, coin := range parsed.Coins {
			if strings.EqualFold(coin.Symbol, symbol) {
				priceID = coin.ID
				return nil
			}
		}

		return fmt.Errorf("no pricing identifier for symbol %s", symbol)
	})
	if err != nil {
		return "", err
	}

	return priceID, nil
}

// get performs one rate-limited, bounded GET request
func (c *PricingClient) get(ctx context.Context, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create pricing request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pricing request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pricing API returned status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
