package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/portfolio-reconciler/internal/types"
	"golang.org/x/time/rate"
)

// ExplorerClient fetches recent token transfer history from an
// Etherscan-compatible explorer API. It backs the token discovery scan: only
// the most recent events up to the configured scan depth are requested, to
// cap cost and latency.
type ExplorerClient struct {
	apiKey      string
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter // explorer free tier allows a handful of req/sec
	callTimeout time.Duration
}

// explorerTokenTransfer represents one ERC20 transfer row from the explorer API
type explorerTokenTransfer struct {
	Hash            string `json:"hash"`
	TimeStamp       string `json:"timeStamp"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	ContractAddress string `json:"contractAddress"`
	TokenSymbol     string `json:"tokenSymbol"`
}

// explorerResponse represents the API envelope for token transfer queries
type explorerResponse struct {
	Status  string                  `json:"status"`
	Message string                  `json:"message"`
	Result  []explorerTokenTransfer `json:"result"`
}

// NewExplorerClient creates a new explorer API client
func NewExplorerClient(apiKey string, callTimeout time.Duration) *ExplorerClient {
	if callTimeout == 0 {
		callTimeout = 10 * time.Second
	}

	return &ExplorerClient{
		apiKey:      apiKey,
		baseURL:     "https://api.etherscan.io/v2/api",
		client:      &http.Client{Timeout: callTimeout},
		limiter:     rate.NewLimiter(rate.Limit(3), 3),
		callTimeout: callTimeout,
	}
}

// SetBaseURL overrides the explorer endpoint (used in tests)
func (c *ExplorerClient) SetBaseURL(url string) {
	c.baseURL = url
}

// explorerChainID returns the explorer chain ID for a given chain
func explorerChainID(chain types.ChainID) int {
	switch chain {
	case types.ChainPolygon:
		return 137
	case types.ChainArbitrum:
		return 42161
	case types.ChainOptimism:
		return 10
	case types.ChainBase:
		return 8453
	case types.ChainBNB:
		return 56
	default:
		return 1
	}
}

// FetchTokenTransfers returns the most recent token transfer events involving
// a wallet, newest first, bounded by limit
func (c *ExplorerClient) FetchTokenTransfers(ctx context.Context, wallet string, chain types.ChainID, limit int) ([]types.TransferEvent, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("explorer API key not configured")
	}
	if limit <= 0 {
		limit = 100
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf(
		"%s?chainid=%d&module=account&action=tokentx&address=%s&page=1&offset=%d&sort=desc&apikey=%s",
		c.baseURL, explorerChainID(chain), wallet, limit, c.apiKey,
	)

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create explorer request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("explorer request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read explorer response: %w", err)
	}

	var parsed explorerResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse explorer response: %w", err)
	}

	// Status "0" with "No transactions found" is an empty result, not an error
	if parsed.Status != "1" && parsed.Message != "No transactions found" {
		return nil, fmt.Errorf("explorer error: %s", parsed.Message)
	}

	events := make([]types.TransferEvent, 0, len(parsed.Result))
	for _, tx := range parsed.Result {
		ts, _ := strconv.ParseInt(tx.TimeStamp, 10, 64)
		events = append(events, types.TransferEvent{
			Chain:           chain,
			ContractAddress: tx.ContractAddress,
			From:            tx.From,
			To:              tx.To,
			Value:           tx.Value,
			Symbol:          tx.TokenSymbol,
			Timestamp:       ts,
			TxHash:          tx.Hash,
		})
	}

	return events, nil
}
