package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/portfolio-reconciler/internal/errors"
	"github.com/portfolio-reconciler/internal/models"
)

// BankingClient fetches raw account and instrument records from the banking
// aggregation API. Authentication and retry policy are the collaborator's
// responsibility; this client only paginates and bounds each request.
type BankingClient struct {
	baseURL     string
	apiKey      string
	client      *http.Client
	callTimeout time.Duration
	pageSize    int
}

// accountsPage represents one page of the accounts endpoint
type accountsPage struct {
	Accounts []models.RawAccount `json:"accounts"`
	NextPage string              `json:"nextPage,omitempty"`
}

// instrumentsPage represents one page of the instruments endpoint
type instrumentsPage struct {
	Instruments []models.RawInstrument `json:"instruments"`
	NextPage    string                 `json:"nextPage,omitempty"`
}

// NewBankingClient creates a new banking aggregation client
func NewBankingClient(baseURL, apiKey string, callTimeout time.Duration) *BankingClient {
	if callTimeout == 0 {
		callTimeout = 10 * time.Second
	}

	return &BankingClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		client:      &http.Client{Timeout: callTimeout},
		callTimeout: callTimeout,
		pageSize:    100,
	}
}

// FetchAccounts retrieves the full raw account list, following pagination
func (c *BankingClient) FetchAccounts(ctx context.Context) ([]models.RawAccount, error) {
	var accounts []models.RawAccount
	page := ""

	for {
		var parsed accountsPage
		if err := c.fetchPage(ctx, "/accounts", page, &parsed); err != nil {
			return nil, errors.NewSourceUnavailableError("banking", err)
		}

		accounts = append(accounts, parsed.Accounts...)
		if parsed.NextPage == "" {
			return accounts, nil
		}
		page = parsed.NextPage
	}
}

// FetchInstruments retrieves the full raw instrument list, following pagination
func (c *BankingClient) FetchInstruments(ctx context.Context) ([]models.RawInstrument, error) {
	var instruments []models.RawInstrument
	page := ""

	for {
		var parsed instrumentsPage
		if err := c.fetchPage(ctx, "/instruments", page, &parsed); err != nil {
			return nil, errors.NewSourceUnavailableError("banking", err)
		}

		instruments = append(instruments, parsed.Instruments...)
		if parsed.NextPage == "" {
			return instruments, nil
		}
		page = parsed.NextPage
	}
}

// fetchPage performs one bounded request against a paginated endpoint
func (c *BankingClient) fetchPage(ctx context.Context, path, page string, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("banking API URL not configured")
	}

	url := fmt.Sprintf("%s%s?limit=%d", c.baseURL, path, c.pageSize)
	if page != "" {
		url += "&page=" + page
	}

	ctx, cancel := context.WithTimeout(ctx, c.callTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create banking request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("banking request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("banking API returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read banking response: %w", err)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse banking response: %w", err)
	}

	return nil
}
