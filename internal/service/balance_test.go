package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

type mockBalanceReader struct {
	native    float64
	nativeErr error
	balances  map[string]float64
	tokenErr  error
}

func (m *mockBalanceReader) NativeBalance(ctx context.Context, wallet string) (float64, error) {
	return m.native, m.nativeErr
}

func (m *mockBalanceReader) TokenBalance(ctx context.Context, wallet, contract string, decimals int) (float64, error) {
	if m.tokenErr != nil {
		return 0, m.tokenErr
	}
	return m.balances[contract], nil
}

type mockPriceStore struct {
	prices map[string]float64
	sets   map[string]float64
}

func newMockPriceStore() *mockPriceStore {
	return &mockPriceStore{prices: make(map[string]float64), sets: make(map[string]float64)}
}

func (m *mockPriceStore) Get(ctx context.Context, priceID string) (*models.CachedPrice, bool, error) {
	price, ok := m.prices[priceID]
	if !ok {
		return nil, false, nil
	}
	return &models.CachedPrice{Price: price, Timestamp: time.Now().UTC(), Source: "test"}, true, nil
}

func (m *mockPriceStore) Set(ctx context.Context, priceID string, price float64, source string) error {
	m.prices[priceID] = price
	m.sets[priceID] = price
	return nil
}

type mockPriceFetcher struct {
	prices  map[string]float64
	err     error
	fetches int
}

func (m *mockPriceFetcher) FetchPrice(ctx context.Context, priceID string) (float64, error) {
	m.fetches++
	if m.err != nil {
		return 0, m.err
	}
	price, ok := m.prices[priceID]
	if !ok {
		return 0, fmt.Errorf("price identifier %s not found", priceID)
	}
	return price, nil
}

func linkToken() *models.TokenMetadata {
	return &models.TokenMetadata{
		Chain:           types.ChainEthereum,
		ContractAddress: "0xdef",
		Symbol:          "LINK",
		Name:            "Chainlink Token",
		Decimals:        18,
		PriceID:         "chainlink",
		Verified:        true,
	}
}

func newTestBalanceService(reader *mockBalanceReader, cache *mockPriceStore, fetcher *mockPriceFetcher) *BalanceService {
	return NewBalanceService(map[types.ChainID]BalanceReader{types.ChainEthereum: reader}, cache, fetcher)
}

func TestBalance_ZeroBalanceReturnsNothing(t *testing.T) {
	s := newTestBalanceService(&mockBalanceReader{balances: map[string]float64{}}, newMockPriceStore(), &mockPriceFetcher{})

	balance, err := s.ResolveTokenBalance(context.Background(), "0xwallet", linkToken())
	if err != nil {
		t.Fatalf("ResolveTokenBalance() error = %v", err)
	}
	if balance != nil {
		t.Errorf("got %+v, want nil for a zero balance", balance)
	}
}

func TestBalance_CacheHitSkipsFetch(t *testing.T) {
	cache := newMockPriceStore()
	cache.prices["chainlink"] = 14.5
	fetcher := &mockPriceFetcher{}
	reader := &mockBalanceReader{balances: map[string]float64{"0xdef": 100}}

	s := newTestBalanceService(reader, cache, fetcher)

	balance, err := s.ResolveTokenBalance(context.Background(), "0xwallet", linkToken())
	if err != nil {
		t.Fatalf("ResolveTokenBalance() error = %v", err)
	}
	if balance.Value != 1450 {
		t.Errorf("Value = %v, want 1450", balance.Value)
	}
	if fetcher.fetches != 0 {
		t.Errorf("fetches = %d, want 0 on a cache hit", fetcher.fetches)
	}
}

func TestBalance_CacheMissFetchesAndPopulates(t *testing.T) {
	cache := newMockPriceStore()
	fetcher := &mockPriceFetcher{prices: map[string]float64{"chainlink": 14.5}}
	reader := &mockBalanceReader{balances: map[string]float64{"0xdef": 10}}

	s := newTestBalanceService(reader, cache, fetcher)

	balance, err := s.ResolveTokenBalance(context.Background(), "0xwallet", linkToken())
	if err != nil {
		t.Fatalf("ResolveTokenBalance() error = %v", err)
	}
	if balance.UnitPrice != 14.5 || balance.Value != 145 {
		t.Errorf("got price %v value %v, want 14.5/145", balance.UnitPrice, balance.Value)
	}
	if fetcher.fetches != 1 {
		t.Errorf("fetches = %d, want 1", fetcher.fetches)
	}
	if cache.sets["chainlink"] != 14.5 {
		t.Error("fetched price must populate the cache")
	}
}

func TestBalance_FailedFetchValuesAtZero(t *testing.T) {
	reader := &mockBalanceReader{balances: map[string]float64{"0xdef": 10}}
	fetcher := &mockPriceFetcher{err: fmt.Errorf("pricing API returned status 503")}

	s := newTestBalanceService(reader, newMockPriceStore(), fetcher)

	balance, err := s.ResolveTokenBalance(context.Background(), "0xwallet", linkToken())
	if err != nil {
		t.Fatalf("a pricing failure must not propagate, got error %v", err)
	}
	if balance == nil {
		t.Fatal("non-zero balance must still be returned")
	}
	if balance.Quantity != 10 || balance.Value != 0 {
		t.Errorf("got qty %v value %v, want 10/0", balance.Quantity, balance.Value)
	}
}

func TestBalance_UnverifiedTokenValuesAtZero(t *testing.T) {
	token := linkToken()
	token.PriceID = ""
	token.Verified = false
	reader := &mockBalanceReader{balances: map[string]float64{"0xdef": 10}}
	fetcher := &mockPriceFetcher{prices: map[string]float64{"chainlink": 14.5}}

	s := newTestBalanceService(reader, newMockPriceStore(), fetcher)

	balance, err := s.ResolveTokenBalance(context.Background(), "0xwallet", token)
	if err != nil {
		t.Fatalf("ResolveTokenBalance() error = %v", err)
	}
	if balance.Value != 0 {
		t.Errorf("Value = %v, want 0 for a token with no pricing identifier", balance.Value)
	}
	if fetcher.fetches != 0 {
		t.Errorf("fetches = %d, want 0 when no identifier exists", fetcher.fetches)
	}
}

func TestBalance_NativeBalance(t *testing.T) {
	cache := newMockPriceStore()
	cache.prices["ethereum"] = 3000
	reader := &mockBalanceReader{native: 2}

	s := newTestBalanceService(reader, cache, &mockPriceFetcher{})

	balance, err := s.ResolveNativeBalance(context.Background(), "0xwallet", types.ChainEthereum)
	if err != nil {
		t.Fatalf("ResolveNativeBalance() error = %v", err)
	}
	if balance.Symbol != "ETH" {
		t.Errorf("Symbol = %q, want ETH", balance.Symbol)
	}
	if balance.Value != 6000 {
		t.Errorf("Value = %v, want 6000", balance.Value)
	}
}

func TestBalance_NativeZeroReturnsNothing(t *testing.T) {
	s := newTestBalanceService(&mockBalanceReader{native: 0}, newMockPriceStore(), &mockPriceFetcher{})

	balance, err := s.ResolveNativeBalance(context.Background(), "0xwallet", types.ChainEthereum)
	if err != nil {
		t.Fatalf("ResolveNativeBalance() error = %v", err)
	}
	if balance != nil {
		t.Errorf("got %+v, want nil for a zero native balance", balance)
	}
}

func TestBalance_UnknownChain(t *testing.T) {
	s := newTestBalanceService(&mockBalanceReader{}, newMockPriceStore(), &mockPriceFetcher{})

	token := linkToken()
	token.Chain = types.ChainPolygon

	if _, err := s.ResolveTokenBalance(context.Background(), "0xwallet", token); err == nil {
		t.Error("expected error for a chain with no adapter")
	}
}
