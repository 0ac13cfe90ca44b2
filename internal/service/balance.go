package service

import (
	"context"
	"fmt"

	"github.com/portfolio-reconciler/internal/logging"
	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

// BalanceReader reads balances on chain
type BalanceReader interface {
	NativeBalance(ctx context.Context, wallet string) (float64, error)
	TokenBalance(ctx context.Context, wallet, contract string, decimals int) (float64, error)
}

// PriceStore is the shared price cache consulted before any external fetch
type PriceStore interface {
	Get(ctx context.Context, priceID string) (*models.CachedPrice, bool, error)
	Set(ctx context.Context, priceID string, price float64, source string) error
}

// PriceFetcher fetches a fresh fiat price from the external pricing source
type PriceFetcher interface {
	FetchPrice(ctx context.Context, priceID string) (float64, error)
}

// pricingSource tags cache entries written by this service
const pricingSource = "pricing-api"

// nativePriceIDs maps each chain's native asset to its pricing identifier
var nativePriceIDs = map[types.ChainID]string{
	types.ChainEthereum: "ethereum",
	types.ChainPolygon:  "matic-network",
	types.ChainArbitrum: "ethereum",
	types.ChainOptimism: "ethereum",
	types.ChainBase:     "ethereum",
	types.ChainBNB:      "binancecoin",
}

// BalanceService resolves current balances and fiat values for (wallet,
// chain, token) triples. Zero balances resolve to nothing; a failed price
// fetch yields a zero value, never an error, so one pricing failure cannot
// abort the rest of a wallet scan.
type BalanceService struct {
	readers map[types.ChainID]BalanceReader
	cache   PriceStore
	pricing PriceFetcher
	logger  *logging.Logger
}

// NewBalanceService creates a new balance resolver
func NewBalanceService(readers map[types.ChainID]BalanceReader, cache PriceStore, pricing PriceFetcher) *BalanceService {
	return &BalanceService{
		readers: readers,
		cache:   cache,
		pricing: pricing,
		logger:  logging.GetGlobalLogger().WithField("service", "balance"),
	}
}

// ResolveTokenBalance returns the wallet's balance of one registered token,
// or nil when the balance is zero. The minimum-value floor is the caller's
// concern, so the output stays reusable for diagnostics.
func (s *BalanceService) ResolveTokenBalance(ctx context.Context, wallet string, token *models.TokenMetadata) (*models.WalletBalance, error) {
	reader, ok := s.readers[token.Chain]
	if !ok {
		return nil, fmt.Errorf("no adapter configured for chain %s", token.Chain)
	}

	balance, err := reader.TokenBalance(ctx, wallet, token.ContractAddress, token.Decimals)
	if err != nil {
		return nil, fmt.Errorf("failed to read balance of %s for %s: %w", token.Symbol, wallet, err)
	}
	if balance == 0 {
		return nil, nil
	}

	price := s.price(ctx, token.PriceID)

	return &models.WalletBalance{
		Wallet:          wallet,
		Chain:           token.Chain,
		ContractAddress: token.ContractAddress,
		Symbol:          token.Symbol,
		Name:            token.Name,
		Quantity:        balance,
		UnitPrice:       price,
		Value:           balance * price,
	}, nil
}

// ResolveNativeBalance returns the wallet's native currency balance on one
// chain, or nil when it is zero
func (s *BalanceService) ResolveNativeBalance(ctx context.Context, wallet string, chain types.ChainID) (*models.WalletBalance, error) {
	reader, ok := s.readers[chain]
	if !ok {
		return nil, fmt.Errorf("no adapter configured for chain %s", chain)
	}

	balance, err := reader.NativeBalance(ctx, wallet)
	if err != nil {
		return nil, fmt.Errorf("failed to read native balance for %s on %s: %w", wallet, chain, err)
	}
	if balance == 0 {
		return nil, nil
	}

	symbol := types.NativeAsset(chain)
	price := s.price(ctx, nativePriceIDs[chain])

	return &models.WalletBalance{
		Wallet:    wallet,
		Chain:     chain,
		Symbol:    symbol,
		Name:      symbol,
		Quantity:  balance,
		UnitPrice: price,
		Value:     balance * price,
	}, nil
}

// price returns the fiat price for a pricing identifier: cache first, fresh
// fetch on a miss, zero when the identifier is unset or the fetch fails
func (s *BalanceService) price(ctx context.Context, priceID string) float64 {
	if priceID == "" {
		return 0
	}

	cached, ok, err := s.cache.Get(ctx, priceID)
	if err != nil {
		s.logger.WithError(err).WithField("priceId", priceID).Warn("Price cache read failed")
	}
	if ok {
		return cached.Price
	}

	price, err := s.pricing.FetchPrice(ctx, priceID)
	if err != nil {
		s.logger.WithError(err).WithField("priceId", priceID).Warn("Price fetch failed, valuing at zero")
		return 0
	}

	if err := s.cache.Set(ctx, priceID, price, pricingSource); err != nil {
		s.logger.WithError(err).WithField("priceId", priceID).Warn("Price cache write failed")
	}

	return price
}
