package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/portfolio-reconciler/internal/logging"
	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

// TokenRegistry is the durable (chain, contract address) metadata store
type TokenRegistry interface {
	GetToken(ctx context.Context, chain types.ChainID, contractAddress string) (*models.TokenMetadata, error)
	UpsertToken(ctx context.Context, token *models.TokenMetadata) error
}

// TransferSource supplies recent transfer history for a wallet
type TransferSource interface {
	FetchTokenTransfers(ctx context.Context, wallet string, chain types.ChainID, limit int) ([]types.TransferEvent, error)
}

// MetadataReader reads token metadata on chain
type MetadataReader interface {
	TokenSymbol(ctx context.Context, contract string) (string, error)
	TokenName(ctx context.Context, contract string) (string, error)
	TokenDecimals(ctx context.Context, contract string) (int, error)
}

// PriceIDResolver maps a token symbol to a canonical pricing identifier
type PriceIDResolver interface {
	LookupPriceID(ctx context.Context, symbol string) (string, error)
}

// DiscoveryService finds contract addresses in a wallet's recent transfer
// history that are not yet registered, resolves their metadata, and persists
// the result. Every resolution is persisted, even an unverified one, so
// repeated runs do not re-query the same failing contract each cycle.
type DiscoveryService struct {
	registry  TokenRegistry
	transfers TransferSource
	readers   map[types.ChainID]MetadataReader
	pricing   PriceIDResolver
	scanDepth int
	logger    *logging.Logger
}

// NewDiscoveryService creates a new token discovery service
func NewDiscoveryService(
	registry TokenRegistry,
	transfers TransferSource,
	readers map[types.ChainID]MetadataReader,
	pricing PriceIDResolver,
	scanDepth int,
) *DiscoveryService {
	if scanDepth <= 0 {
		scanDepth = 100
	}

	return &DiscoveryService{
		registry:  registry,
		transfers: transfers,
		readers:   readers,
		pricing:   pricing,
		scanDepth: scanDepth,
		logger:    logging.GetGlobalLogger().WithField("service", "discovery"),
	}
}

// DiscoverTokens returns the unregistered contract addresses observed in the
// wallet's most recent transfer events, bounded by the scan depth. Addresses
// already in the registry are excluded: this is a delta, not an inventory.
func (s *DiscoveryService) DiscoverTokens(ctx context.Context, wallet string, chain types.ChainID) ([]*models.DiscoveredToken, error) {
	events, err := s.transfers.FetchTokenTransfers(ctx, wallet, chain, s.scanDepth)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transfer history for %s on %s: %w", wallet, chain, err)
	}

	byAddress := make(map[string]*models.DiscoveredToken)
	for _, event := range events {
		address := strings.ToLower(event.ContractAddress)
		if address == "" {
			continue
		}

		seen := time.Unix(event.Timestamp, 0).UTC()
		if existing, ok := byAddress[address]; ok {
			existing.TransferCount++
			if seen.After(existing.LastSeen) {
				existing.LastSeen = seen
			}
			if seen.Before(existing.FirstSeen) {
				existing.FirstSeen = seen
			}
			continue
		}

		byAddress[address] = &models.DiscoveredToken{
			Chain:           chain,
			ContractAddress: address,
			FirstSeen:       seen,
			LastSeen:        seen,
			TransferCount:   1,
		}
	}

	var discovered []*models.DiscoveredToken
	for address, token := range byAddress {
		registered, err := s.registry.GetToken(ctx, chain, address)
		if err != nil {
			// A registry read failure must not abort the scan; the upsert
			// later in the cycle is idempotent either way
			s.logger.WithError(err).WithField("address", address).Warn("Registry lookup failed, treating token as unregistered")
		}
		if registered != nil {
			continue
		}
		discovered = append(discovered, token)
	}

	sort.Slice(discovered, func(i, j int) bool {
		return discovered[i].ContractAddress < discovered[j].ContractAddress
	})

	return discovered, nil
}

// ResolveToken resolves metadata for one unregistered contract and persists
// it. Each on-chain read may fail independently; failures substitute the
// documented defaults instead of aborting the others. The result is tagged so
// callers can tell a clean lookup from a degraded one.
func (s *DiscoveryService) ResolveToken(ctx context.Context, chain types.ChainID, contractAddress string) (*models.TokenResolution, error) {
	metadata := &models.TokenMetadata{
		Chain:           chain,
		ContractAddress: strings.ToLower(contractAddress),
		Symbol:          models.DefaultTokenSymbol,
		Name:            models.DefaultTokenName,
		Decimals:        models.DefaultTokenDecimals,
		DiscoveredAt:    time.Now().UTC(),
	}

	resolution := &models.TokenResolution{
		Metadata:      metadata,
		OnChainStatus: types.ResolutionResolved,
		PriceIDStatus: types.ResolutionFailed,
	}

	reader, ok := s.readers[chain]
	if !ok {
		resolution.OnChainStatus = types.ResolutionFailed
		resolution.DefaultedField = "symbol,name,decimals"
	} else {
		s.readOnChain(ctx, reader, contractAddress, resolution)
	}

	// The external lookup only makes sense with a real symbol
	if metadata.Symbol != models.DefaultTokenSymbol && s.pricing != nil {
		priceID, err := s.pricing.LookupPriceID(ctx, metadata.Symbol)
		if err != nil {
			s.logger.WithError(err).WithField("symbol", metadata.Symbol).Debug("Pricing identifier lookup failed, token stays unverified")
		} else if priceID != "" {
			metadata.PriceID = priceID
			metadata.Verified = true
			resolution.PriceIDStatus = types.ResolutionResolved
		}
	}

	metadata.Class = classifyToken(metadata.Symbol, metadata.Name)

	// Persist unconditionally: unverified tokens are cached too, so the next
	// cycle does not re-query the same failing contract
	if err := s.registry.UpsertToken(ctx, metadata); err != nil {
		return resolution, fmt.Errorf("failed to persist token %s on %s: %w", contractAddress, chain, err)
	}

	return resolution, nil
}

// readOnChain fetches symbol, name, and decimals, substituting a default for
// each individual failure
func (s *DiscoveryService) readOnChain(ctx context.Context, reader MetadataReader, contractAddress string, resolution *models.TokenResolution) {
	metadata := resolution.Metadata
	var defaulted []string

	if symbol, err := reader.TokenSymbol(ctx, contractAddress); err == nil && symbol != "" {
		metadata.Symbol = symbol
	} else {
		defaulted = append(defaulted, "symbol")
	}

	if name, err := reader.TokenName(ctx, contractAddress); err == nil && name != "" {
		metadata.Name = name
	} else {
		defaulted = append(defaulted, "name")
	}

	if decimals, err := reader.TokenDecimals(ctx, contractAddress); err == nil {
		metadata.Decimals = decimals
	} else {
		defaulted = append(defaulted, "decimals")
	}

	if len(defaulted) > 0 {
		resolution.OnChainStatus = types.ResolutionDefaulted
		resolution.DefaultedField = strings.Join(defaulted, ",")
		s.logger.WithFields(map[string]interface{}{
			"contract":  contractAddress,
			"defaulted": resolution.DefaultedField,
		}).Warn("Token metadata partially resolved")
	}
}

// classifyToken applies the heuristic token classification in fixed priority
// order. Utility is the default when nothing matches.
func classifyToken(symbol, name string) types.TokenClass {
	s := strings.ToUpper(symbol)
	n := strings.ToLower(name)

	switch {
	case containsAny(s, "USD", "DAI", "EUR") || strings.Contains(n, "stable"):
		return types.TokenStablecoin
	case containsAny(s, "WETH", "WBTC", "WBNB", "WMATIC") || strings.Contains(n, "wrapped"):
		return types.TokenWrapped
	case containsAny(s, "-LP", "UNI-V2", "SLP", "CAKE-LP") || strings.Contains(n, "liquidity") || strings.Contains(n, " lp"):
		return types.TokenLiquidityPool
	case containsAny(s, "STETH", "STMATIC") || strings.Contains(n, "staked") || strings.Contains(n, "staking"):
		return types.TokenStaking
	case strings.Contains(n, "governance") || strings.Contains(n, "vote") || strings.HasSuffix(s, "GOV"):
		return types.TokenGovernance
	default:
		return types.TokenUtility
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
