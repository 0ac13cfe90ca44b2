package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/portfolio-reconciler/internal/types"
)

// TokenMetadata represents resolved metadata for an on-chain token, keyed by
// (chain, contract address). Records are created on first discovery and never
// deleted; the verification flag is only ever upgraded.
type TokenMetadata struct {
	ID              uuid.UUID        `json:"id"`
	Chain           types.ChainID    `json:"chain"`
	ContractAddress string           `json:"contractAddress"`
	Symbol          string           `json:"symbol"`
	Name            string           `json:"name"`
	Decimals        int              `json:"decimals"`
	Class           types.TokenClass `json:"class"`
	PriceID         string           `json:"priceId,omitempty"` // canonical pricing identifier, empty when unverified
	Verified        bool             `json:"verified"`
	DiscoveredAt    time.Time        `json:"discoveredAt"`
}

// Documented defaults substituted when an individual metadata lookup fails.
const (
	DefaultTokenSymbol   = "UNKNOWN"
	DefaultTokenName     = "Unknown Token"
	DefaultTokenDecimals = 18
)

// DiscoveredToken represents a contract address seen in a wallet's transfer
// history that is not yet present in the token registry
type DiscoveredToken struct {
	Chain           types.ChainID `json:"chain"`
	ContractAddress string        `json:"contractAddress"`
	FirstSeen       time.Time     `json:"firstSeen"`
	LastSeen        time.Time     `json:"lastSeen"`
	TransferCount   int           `json:"transferCount"`
}

// TokenResolution carries resolved metadata together with per-field-group
// resolution status, so callers and tests can distinguish a clean lookup from
// a degraded one.
type TokenResolution struct {
	Metadata       *TokenMetadata         `json:"metadata"`
	OnChainStatus  types.ResolutionStatus `json:"onChainStatus"`  // symbol/name/decimals reads
	PriceIDStatus  types.ResolutionStatus `json:"priceIdStatus"`  // external symbol-to-identifier lookup
	DefaultedField string                 `json:"defaultedField,omitempty"`
}

// WalletBalance represents a non-zero on-chain balance resolved for one
// (wallet, chain, token) triple
type WalletBalance struct {
	Wallet          string        `json:"wallet"`
	Chain           types.ChainID `json:"chain"`
	ContractAddress string        `json:"contractAddress,omitempty"` // empty for the native asset
	Symbol          string        `json:"symbol"`
	Name            string        `json:"name"`
	Quantity        float64       `json:"quantity"` // raw balance scaled by token decimals
	UnitPrice       float64       `json:"unitPrice"`
	Value           float64       `json:"value"` // fiat value, zero when the price is unknown
}

// CachedPrice represents one price cache entry
type CachedPrice struct {
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}
