// Package types provides common type definitions for the portfolio reconciliation system.
package types

// ChainID represents supported blockchain networks
type ChainID string

const (
	// ChainEthereum represents the Ethereum mainnet
	ChainEthereum ChainID = "ethereum"
	// ChainPolygon represents the Polygon network
	ChainPolygon ChainID = "polygon"
	// ChainArbitrum represents the Arbitrum network
	ChainArbitrum ChainID = "arbitrum"
	// ChainOptimism represents the Optimism network
	ChainOptimism ChainID = "optimism"
	// ChainBase represents the Base network
	ChainBase ChainID = "base"
	// ChainBNB represents the BNB Chain (BSC)
	ChainBNB ChainID = "bnb"
)

// IsValid reports whether the chain is one the reconciler can scan
func (c ChainID) IsValid() bool {
	switch c {
	case ChainEthereum, ChainPolygon, ChainArbitrum, ChainOptimism, ChainBase, ChainBNB:
		return true
	}
	return false
}

// AssetClass represents the asset classification assigned to a position
type AssetClass string

const (
	// ClassEquity is the default classification when no pattern matches
	ClassEquity AssetClass = "equity"
	// ClassBond represents fixed-income instruments
	ClassBond AssetClass = "bond"
	// ClassFund represents mutual funds and ETFs
	ClassFund AssetClass = "fund"
	// ClassRealEstate represents real-estate instruments (REITs, SCPI)
	ClassRealEstate AssetClass = "real_estate"
	// ClassCash represents cash and money-market holdings
	ClassCash AssetClass = "cash"
	// ClassCrypto represents on-chain holdings
	ClassCrypto AssetClass = "crypto"
)

// TokenClass represents the heuristic classification of a discovered token
type TokenClass string

const (
	// TokenStablecoin represents fiat-pegged tokens
	TokenStablecoin TokenClass = "stablecoin"
	// TokenWrapped represents wrapped representations of other assets
	TokenWrapped TokenClass = "wrapped"
	// TokenLiquidityPool represents LP share tokens
	TokenLiquidityPool TokenClass = "liquidity_pool"
	// TokenStaking represents staking receipt tokens
	TokenStaking TokenClass = "staking"
	// TokenGovernance represents protocol governance tokens
	TokenGovernance TokenClass = "governance"
	// TokenUtility is the default classification when no heuristic matches
	TokenUtility TokenClass = "utility"
)

// ChangeType represents the kind of difference detected between two snapshots
type ChangeType string

const (
	// ChangeOpened means the symbol is present in the new snapshot only
	ChangeOpened ChangeType = "opened"
	// ChangeClosed means the symbol is present in the old snapshot only
	ChangeClosed ChangeType = "closed"
	// ChangeValue means the market value of the symbol differs
	ChangeValue ChangeType = "value_change"
	// ChangeQuantity means the held quantity differs, signaling an inferred transaction
	ChangeQuantity ChangeType = "quantity_change"
)

// LedgerPhase represents the workflow phase a ledger entry was recorded in
type LedgerPhase string

const (
	// PhaseDataCollection covers fetch and normalization of raw records
	PhaseDataCollection LedgerPhase = "data_collection"
	// PhasePositionChange covers detected position changes
	PhasePositionChange LedgerPhase = "position_change"
	// PhasePriceUpdate covers price cache refreshes
	PhasePriceUpdate LedgerPhase = "price_update"
	// PhaseRunSummary covers the end-of-cycle summary entry
	PhaseRunSummary LedgerPhase = "run_summary"
)

// LedgerStatus represents the outcome recorded on a ledger entry
type LedgerStatus string

const (
	// StatusOK represents a successful step
	StatusOK LedgerStatus = "ok"
	// StatusDegraded represents a step that completed with substituted defaults
	StatusDegraded LedgerStatus = "degraded"
	// StatusFailed represents a failed step
	StatusFailed LedgerStatus = "failed"
)

// ResolutionStatus distinguishes how a token metadata field group was obtained
type ResolutionStatus string

const (
	// ResolutionResolved means the value came from a successful lookup
	ResolutionResolved ResolutionStatus = "resolved"
	// ResolutionDefaulted means a documented default was substituted after a failed lookup
	ResolutionDefaulted ResolutionStatus = "defaulted"
	// ResolutionFailed means the lookup failed and no usable value exists
	ResolutionFailed ResolutionStatus = "failed"
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}

// TransferEvent represents one token transfer observed in a wallet's history
type TransferEvent struct {
	Chain           ChainID `json:"chain"`
	ContractAddress string  `json:"contractAddress"`
	From            string  `json:"from"`
	To              string  `json:"to"`
	Value           string  `json:"value"` // raw amount as string for big numbers
	Symbol          string  `json:"symbol,omitempty"`
	Timestamp       int64   `json:"timestamp"` // Unix timestamp
	TxHash          string  `json:"txHash"`
}

// NativeAsset returns the native asset symbol for a chain
func NativeAsset(chain ChainID) string {
	switch chain {
	case ChainPolygon:
		return "MATIC"
	case ChainBNB:
		return "BNB"
	default:
		return "ETH"
	}
}
