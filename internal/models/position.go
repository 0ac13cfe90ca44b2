// Package models defines the canonical data model of the reconciliation core.
package models

import (
	"time"

	"github.com/portfolio-reconciler/internal/types"
)

// Position represents one canonical, deduplicated holding of a symbol.
// Symbol is unique within a snapshot; raw rows resolving to the same symbol
// are merged, never duplicated.
type Position struct {
	Symbol       string           `json:"symbol"`
	Name         string           `json:"name"`
	InstrumentID string           `json:"instrumentId,omitempty"`
	Quantity     float64          `json:"quantity"`
	UnitPrice    float64          `json:"unitPrice"`
	MarketValue  float64          `json:"marketValue"` // carried independently: sources may report it directly
	CostBasis    float64          `json:"costBasis"`
	GainLoss     float64          `json:"gainLoss"`
	AccountIDs   string           `json:"accountIds"` // comma-joined when consolidated from multiple accounts
	Currency     string           `json:"currency"`
	AssetClass   types.AssetClass `json:"assetClass"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

// Key returns the map key used when flattening a snapshot for diffing.
// Falls back to the instrument identifier when the primary symbol is absent,
// so a provider renaming a symbol-less holding does not change its identity
// between cycles. The display name is a last resort only.
func (p *Position) Key() string {
	if p.Symbol != "" {
		return p.Symbol
	}
	if p.InstrumentID != "" {
		return p.InstrumentID
	}
	return p.Name
}
