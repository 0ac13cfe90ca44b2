package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/portfolio-reconciler/internal/types"
)

// LedgerSummary carries the free-form numeric summary of a ledger entry
type LedgerSummary struct {
	PositionCount    int     `json:"positionCount,omitempty"`
	TotalValue       float64 `json:"totalValue,omitempty"`
	DeltaFromPrior   float64 `json:"deltaFromPrior,omitempty"`
	OpenedCount      int     `json:"openedCount,omitempty"`
	ClosedCount      int     `json:"closedCount,omitempty"`
	SignificantCount int     `json:"significantCount,omitempty"`
	DiscoveredTokens int     `json:"discoveredTokens,omitempty"`
	WarningCount     int     `json:"warningCount,omitempty"`
}

// LedgerEntry represents one append-only audit record. Entries are never
// edited or removed; the ledger is a monotonically growing sequence.
type LedgerEntry struct {
	ID        uuid.UUID          `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Phase     types.LedgerPhase  `json:"phase"`
	Status    types.LedgerStatus `json:"status"`
	Summary   LedgerSummary      `json:"summary"`
	Symbol    string             `json:"symbol,omitempty"` // per-symbol detail for position_change entries
	Detail    string             `json:"detail,omitempty"` // human-readable audit note
	Change    *Change            `json:"change,omitempty"`
}

// NewLedgerEntry creates an entry stamped with a fresh identifier and the
// current UTC time
func NewLedgerEntry(phase types.LedgerPhase, status types.LedgerStatus) *LedgerEntry {
	return &LedgerEntry{
		ID:        uuid.New(),
		Timestamp: time.Now().UTC(),
		Phase:     phase,
		Status:    status,
	}
}
