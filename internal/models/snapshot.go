package models

import (
	"time"

	"github.com/portfolio-reconciler/internal/types"
)

// Snapshot represents the immutable portfolio state at one point in time.
// It is created once per fetch cycle, never mutated, and superseded (not
// deleted) by the next snapshot.
type Snapshot struct {
	Timestamp  time.Time                        `json:"timestamp"`
	TotalValue float64                          `json:"totalValue"`
	Currency   string                           `json:"currency"`
	Categories map[types.AssetClass][]*Position `json:"categories"`
	Warnings   []string                         `json:"warnings,omitempty"` // data shape anomalies recorded during assembly
}

// Flatten returns a symbol-keyed map over every position in the snapshot,
// independent of category layout. A nil snapshot flattens to an empty map so
// the first cycle diffs cleanly against no baseline.
func (s *Snapshot) Flatten() map[string]*Position {
	flat := make(map[string]*Position)
	if s == nil {
		return flat
	}
	for _, positions := range s.Categories {
		for _, p := range positions {
			flat[p.Key()] = p
		}
	}
	return flat
}

// PositionCount returns the number of positions across all categories
func (s *Snapshot) PositionCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, positions := range s.Categories {
		n += len(positions)
	}
	return n
}
