package storage

import (
	"context"
	"fmt"

	"github.com/portfolio-reconciler/internal/models"
)

// LedgerAnalyticsRepository mirrors ledger entries into ClickHouse for
// long-horizon queries (value over time, change frequency per symbol). The
// file ledger remains the source of truth; mirror failures degrade a cycle
// but never fail it.
type LedgerAnalyticsRepository struct {
	db *ClickHouseDB
}

// NewLedgerAnalyticsRepository creates a new analytics mirror repository
func NewLedgerAnalyticsRepository(db *ClickHouseDB) *LedgerAnalyticsRepository {
	return &LedgerAnalyticsRepository{db: db}
}

// EnsureSchema creates the mirror table if it does not exist
func (r *LedgerAnalyticsRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id UUID,
			timestamp DateTime64(3, 'UTC'),
			phase LowCardinality(String),
			status LowCardinality(String),
			symbol String,
			detail String,
			change_type LowCardinality(String),
			old_value Float64,
			new_value Float64,
			old_quantity Float64,
			new_quantity Float64,
			significant UInt8,
			position_count UInt32,
			total_value Float64,
			delta_from_prior Float64
		) ENGINE = MergeTree()
		ORDER BY (timestamp, phase)
	`

	if err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create ledger mirror table: %w", err)
	}

	return nil
}

// InsertEntries batch-inserts ledger entries into the mirror
func (r *LedgerAnalyticsRepository) InsertEntries(ctx context.Context, entries []*models.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	batch, err := r.db.Conn().PrepareBatch(ctx, `
		INSERT INTO ledger_entries (
			id, timestamp, phase, status, symbol, detail,
			change_type, old_value, new_value, old_quantity, new_quantity, significant,
			position_count, total_value, delta_from_prior
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare ledger mirror batch: %w", err)
	}

	for _, entry := range entries {
		var (
			changeType  string
			oldValue    float64
			newValue    float64
			oldQuantity float64
			newQuantity float64
			significant uint8
		)
		if entry.Change != nil {
			changeType = string(entry.Change.Type)
			oldValue = entry.Change.OldValue
			newValue = entry.Change.NewValue
			oldQuantity = entry.Change.OldQuantity
			newQuantity = entry.Change.NewQuantity
			if entry.Change.Significant {
				significant = 1
			}
		}

		if err := batch.Append(
			entry.ID, entry.Timestamp, string(entry.Phase), string(entry.Status),
			entry.Symbol, entry.Detail,
			changeType, oldValue, newValue, oldQuantity, newQuantity, significant,
			uint32(entry.Summary.PositionCount), // #nosec G115 - position counts are small
			entry.Summary.TotalValue, entry.Summary.DeltaFromPrior,
		); err != nil {
			return fmt.Errorf("failed to append ledger mirror row: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send ledger mirror batch: %w", err)
	}

	return nil
}
