package service

import (
	"context"
	"fmt"

	"github.com/portfolio-reconciler/internal/errors"
	"github.com/portfolio-reconciler/internal/logging"
	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

// LedgerAppender is the append-only audit log. Entries are never edited or
// removed.
type LedgerAppender interface {
	Append(entry *models.LedgerEntry) error
	AppendAll(entries []*models.LedgerEntry) error
}

// LedgerMirror replicates entries into the analytics store, best effort
type LedgerMirror interface {
	InsertEntries(ctx context.Context, entries []*models.LedgerEntry) error
}

// LedgerService writes typed audit entries. An append failure is a
// persistence error and fatal for the cycle: it breaks the audit-trail
// guarantee. Mirror failures are logged and absorbed.
type LedgerService struct {
	store  LedgerAppender
	mirror LedgerMirror
	logger *logging.Logger
}

// NewLedgerService creates a ledger writer. The mirror may be nil when the
// analytics store is disabled.
func NewLedgerService(store LedgerAppender, mirror LedgerMirror) *LedgerService {
	return &LedgerService{
		store:  store,
		mirror: mirror,
		logger: logging.GetGlobalLogger().WithField("service", "ledger"),
	}
}

// RecordChanges appends one position_change entry per change
func (s *LedgerService) RecordChanges(ctx context.Context, changes []*models.Change) error {
	if len(changes) == 0 {
		return nil
	}

	entries := make([]*models.LedgerEntry, 0, len(changes))
	for _, change := range changes {
		entry := models.NewLedgerEntry(types.PhasePositionChange, types.StatusOK)
		entry.Symbol = change.Symbol
		entry.Detail = changeDetail(change)
		entry.Change = change
		entries = append(entries, entry)
	}

	if err := s.store.AppendAll(entries); err != nil {
		return errors.NewPersistenceError("ledger", err)
	}

	s.replicate(ctx, entries)
	return nil
}

// RecordPhase appends one entry for a workflow phase outcome
func (s *LedgerService) RecordPhase(ctx context.Context, phase types.LedgerPhase, status types.LedgerStatus, detail string) error {
	entry := models.NewLedgerEntry(phase, status)
	entry.Detail = detail

	if err := s.store.Append(entry); err != nil {
		return errors.NewPersistenceError("ledger", err)
	}

	s.replicate(ctx, []*models.LedgerEntry{entry})
	return nil
}

// RecordRunSummary appends the end-of-cycle summary entry
func (s *LedgerService) RecordRunSummary(ctx context.Context, status types.LedgerStatus, summary models.LedgerSummary) error {
	entry := models.NewLedgerEntry(types.PhaseRunSummary, status)
	entry.Summary = summary
	entry.Detail = fmt.Sprintf("%d positions, total %.2f (%+.2f vs prior), %d opened, %d closed, %d significant",
		summary.PositionCount, summary.TotalValue, summary.DeltaFromPrior,
		summary.OpenedCount, summary.ClosedCount, summary.SignificantCount)

	if err := s.store.Append(entry); err != nil {
		return errors.NewPersistenceError("ledger", err)
	}

	s.replicate(ctx, []*models.LedgerEntry{entry})
	return nil
}

// replicate mirrors entries into the analytics store; failures never escalate
func (s *LedgerService) replicate(ctx context.Context, entries []*models.LedgerEntry) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.InsertEntries(ctx, entries); err != nil {
		s.logger.WithError(err).Warn("Ledger analytics mirror insert failed")
	}
}

// changeDetail renders the human-readable audit note for a change
func changeDetail(change *models.Change) string {
	switch change.Type {
	case types.ChangeOpened:
		return fmt.Sprintf("opened %s: qty %.4f, value %.2f", change.Symbol, change.NewQuantity, change.NewValue)
	case types.ChangeClosed:
		return fmt.Sprintf("closed %s: was qty %.4f, value %.2f", change.Symbol, change.OldQuantity, change.OldValue)
	case types.ChangeQuantity:
		return fmt.Sprintf("quantity of %s moved %.4f -> %.4f (inferred transaction)", change.Symbol, change.OldQuantity, change.NewQuantity)
	default:
		if change.PercentChange != nil {
			return fmt.Sprintf("value of %s moved %.2f -> %.2f (%+.2f%%)", change.Symbol, change.OldValue, change.NewValue, *change.PercentChange)
		}
		return fmt.Sprintf("value of %s moved %.2f -> %.2f", change.Symbol, change.OldValue, change.NewValue)
	}
}
