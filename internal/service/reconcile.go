package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/portfolio-reconciler/internal/errors"
	"github.com/portfolio-reconciler/internal/logging"
	"github.com/portfolio-reconciler/internal/models"
	"github.com/portfolio-reconciler/internal/types"
)

// BankingSource supplies raw account and instrument records
type BankingSource interface {
	FetchAccounts(ctx context.Context) ([]models.RawAccount, error)
	FetchInstruments(ctx context.Context) ([]models.RawInstrument, error)
}

// SnapshotRepository persists the canonical snapshot between cycles
type SnapshotRepository interface {
	Load() (*models.Snapshot, error)
	Save(snapshot *models.Snapshot) error
}

// RegistryLister lists registered tokens for balance resolution
type RegistryLister interface {
	ListTokensByChain(ctx context.Context, chain types.ChainID) ([]models.TokenMetadata, error)
}

// CycleResult summarizes one completed reconciliation cycle
type CycleResult struct {
	Snapshot         *models.Snapshot
	Changes          []*models.Change
	Significant      []*models.Change
	DiscoveredTokens int
	Degraded         bool
}

// ReconcileService orchestrates one fetch cycle: collect raw data, resolve
// on-chain holdings concurrently, normalize, diff against the prior snapshot,
// and write the audit trail. Source unavailability and persistence failures
// abort the cycle; everything else degrades it.
type ReconcileService struct {
	banking    BankingSource
	discovery  *DiscoveryService
	balances   *BalanceService
	registry   RegistryLister
	normalizer *Normalizer
	differ     *Differ
	ledger     *LedgerService
	snapshots  SnapshotRepository

	wallets       []string
	chains        []types.ChainID
	maxConcurrent int
	logger        *logging.Logger
}

// ReconcileServiceConfig holds the orchestrator's dependencies
type ReconcileServiceConfig struct {
	Banking    BankingSource
	Discovery  *DiscoveryService
	Balances   *BalanceService
	Registry   RegistryLister
	Normalizer *Normalizer
	Differ     *Differ
	Ledger     *LedgerService
	Snapshots  SnapshotRepository

	Wallets       []string
	Chains        []types.ChainID
	MaxConcurrent int
}

// NewReconcileService creates the cycle orchestrator
func NewReconcileService(cfg *ReconcileServiceConfig) *ReconcileService {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	return &ReconcileService{
		banking:       cfg.Banking,
		discovery:     cfg.Discovery,
		balances:      cfg.Balances,
		registry:      cfg.Registry,
		normalizer:    cfg.Normalizer,
		differ:        cfg.Differ,
		ledger:        cfg.Ledger,
		snapshots:     cfg.Snapshots,
		wallets:       cfg.Wallets,
		chains:        cfg.Chains,
		maxConcurrent: maxConcurrent,
		logger:        logging.GetGlobalLogger().WithField("service", "reconcile"),
	}
}

// scanResult carries the outcome of one (wallet, chain) unit of work
type scanResult struct {
	balances   []*models.WalletBalance
	discovered int
	degraded   bool
}

// RunCycle executes one full reconciliation cycle. On cancellation the cycle
// is abandoned without a partial snapshot commit: the previous snapshot stays
// authoritative.
func (s *ReconcileService) RunCycle(ctx context.Context) (*CycleResult, error) {
	accounts, err := s.banking.FetchAccounts(ctx)
	if err != nil {
		s.recordFailure(ctx, types.PhaseDataCollection, "banking accounts fetch failed")
		return nil, err
	}
	instruments, err := s.banking.FetchInstruments(ctx)
	if err != nil {
		s.recordFailure(ctx, types.PhaseDataCollection, "banking instruments fetch failed")
		return nil, err
	}

	balances, discovered, degraded, err := s.scanWallets(ctx)
	if err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot := s.normalizer.BuildSnapshot(accounts, instruments, balances)
	if len(snapshot.Warnings) > 0 {
		degraded = true
	}

	previous, err := s.snapshots.Load()
	if err != nil {
		return nil, errors.NewPersistenceError("snapshot", err)
	}

	changes := s.differ.Diff(previous, snapshot)
	significant := Significant(changes)

	if err := s.snapshots.Save(snapshot); err != nil {
		return nil, errors.NewPersistenceError("snapshot", err)
	}

	if err := s.writeAuditTrail(ctx, previous, snapshot, changes, significant, discovered, degraded); err != nil {
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"positions":   snapshot.PositionCount(),
		"totalValue":  snapshot.TotalValue,
		"changes":     len(changes),
		"significant": len(significant),
		"discovered":  discovered,
		"degraded":    degraded,
	}).Info("Reconciliation cycle completed")

	return &CycleResult{
		Snapshot:         snapshot,
		Changes:          changes,
		Significant:      significant,
		DiscoveredTokens: discovered,
		Degraded:         degraded,
	}, nil
}

// scanWallets fans out every (wallet, chain) combination across a bounded
// pool of workers. Units of work are independent; only the registry and the
// price cache are shared, and both take idempotent upserts.
func (s *ReconcileService) scanWallets(ctx context.Context) ([]*models.WalletBalance, int, bool, error) {
	type task struct {
		wallet string
		chain  types.ChainID
	}

	var tasks []task
	for _, wallet := range s.wallets {
		for _, chain := range s.chains {
			tasks = append(tasks, task{wallet: wallet, chain: chain})
		}
	}
	if len(tasks) == 0 {
		return nil, 0, false, nil
	}

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		balances   []*models.WalletBalance
		discovered int
		degraded   bool
	)

	sem := make(chan struct{}, s.maxConcurrent)
	for _, t := range tasks {
		if ctx.Err() != nil {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(t task) {
			defer wg.Done()
			defer func() { <-sem }()

			result := s.scanWalletChain(ctx, t.wallet, t.chain)

			mu.Lock()
			balances = append(balances, result.balances...)
			discovered += result.discovered
			degraded = degraded || result.degraded
			mu.Unlock()
		}(t)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, 0, false, err
	}

	return balances, discovered, degraded, nil
}

// scanWalletChain runs discovery and balance resolution for one wallet on one
// chain. All failures here are absorbed: they degrade the cycle, they never
// escalate past the task boundary.
func (s *ReconcileService) scanWalletChain(ctx context.Context, wallet string, chain types.ChainID) scanResult {
	logger := s.logger.WithFields(map[string]interface{}{
		"wallet": wallet,
		"chain":  chain,
	})
	result := scanResult{}

	discovered, err := s.discovery.DiscoverTokens(ctx, wallet, chain)
	if err != nil {
		logger.WithError(err).Warn("Token discovery failed, continuing with registered tokens")
		result.degraded = true
	}
	for _, token := range discovered {
		resolution, err := s.discovery.ResolveToken(ctx, chain, token.ContractAddress)
		if err != nil {
			logger.WithError(err).Warn("Token resolution failed")
			result.degraded = true
			continue
		}
		if resolution.OnChainStatus != types.ResolutionResolved || resolution.PriceIDStatus != types.ResolutionResolved {
			result.degraded = true
		}
		result.discovered++
	}

	if native, err := s.balances.ResolveNativeBalance(ctx, wallet, chain); err != nil {
		logger.WithError(err).Warn("Native balance resolution failed")
		result.degraded = true
	} else if native != nil {
		result.balances = append(result.balances, native)
	}

	tokens, err := s.registry.ListTokensByChain(ctx, chain)
	if err != nil {
		logger.WithError(err).Warn("Registry listing failed, skipping token balances")
		result.degraded = true
		return result
	}

	for i := range tokens {
		balance, err := s.balances.ResolveTokenBalance(ctx, wallet, &tokens[i])
		if err != nil {
			logger.WithError(err).WithField("token", tokens[i].Symbol).Warn("Token balance resolution failed")
			result.degraded = true
			continue
		}
		if balance != nil {
			result.balances = append(result.balances, balance)
		}
	}

	return result
}

// writeAuditTrail records the cycle's ledger entries. Any append failure is
// fatal: the audit-trail guarantee is broken.
func (s *ReconcileService) writeAuditTrail(ctx context.Context, previous, snapshot *models.Snapshot, changes, significant []*models.Change, discovered int, degraded bool) error {
	status := types.StatusOK
	if degraded {
		status = types.StatusDegraded
	}

	if err := s.ledger.RecordPhase(ctx, types.PhaseDataCollection, status, collectionDetail(snapshot, discovered)); err != nil {
		return err
	}
	if err := s.ledger.RecordChanges(ctx, significant); err != nil {
		return err
	}

	var opened, closed int
	for _, change := range changes {
		switch change.Type {
		case types.ChangeOpened:
			opened++
		case types.ChangeClosed:
			closed++
		}
	}

	summary := models.LedgerSummary{
		PositionCount:    snapshot.PositionCount(),
		TotalValue:       snapshot.TotalValue,
		OpenedCount:      opened,
		ClosedCount:      closed,
		SignificantCount: len(significant),
		DiscoveredTokens: discovered,
		WarningCount:     len(snapshot.Warnings),
	}
	if previous != nil {
		summary.DeltaFromPrior = snapshot.TotalValue - previous.TotalValue
	}

	return s.ledger.RecordRunSummary(ctx, status, summary)
}

// recordFailure best-effort logs a failed phase; the cycle is aborting anyway
func (s *ReconcileService) recordFailure(ctx context.Context, phase types.LedgerPhase, detail string) {
	if err := s.ledger.RecordPhase(ctx, phase, types.StatusFailed, detail); err != nil {
		s.logger.WithError(err).Error("Failed to record cycle failure in ledger")
	}
}

// collectionDetail renders the data_collection audit note
func collectionDetail(snapshot *models.Snapshot, discovered int) string {
	detail := fmt.Sprintf("collected %d positions", snapshot.PositionCount())
	if discovered > 0 {
		detail += fmt.Sprintf(", discovered %d new tokens", discovered)
	}
	return detail
}
