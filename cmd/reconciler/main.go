// Package main provides the reconciler daemon entry point: the scheduler,
// the status API server, and all collaborator wiring.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/portfolio-reconciler/internal/adapter"
	"github.com/portfolio-reconciler/internal/api"
	"github.com/portfolio-reconciler/internal/config"
	"github.com/portfolio-reconciler/internal/logging"
	"github.com/portfolio-reconciler/internal/service"
	"github.com/portfolio-reconciler/internal/storage"
	"github.com/portfolio-reconciler/internal/types"
	"github.com/portfolio-reconciler/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.WithFields(map[string]interface{}{
		"level":  cfg.Logging.Level,
		"format": cfg.Logging.Format,
	}).Info("Portfolio reconciler starting")

	// Databases
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisCache(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	// The analytics mirror is optional: the JSONL ledger stays authoritative
	var mirror service.LedgerMirror
	if cfg.Database.ClickHouse.Enabled {
		clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, analytics mirror disabled")
		} else {
			defer clickhouse.Close()
			analytics := storage.NewLedgerAnalyticsRepository(clickhouse)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			if err := analytics.EnsureSchema(ctx); err != nil {
				logger.WithError(err).Warn("Failed to prepare ClickHouse schema, analytics mirror disabled")
			} else {
				mirror = analytics
			}
			cancel()
		}
	}

	// Chain adapters
	metaReaders := make(map[types.ChainID]service.MetadataReader)
	balanceReaders := make(map[types.ChainID]service.BalanceReader)
	var chains []types.ChainID

	for _, chainName := range cfg.Chains.Enabled {
		chainCfg, ok := cfg.Chains.Chains[chainName]
		if !ok || chainCfg.RPCPrimary == "" {
			logger.WithField("chain", chainName).Warn("Skipping chain: no RPC endpoint configured")
			continue
		}

		chainID := types.ChainID(chainName)
		if !chainID.IsValid() {
			logger.WithField("chain", chainName).Warn("Skipping unknown chain")
			continue
		}

		provider, err := adapter.NewRPCProvider(chainCfg.RPCPrimary, chainCfg.RPCSecondary)
		if err != nil {
			logger.WithError(err).WithField("chain", chainName).Warn("Failed to create provider for chain")
			continue
		}

		chainAdapter, err := adapter.NewEthereumAdapter(&adapter.EthereumAdapterConfig{
			ChainID:     chainID,
			Provider:    provider,
			CallTimeout: cfg.Reconcile.CallTimeout,
		})
		if err != nil {
			logger.WithError(err).WithField("chain", chainName).Warn("Failed to create adapter for chain")
			continue
		}

		metaReaders[chainID] = chainAdapter
		balanceReaders[chainID] = chainAdapter
		chains = append(chains, chainID)
		logger.WithFields(map[string]interface{}{
			"chain": chainName,
			"rpc":   chainCfg.RPCPrimary,
		}).Info("Chain adapter initialized")
	}

	// External collaborators
	banking := adapter.NewBankingClient(cfg.Banking.BaseURL, cfg.Banking.APIKey, cfg.Reconcile.CallTimeout)
	explorer := adapter.NewExplorerClient(cfg.Chains.ExplorerKey, cfg.Reconcile.CallTimeout)
	pricing := adapter.NewPricingClient(cfg.Pricing.BaseURL, cfg.Pricing.Currency, cfg.Reconcile.CallTimeout)

	// Stores
	registry := storage.NewTokenRegistryRepository(postgres)
	priceCache := storage.NewPriceCache(redis, cfg.Reconcile.PriceCacheTTL)

	snapshots, err := storage.NewSnapshotStore(cfg.Reconcile.SnapshotPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open snapshot store")
	}

	ledger, err := storage.NewLedgerStore(cfg.Reconcile.LedgerPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open ledger store")
	}
	defer ledger.Close()

	patterns, err := config.LoadCategoryPatterns(cfg.Reconcile.PatternsPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load classification patterns")
	}

	// Services
	reconciler := service.NewReconcileService(&service.ReconcileServiceConfig{
		Banking:    banking,
		Discovery:  service.NewDiscoveryService(registry, explorer, metaReaders, pricing, cfg.Reconcile.ScanDepth),
		Balances:   service.NewBalanceService(balanceReaders, priceCache, pricing),
		Registry:   registry,
		Normalizer: service.NewNormalizer(patterns, cfg.Reconcile.MinPositionValue, cfg.Pricing.Currency),
		Differ:     service.NewDiffer(cfg.Reconcile.PercentThreshold, cfg.Reconcile.AbsoluteThreshold),
		Ledger:     service.NewLedgerService(ledger, mirror),
		Snapshots:  snapshots,

		Wallets:       cfg.Chains.Wallets,
		Chains:        chains,
		MaxConcurrent: cfg.Reconcile.MaxConcurrent,
	})

	scheduler, err := worker.NewScheduler(reconciler, cfg.Reconcile.CycleInterval)
	if err != nil {
		logger.WithError(err).Fatal("Failed to create scheduler")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := scheduler.Start(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to start scheduler")
	}

	server := api.NewServer(&api.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		RequestsPerSec:  10,
	}, snapshots, ledger, registry, scheduler)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("Shutdown signal received")
	case err := <-serverErr:
		logger.WithError(err).Error("API server exited")
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("API server shutdown failed")
	}
	if err := scheduler.Stop(shutdownCtx); err != nil {
		logger.WithError(err).Error("Scheduler shutdown failed")
	}

	logger.Info("Portfolio reconciler stopped")
}
