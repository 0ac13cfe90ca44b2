// Package main provides a one-shot token discovery run: scan the configured
// wallets' transfer history, resolve unregistered contracts, and persist them
// to the token registry.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/portfolio-reconciler/internal/adapter"
	"github.com/portfolio-reconciler/internal/config"
	"github.com/portfolio-reconciler/internal/logging"
	"github.com/portfolio-reconciler/internal/service"
	"github.com/portfolio-reconciler/internal/storage"
	"github.com/portfolio-reconciler/internal/types"
)

func main() {
	timeout := flag.Duration("timeout", 10*time.Minute, "Overall run timeout")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger().WithField("tool", "discover")

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	registry := storage.NewTokenRegistryRepository(postgres)
	explorer := adapter.NewExplorerClient(cfg.Chains.ExplorerKey, cfg.Reconcile.CallTimeout)
	pricing := adapter.NewPricingClient(cfg.Pricing.BaseURL, cfg.Pricing.Currency, cfg.Reconcile.CallTimeout)

	readers := make(map[types.ChainID]service.MetadataReader)
	var chains []types.ChainID
	for _, chainName := range cfg.Chains.Enabled {
		chainCfg, ok := cfg.Chains.Chains[chainName]
		if !ok || chainCfg.RPCPrimary == "" {
			logger.WithField("chain", chainName).Warn("Skipping chain: no RPC endpoint configured")
			continue
		}

		provider, err := adapter.NewRPCProvider(chainCfg.RPCPrimary, chainCfg.RPCSecondary)
		if err != nil {
			logger.WithError(err).WithField("chain", chainName).Warn("Failed to create provider")
			continue
		}

		chainID := types.ChainID(chainName)
		chainAdapter, err := adapter.NewEthereumAdapter(&adapter.EthereumAdapterConfig{
			ChainID:     chainID,
			Provider:    provider,
			CallTimeout: cfg.Reconcile.CallTimeout,
		})
		if err != nil {
			logger.WithError(err).WithField("chain", chainName).Warn("Failed to create adapter")
			continue
		}

		readers[chainID] = chainAdapter
		chains = append(chains, chainID)
	}

	if len(chains) == 0 {
		logger.Fatal("No chains configured")
	}
	if len(cfg.Chains.Wallets) == 0 {
		logger.Fatal("No wallet addresses configured")
	}

	discovery := service.NewDiscoveryService(registry, explorer, readers, pricing, cfg.Reconcile.ScanDepth)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var found, resolved, verified int
	for _, wallet := range cfg.Chains.Wallets {
		for _, chain := range chains {
			candidates, err := discovery.DiscoverTokens(ctx, wallet, chain)
			if err != nil {
				logger.WithError(err).WithFields(map[string]interface{}{
					"wallet": wallet,
					"chain":  chain,
				}).Warn("Discovery failed for wallet")
				continue
			}
			found += len(candidates)

			for _, candidate := range candidates {
				resolution, err := discovery.ResolveToken(ctx, candidate.Chain, candidate.ContractAddress)
				if err != nil {
					logger.WithError(err).WithField("contract", candidate.ContractAddress).Warn("Resolution failed")
					continue
				}
				resolved++
				if resolution.Metadata.Verified {
					verified++
				}
				logger.WithFields(map[string]interface{}{
					"chain":    resolution.Metadata.Chain,
					"contract": resolution.Metadata.ContractAddress,
					"symbol":   resolution.Metadata.Symbol,
					"class":    resolution.Metadata.Class,
					"verified": resolution.Metadata.Verified,
				}).Info("Token registered")
			}
		}
	}

	logger.WithFields(map[string]interface{}{
		"discovered": found,
		"resolved":   resolved,
		"verified":   verified,
	}).Info("Discovery run complete")
}
