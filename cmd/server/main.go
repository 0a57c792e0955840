package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"storflow/internal/api"
	"storflow/internal/blobstore"
	"storflow/internal/blockchain/evm"
	"storflow/internal/blockchain/simchain"
	"storflow/internal/blockchain/stash"
	"storflow/internal/bridge"
	"storflow/internal/config"
	"storflow/internal/database"
	"storflow/internal/estimator"
	"storflow/internal/orchestrator"
	"storflow/internal/prices"
	"storflow/internal/proofs"
	"storflow/internal/swap"
	"storflow/internal/wallet"
	"storflow/internal/worker"
)

const confirmTimeout = 2 * time.Minute

// pipeline bundles everything the orchestrator needs, built per mode
type pipeline struct {
	aggregator    *prices.Aggregator
	coordinator   orchestrator.Bridge
	router        orchestrator.Swapper
	uploader      orchestrator.Uploader
	proofs        orchestrator.ProofSubmitter
	mintRecipient [32]byte
	close         func()
}

func main() {
	// Initialize logger
	logger, err := initLogger()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting Storflow Service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger.Info("Configuration loaded",
		zap.String("mode", cfg.Mode),
		zap.Int("server_port", cfg.Server.Port),
		zap.Int("num_chains", len(cfg.Chains)))

	// Operation store: Postgres when configured, in-memory otherwise
	var store orchestrator.OperationStore
	if cfg.Database.Host != "" {
		db, err := database.Connect(cfg.Database)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		migrationPath := "internal/database/migrations/001_schema.sql"
		if err := database.RunMigrations(db, migrationPath); err != nil {
			logger.Warn("Failed to run migrations (may already be applied)", zap.Error(err))
		} else {
			logger.Info("Database migrations applied successfully")
		}
		store = db
		logger.Info("Using Postgres operation store")
	} else {
		store = orchestrator.NewMemoryStore()
		logger.Info("Using in-memory operation store")
	}

	// Build the chain pipeline for the configured mode
	var pipe *pipeline
	if cfg.Mode == config.ModeSimulation {
		pipe = buildSimulationPipeline(cfg, logger)
	} else {
		pipe, err = buildLivePipeline(cfg, logger)
		if err != nil {
			logger.Fatal("Failed to build chain pipeline", zap.Error(err))
		}
	}
	defer pipe.close()

	estimateService := estimator.NewService(cfg, pipe.aggregator, logger)
	orch := orchestrator.NewOrchestrator(
		estimateService,
		pipe.coordinator,
		pipe.router,
		pipe.uploader,
		pipe.proofs,
		store,
		pipe.mintRecipient,
		logger,
	)

	logger.Info("Services initialized")

	// Initialize API handlers
	apiHandler := api.NewHandler(estimateService, orch, cfg.Mode, logger)
	router := api.SetupRouter(apiHandler, logger)

	// Create HTTP server
	serverAddr := fmt.Sprintf(":%d", cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start HTTP server in goroutine
	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server",
			zap.String("addr", serverAddr))
		serverErrors <- httpServer.ListenAndServe()
	}()

	// Background workers: price cache refresher and stuck-operation watchdog
	symbols := []string{"STOR", "STASH", "USDC"}
	for _, chainCfg := range cfg.Chains {
		symbols = append(symbols, chainCfg.NativeSymbol)
	}
	refresher := worker.NewRefresher(pipe.aggregator, symbols, worker.DefaultRefreshInterval, logger)
	watchdog := worker.NewWatchdog(store, worker.DefaultWatchdogInterval, worker.DefaultStuckThreshold, logger)
	workerManager := worker.NewManager(refresher, watchdog, logger)
	workerManager.Start()
	logger.Info("Workers started")

	logger.Info("Service initialized successfully",
		zap.String("status", "ready"),
		zap.Int("port", cfg.Server.Port))

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Wait for interrupt signal or server error
	select {
	case err := <-serverErrors:
		logger.Fatal("HTTP server error", zap.Error(err))
	case sig := <-quit:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))
	}

	logger.Info("Shutting down service...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Shutdown workers first
	if err := workerManager.Shutdown(10 * time.Second); err != nil {
		logger.Error("Worker shutdown error", zap.Error(err))
	}

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
		httpServer.Close()
	} else {
		logger.Info("HTTP server stopped gracefully")
	}

	logger.Info("Service stopped successfully")
}

// buildLivePipeline wires real chain clients: EVM messengers for burns, the
// stash-chain transmitter for redemptions, CosmWasm DEX venues, the storage
// publisher and the proof registries.
func buildLivePipeline(cfg *config.Config, logger *zap.Logger) (*pipeline, error) {
	signer, err := wallet.NewPrivateKeySigner(cfg.Operator.EVMPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load operator key: %w", err)
	}

	evmClients := make(map[string]*evm.Client)
	burners := make(map[string]bridge.Burner)
	closeAll := func() {
		for _, client := range evmClients {
			client.Close()
		}
	}

	for chainID, chainCfg := range cfg.Chains {
		chainCfgCopy := chainCfg

		client, err := evm.NewClient(&chainCfgCopy, signer, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create EVM client for chain %s: %w", chainID, err)
		}
		evmClients[chainID] = client

		messenger, err := evm.NewMessenger(client, &chainCfgCopy, logger)
		if err != nil {
			closeAll()
			return nil, fmt.Errorf("failed to create messenger for chain %s: %w", chainID, err)
		}
		burners[chainID] = bridge.NewEVMBurner(messenger, cfg.Stash.BridgeDomain, confirmTimeout)

		logger.Info("EVM chain initialized",
			zap.String("chain_id", chainID),
			zap.String("chain_name", chainCfg.Name))
	}

	stashClient, err := stash.NewClient(&cfg.Stash, cfg.Operator.StashMnemonic, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to create stash client: %w", err)
	}

	transmitter := stash.NewTransmitter(stashClient, &cfg.Stash, logger)
	redeemer := bridge.NewStashRedeemer(transmitter, confirmTimeout)
	attestor := bridge.NewAttestationClient(&cfg.Attest, logger)
	coordinator := bridge.NewCoordinator(burners, attestor, redeemer, cfg.Stash.ChainName, logger)

	// Price fallback chain: market API, then oracle, then on-chain pools
	sources := []prices.Source{prices.NewMarketSource(&cfg.Prices, logger)}
	if cfg.Prices.OracleEndpoint != "" {
		sources = append(sources, prices.NewOracleSource(&cfg.Prices, logger))
	}
	sources = append(sources, prices.NewDexSource(&cfg.Stash, stashClient, logger))
	aggregator := prices.NewAggregator(&cfg.Prices, sources, logger)

	venues := make([]swap.Venue, 0, len(cfg.Stash.Venues))
	for _, venueCfg := range cfg.Stash.Venues {
		venues = append(venues, swap.NewWasmVenue(venueCfg, &cfg.Stash, stashClient, logger))
	}
	router := swap.NewRouter(&cfg.Swap, venues, []string{"STASH", "USDC"}, aggregator, logger)

	uploader := blobstore.NewClient(&cfg.Storage, logger)
	proofService, err := proofs.NewService(cfg, evmClients, logger)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("failed to create proof service: %w", err)
	}

	mintRecipient, err := stash.ConvertToBytes32(cfg.Operator.StashAddress)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("invalid operator stash address: %w", err)
	}

	return &pipeline{
		aggregator:    aggregator,
		coordinator:   coordinator,
		router:        router,
		uploader:      uploader,
		proofs:        proofService,
		mintRecipient: mintRecipient,
		close: func() {
			closeAll()
			if err := stashClient.Close(); err != nil {
				logger.Error("Error closing stash client", zap.Error(err))
			}
		},
	}, nil
}

// buildSimulationPipeline wires the deterministic in-process adapters. No
// network access, no keys; every hash is a function of the inputs.
func buildSimulationPipeline(cfg *config.Config, logger *zap.Logger) *pipeline {
	burners := make(map[string]bridge.Burner)
	for chainID := range cfg.Chains {
		burners[chainID] = simchain.NewBridge(chainID, 2*time.Second, logger)
	}
	simBridge := simchain.NewBridge(cfg.Stash.ChainName, 2*time.Second, logger)
	coordinator := bridge.NewCoordinator(burners, simBridge, simBridge, cfg.Stash.ChainName, logger)

	table := map[string]decimal.Decimal{
		"STOR":  decimal.NewFromInt(2),
		"STASH": decimal.RequireFromString("0.5"),
		"USDC":  decimal.NewFromInt(1),
		"ETH":   decimal.NewFromInt(2000),
		"POL":   decimal.RequireFromString("0.4"),
	}
	aggregator := prices.NewAggregator(&cfg.Prices, []prices.Source{prices.NewStaticSource(table)}, logger)

	// Reserves imply the same spot prices as the static table
	venue := simchain.NewVenue("simdex", logger)
	venue.AddPool("USDC", "STOR", decimal.NewFromInt(250000), decimal.NewFromInt(125000))
	venue.AddPool("USDC", "STASH", decimal.NewFromInt(400000), decimal.NewFromInt(800000))
	venue.AddPool("STASH", "STOR", decimal.NewFromInt(120000), decimal.NewFromInt(30000))
	router := swap.NewRouter(&cfg.Swap, []swap.Venue{venue}, []string{"STASH", "USDC"}, aggregator, logger)

	uploader := simchain.NewStorage(cfg.Storage.MaxPayloadBytes, 100, logger)
	registry := simchain.NewRegistry(logger)

	var mintRecipient [32]byte
	if cfg.Operator.StashAddress != "" {
		if recipient, err := stash.ConvertToBytes32(cfg.Operator.StashAddress); err == nil {
			mintRecipient = recipient
		}
	}

	return &pipeline{
		aggregator:    aggregator,
		coordinator:   coordinator,
		router:        router,
		uploader:      uploader,
		proofs:        registry,
		mintRecipient: mintRecipient,
		close:         func() {},
	}
}

func initLogger() (*zap.Logger, error) {
	env := os.Getenv("ENV")
	if env == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
