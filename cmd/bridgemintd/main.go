package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"bridgemint/config"
	nativeagents "bridgemint/native/agents"
	nativecommon "bridgemint/native/common"
	"bridgemint/native/liquidation"
	"bridgemint/native/minting"
	"bridgemint/native/oracle"
	nativeparams "bridgemint/native/params"
	"bridgemint/native/redemption"
	"bridgemint/observability"
	"bridgemint/observability/logging"
	"bridgemint/rpc"
	"bridgemint/state"
	"bridgemint/storage"
)

const authTokenEnv = "BRIDGEMINT_RPC_TOKEN"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup("bridgemintd", cfg.LogLevel, cfg.LogFile)

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	registry, err := config.LoadCollateralTypes(cfg.CollateralRegistryFile)
	if err != nil {
		logger.Error("failed to load collateral registry", slog.Any("error", err))
		os.Exit(1)
	}

	settings := cfg.Protocol

	manager := state.NewManager(db, settings.AssetSymbol)
	manager.SetPauseLimits(nativecommon.PauseLimits{
		MaxDurationSeconds: settings.MaxEmergencyPauseDurationSeconds,
		ResetAfterSeconds:  settings.EmergencyPauseDurationResetAfterSeconds,
	})

	store := nativeparams.NewStore(manager)
	if persisted, ok, err := store.Settings(); err != nil {
		logger.Error("failed to load persisted settings", slog.Any("error", err))
		os.Exit(1)
	} else if ok {
		// Persisted settings win over the config file after first boot so
		// governance updates survive restarts.
		settings = persisted
	} else if err := store.SetSettings(settings); err != nil {
		logger.Error("failed to persist settings", slog.Any("error", err))
		os.Exit(1)
	}

	prices := oracle.NewFeedStore(time.Duration(settings.MaxTrustedPriceAgeSeconds) * time.Second)

	recorder := observability.NewEventRecorder(nil)

	agentsEngine := nativeagents.NewEngine(registry, prices, settings.AgentsParams())
	agentsEngine.SetState(manager)
	agentsEngine.SetLedger(manager)
	agentsEngine.SetPauses(manager)
	agentsEngine.SetEmitter(recorder)

	mintingEngine := minting.NewEngine(prices, agentsEngine, settings.MintingParams())
	mintingEngine.SetState(manager)
	mintingEngine.SetLedger(manager)
	mintingEngine.SetAssetMinter(manager)
	mintingEngine.SetPauses(manager)
	mintingEngine.SetEmitter(recorder)

	redemptionEngine := redemption.NewEngine(prices, settings.RedemptionParams())
	redemptionEngine.SetState(manager)
	redemptionEngine.SetLedger(manager)
	redemptionEngine.SetAssetBurner(manager)
	redemptionEngine.SetPauses(manager)
	redemptionEngine.SetEmitter(recorder)

	liquidationEngine := liquidation.NewEngine(registry, prices, settings.LiquidationParams())
	liquidationEngine.SetState(manager)
	liquidationEngine.SetLedger(manager)
	liquidationEngine.SetAssetBurner(manager)
	liquidationEngine.SetEmitter(recorder)

	server := rpc.NewServer(rpc.Deps{
		Log:         logger,
		State:       manager,
		Prices:      prices,
		Registry:    registry,
		Params:      store,
		Agents:      agentsEngine,
		Minting:     mintingEngine,
		Redemption:  redemptionEngine,
		Liquidation: liquidationEngine,
		AuthToken:   strings.TrimSpace(os.Getenv(authTokenEnv)),
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.RPCAddress)
	}()

	logger.Info("bridgemintd started",
		"network", cfg.NetworkName,
		"asset", settings.AssetSymbol,
		"backend", cfg.Backend,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		if err != nil {
			logger.Error("rpc server failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Backend)) {
	case "memory":
		return storage.NewMemDB(), nil
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(cfg.DataDir + "/state.bolt")
	default:
		return storage.NewLevelDB(cfg.DataDir)
	}
}
