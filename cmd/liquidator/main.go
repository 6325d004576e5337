package main

import (
	"context"
	"flag"
	"math/big"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/facebookgo/clock"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/solventlabs/liquidator"
	"github.com/solventlabs/liquidator/chain"
	"github.com/solventlabs/liquidator/config"
	"github.com/solventlabs/liquidator/notify"
	"github.com/solventlabs/liquidator/scanner"
	"github.com/solventlabs/liquidator/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	dataURL := flag.String("data-url", "http://localhost:8080", "protocol data service URL")
	flag.Parse()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	key, err := crypto.HexToECDSA(cfg.RPC.PrivateKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid private key")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var maxGasPrice *big.Int
	if cfg.RPC.MaxGasPrice != "" {
		v, ok := new(big.Int).SetString(cfg.RPC.MaxGasPrice, 10)
		if !ok {
			log.Fatal().Str("max_gas_price", cfg.RPC.MaxGasPrice).Msg("invalid max gas price")
		}
		maxGasPrice = v
	}
	client, err := chain.New(ctx, &log, cfg.RPC.URL, key, chain.Options{
		Multicall:   common.HexToAddress(cfg.Contracts.Multicall),
		Deployer:    common.HexToAddress(cfg.Contracts.Deployer),
		MaxGasPrice: maxGasPrice,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to chain")
	}

	dataService := scanner.New(&log, *dataURL)

	artifacts := make(map[string][]byte)
	for name, path := range cfg.Contracts.Artifacts {
		code, err := os.ReadFile(path)
		if err != nil {
			log.Fatal().Err(err).Str("template", name).Msg("failed to read artifact")
		}
		artifacts[name] = code
	}
	addresses := make(map[string]common.Address)
	for name, addr := range cfg.Contracts.Liquidators {
		addresses[name] = common.HexToAddress(addr)
	}

	registry := liquidator.NewRegistry(&log, client, liquidator.RegistryConfig{
		Deployer:  common.HexToAddress(cfg.Contracts.Deployer),
		Addresses: addresses,
		Artifacts: artifacts,
		BotList:   common.HexToAddress(cfg.Contracts.BotList),
	}, nil)

	// Registry construction must complete, or fail fatally, before any
	// account processing begins.
	profiles, err := dataService.Managers(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to fetch credit managers")
	}
	if err := registry.Build(ctx, profiles); err != nil {
		log.Fatal().Err(err).Msg("registry construction failed")
	}

	mode, ok := liquidator.ParseStrategyKind(cfg.Liquidation.Mode)
	if !ok {
		log.Fatal().Str("mode", cfg.Liquidation.Mode).Msg("unknown liquidation mode")
	}
	classifier := liquidator.NewClassifier(&log, cfg.Liquidation.HealthFactorBps, mode, cfg.Liquidation.PartialFallback)

	builder := liquidator.NewPreviewBuilder(&log, client, dataService, dataService, registry, liquidator.PreviewBuilderOptions{
		Wallet:              client.From(),
		SlippageBps:         cfg.Liquidation.SlippageBps,
		OracleNeedsUpdates:  cfg.Liquidation.OracleNeedsUpdates,
		OptimalHealthFactor: cfg.Liquidation.OptimalHealthFactor,
		BotMinHealthFactor:  cfg.Liquidation.BotMinHealthFactor,
	})

	mutator := liquidator.NewPreFlightMutator(&log, client,
		common.HexToAddress(cfg.Contracts.DeleverageBot), cfg.Liquidation.Optimistic)

	var notifier liquidator.Notifier
	if cfg.Telegram.BotToken != "" {
		notifier = notify.NewTelegram(&log, clock.New(), cfg.Telegram.BotToken, cfg.Telegram.ChatID, 5*time.Minute)
	} else {
		notifier = notify.NewConsole(&log)
	}

	var outcomeStore liquidator.OutcomeStore
	if cfg.Liquidation.Optimistic {
		db, err := gorm.Open(sqlite.Open(cfg.Database.SQLitePath), &gorm.Config{})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open results database")
		}
		outcomeStore, err = store.NewOptimisticStore(db)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize results store")
		}
	}

	reporter := liquidator.NewReporter(&log, clock.New(), notifier, outcomeStore)

	coordinator := liquidator.NewCoordinator(&log, client, builder, classifier, mutator, registry, reporter, liquidator.CoordinatorOptions{
		Optimistic:      cfg.Liquidation.Optimistic,
		PartialFallback: cfg.Liquidation.PartialFallback,
		Concurrency:     cfg.Liquidation.Concurrency,
	})

	profileIndex := make(map[common.Address]*liquidator.CreditManagerProfile, len(profiles))
	for _, p := range profiles {
		profileIndex[p.Address] = p
	}

	sched := cron.New(cron.WithSeconds())
	_, err = sched.AddFunc(cfg.Schedule.ScanCron, func() {
		accounts, err := dataService.Accounts(ctx)
		if err != nil {
			log.Error().Err(err).Msg("account scan failed")
			return
		}
		coordinator.ProcessCycle(ctx, accounts, profileIndex)
	})
	if err != nil {
		log.Fatal().Err(err).Msg("invalid scan schedule")
	}
	sched.Start()
	log.Info().
		Str("mode", mode.String()).
		Bool("optimistic", cfg.Liquidation.Optimistic).
		Str("status", string(registry.Status())).
		Msg("liquidator started")

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("shutting down")
	cancel()
	<-sched.Stop().Done()
	coordinator.Shutdown()
}
