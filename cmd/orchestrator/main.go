// Package main is the entry point for the autonomous trading
// orchestrator: advisor gateway, strategy combiner, risk manager,
// anti-gaming execution engine, and the outer tick scheduler.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	mrand "math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/atlas-desktop/trading-orchestrator/internal/advisor"
	"github.com/atlas-desktop/trading-orchestrator/internal/broker"
	"github.com/atlas-desktop/trading-orchestrator/internal/config"
	"github.com/atlas-desktop/trading-orchestrator/internal/execution"
	"github.com/atlas-desktop/trading-orchestrator/internal/metrics"
	"github.com/atlas-desktop/trading-orchestrator/internal/risk"
	"github.com/atlas-desktop/trading-orchestrator/internal/scheduler"
	"github.com/atlas-desktop/trading-orchestrator/internal/statusapi"
	"github.com/atlas-desktop/trading-orchestrator/internal/strategy"
	"github.com/atlas-desktop/trading-orchestrator/pkg/types"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML/JSON config file")
	logLevel := flag.String("log-level", "", "Log level (debug, info, warn, error); overrides config")
	demo := flag.Bool("demo", false, "Run against an in-memory paper broker with a synthetic watchlist")
	maxTrades := flag.Int("max-trades", 0, "Override scheduler.max_trades_per_day; 0 keeps the config value")
	flag.Parse()

	switch cmd := flag.Arg(0); cmd {
	case "", "run":
	case "backtest":
		fmt.Println("backtesting is out of core scope")
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", cmd)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	logger := setupLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting trading orchestrator",
		zap.Bool("paper_trading", cfg.PaperTrading),
		zap.Bool("demo", *demo),
		zap.Strings("symbols", cfg.Scheduler.Symbols))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	promReg := prometheus.NewRegistry()
	metricsRegistry := metrics.NewRegistry(promReg)

	rng := mrand.New(mrand.NewSource(time.Now().UnixNano()))

	var masterKey [32]byte
	if _, err := rand.Read(masterKey[:]); err != nil {
		logger.Fatal("generating advisor master key", zap.Error(err))
	}

	gateway := buildAdvisorGateway(logger, cfg, masterKey, rng)
	if gateway != nil {
		gateway.WithMetrics(metricsRegistry)
	}

	registry := strategy.NewRegistry(logger)
	registry.Register(strategy.NewMACrossStrategy(12, 26), 0.3)
	registry.Register(strategy.NewRSIStrategy(14), 0.2)
	registry.Register(strategy.NewMACDStrategy(12, 26, 9), 0.2)
	if gateway != nil {
		registry.Register(strategy.NewAdvisorStrategy(logger, gateway, ""), 0.3)
	}
	combiner := strategy.NewCombiner(registry)

	riskMgr := risk.NewManager(logger, cfg.Risk)

	brokerage := buildBroker(logger, cfg, *demo, rng)

	execCfg := execution.DefaultConfig()
	engine := execution.NewEngine(logger, execCfg, brokerage, rng).
		WithMetrics(metricsRegistry)
	defer engine.Close()

	schedCfg := scheduler.DefaultConfig()
	schedCfg.TickInterval = cfg.Scheduler.TickInterval
	schedCfg.MaxTradesPerDay = cfg.Scheduler.MaxTradesPerDay
	schedCfg.GlobalBreakerFail = cfg.Scheduler.GlobalBreakerFail
	schedCfg.GlobalBreakerCooldown = cfg.Scheduler.GlobalBreakerCooldown
	schedCfg.Symbols = cfg.Scheduler.Symbols
	if *maxTrades > 0 {
		schedCfg.MaxTradesPerDay = *maxTrades
	}

	sched := scheduler.New(logger, schedCfg, brokerage, combiner, riskMgr, engine).
		WithMetrics(metricsRegistry)

	statusCfg := statusapi.Config{
		Host:           cfg.StatusAPI.Host,
		Port:           cfg.StatusAPI.Port,
		ReadTimeout:    cfg.StatusAPI.ReadTimeout,
		WriteTimeout:   cfg.StatusAPI.WriteTimeout,
		BroadcastEvery: 5 * time.Second,
	}
	statusSrv := statusapi.New(logger, statusCfg, sched, engine, promReg)
	if gateway != nil {
		statusSrv = statusSrv.WithAdvisor(gateway)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- sched.Run(ctx)
	}()
	go func() {
		errCh <- statusSrv.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pending := 2
	interrupted := false
	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		interrupted = true
		cancel()
	case err := <-errCh:
		pending--
		if err != nil {
			logger.Error("component exited with error", zap.Error(err))
			cancel()
			os.Exit(1)
		}
		cancel()
	}

	for i := 0; i < pending; i++ {
		if err := <-errCh; err != nil {
			logger.Error("component shutdown error", zap.Error(err))
		}
	}

	logger.Info("trading orchestrator stopped")
	if interrupted {
		os.Exit(130)
	}
}

// buildAdvisorGateway wires the advisor providers named in cfg.Advisors,
// sourcing each one's API key from its configured environment variable.
// A provider with no key set in its environment is registered with zero
// keys, so the gateway simply skips it during failover.
func buildAdvisorGateway(logger *zap.Logger, cfg *config.AppConfig, masterKey [32]byte, rng *mrand.Rand) *advisor.Gateway {
	if len(cfg.Advisors) == 0 {
		return nil
	}

	providers := make([]*advisor.Provider, 0, len(cfg.Advisors))
	for _, p := range cfg.Advisors {
		providers = append(providers, &advisor.Provider{
			Name:    p.Name,
			BaseURL: p.BaseURL,
			Model:   p.Model,
		})
	}

	gateway := advisor.NewGateway(logger, providers, 60, cfg.AdvisorCacheTTL, masterKey, rng)

	for _, p := range cfg.Advisors {
		secret := os.Getenv(p.APIKeyEnv)
		if secret == "" {
			logger.Warn("advisor provider has no API key set, skipping", zap.String("provider", p.Name), zap.String("env", p.APIKeyEnv))
			continue
		}
		key, err := advisor.EncryptSecret(p.Name+"-key", p.Name, secret, masterKey)
		if err != nil {
			logger.Error("failed to seal advisor key", zap.String("provider", p.Name), zap.Error(err))
			continue
		}
		if err := gateway.AddProviderKey(p.Name, key); err != nil {
			logger.Error("failed to register advisor key", zap.String("provider", p.Name), zap.Error(err))
		}
	}

	return gateway
}

// buildBroker returns a paper broker seeded with a synthetic watchlist
// in demo mode, a cash-only paper broker otherwise if cfg.PaperTrading,
// or a live REST adapter pointed at the exchange named by BROKER_BASE_URL
// and authenticated via BROKER_API_KEY/BROKER_API_SECRET.
func buildBroker(logger *zap.Logger, cfg *config.AppConfig, demo bool, rng *mrand.Rand) broker.Broker {
	if demo || cfg.PaperTrading {
		pb := broker.NewPaperBroker(logger, decimal.NewFromInt(100000), rng)
		if demo {
			pb.SetMarketOpen(true)
			seedDemoMarket(pb, cfg.Scheduler.Symbols)
		}
		return pb
	}

	return broker.NewRESTAdapter(
		logger,
		os.Getenv("BROKER_BASE_URL"),
		os.Getenv("BROKER_API_KEY"),
		os.Getenv("BROKER_API_SECRET"),
	)
}

func seedDemoMarket(pb *broker.PaperBroker, symbols []string) {
	if len(symbols) == 0 {
		symbols = []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}
	}
	pb.SeedWatchlist(symbols)

	price := decimal.NewFromInt(100)
	for _, symbol := range symbols {
		bars := make([]types.OHLCV, 0, 60)
		for i := 0; i < 60; i++ {
			bars = append(bars, types.OHLCV{
				Symbol: symbol,
				Open:   price,
				High:   price.Add(decimal.NewFromInt(1)),
				Low:    price.Sub(decimal.NewFromInt(1)),
				Close:  price,
				Volume: decimal.NewFromInt(10000),
			})
		}
		pb.SeedHistory(symbol, bars)
		pb.SeedQuote(types.Quote{Symbol: symbol, Price: price, Volume: decimal.NewFromInt(10000)})
	}
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
