package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/KalyCoinProject/kusd-keeper/internal/chain"
	"github.com/KalyCoinProject/kusd-keeper/internal/config"
	"github.com/KalyCoinProject/kusd-keeper/internal/cooldown"
	"github.com/KalyCoinProject/kusd-keeper/internal/execution"
	"github.com/KalyCoinProject/kusd-keeper/internal/feed"
	"github.com/KalyCoinProject/kusd-keeper/internal/keeper"
	"github.com/KalyCoinProject/kusd-keeper/internal/metrics"
	"github.com/KalyCoinProject/kusd-keeper/internal/oracle"
	"github.com/KalyCoinProject/kusd-keeper/internal/risk"
	"github.com/KalyCoinProject/kusd-keeper/internal/sim"
	"github.com/KalyCoinProject/kusd-keeper/internal/state"
	"github.com/KalyCoinProject/kusd-keeper/internal/state/sqlite"
	"github.com/KalyCoinProject/kusd-keeper/internal/venue"
)

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log.Level)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Warn("received signal, shutting down...")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, logger)

	pk := cfg.Chain.WalletPK
	if pk == "" {
		pk = os.Getenv("KUSD_KEEPER_WALLET_PK")
	}
	client, err := chain.Dial(ctx, cfg.Chain.RPCHTTP, pk, cfg.Chain.GasLimit, logger)
	if err != nil {
		logger.Fatal("chain client init failed", zap.Error(err))
	}

	gem, err := venue.NewERC20(client, common.HexToAddress(cfg.Venues.Collateral))
	if err != nil {
		logger.Fatal("collateral token init failed", zap.Error(err))
	}
	kusd, err := venue.NewERC20(client, common.HexToAddress(cfg.Venues.Stablecoin))
	if err != nil {
		logger.Fatal("stablecoin token init failed", zap.Error(err))
	}
	psm, err := venue.NewPSM(client, common.HexToAddress(cfg.Venues.PSM))
	if err != nil {
		logger.Fatal("psm init failed", zap.Error(err))
	}
	router, err := venue.NewRouter(client, common.HexToAddress(cfg.Venues.Router))
	if err != nil {
		logger.Fatal("router init failed", zap.Error(err))
	}

	gemDec, err := gem.Decimals(ctx)
	if err != nil {
		logger.Fatal("read collateral decimals failed", zap.Error(err))
	}
	kusdDec, err := kusd.Decimals(ctx)
	if err != nil {
		logger.Fatal("read stablecoin decimals failed", zap.Error(err))
	}

	var store state.Store
	if cfg.State.SQLitePath != "" {
		store, err = sqlite.New(cfg.State.SQLitePath)
		if err != nil {
			logger.Fatal("state store init failed", zap.Error(err))
		}
	} else {
		store = state.NewMemory()
	}
	defer store.Close()

	deps := keeper.Deps{
		Price:    oracle.New(router, gem.Address(), kusd.Address(), gemDec, kusdDec, logger),
		Sim:      sim.New(cfg, router, psm, gem.Address(), kusd.Address(), gemDec, kusdDec, logger),
		Gate:     risk.NewEngine(cfg),
		Engine:   execution.NewExecutor(cfg, gem, kusd, psm, router, client.From(), gemDec, kusdDec, logger),
		Cooldown: cooldown.New(store, cfg.Cooldown()),
		Gem:      gem,
		Owner:    client.From(),
	}
	if cfg.Redis.Addr != "" {
		pub := feed.NewPublisher(cfg)
		defer pub.Close()
		deps.Pub = pub
	}
	k := keeper.New(cfg, deps, logger)

	logger.Info("kusd-keeper started",
		zap.String("wallet", client.From().Hex()),
		zap.String("router", cfg.Venues.Router),
		zap.String("pair", cfg.Venues.Pair),
		zap.Int("collateral_decimals", gemDec),
		zap.Int("stablecoin_decimals", kusdDec),
		zap.Bool("dry_run", cfg.DryRun),
		zap.Duration("check_interval", cfg.CheckInterval()),
	)

	t := time.NewTicker(cfg.CheckInterval())
	defer t.Stop()
	for {
		res := k.Check(ctx)
		if res.Executed {
			logger.Info("arbitrage executed", zap.String("profit", res.Profit.String()))
		}
		select {
		case <-ctx.Done():
			logger.Info("kusd-keeper finished")
			return
		case <-t.C:
		}
	}
}
