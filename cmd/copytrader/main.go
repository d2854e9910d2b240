package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/cache"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/config"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/jupiter"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/marketdata"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/observability"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/rpc"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/server"
	sig "github.com/aman-zulfiqar/solana-copy-trader/internal/signal"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/stream"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/swapengine"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/switches"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/wallet"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// env bootstrap function
func loadEnv(logger *logrus.Logger) {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	envPath := filepath.Join(projectRoot, ".env")

	if err := godotenv.Load(envPath); err != nil {
		logger.Warnf("no .env file found at %s, using system environment variables", envPath)
	} else {
		logger.Infof("loaded .env from %s", envPath)
	}
}

// main wires the copy trader: webhook (or RPC polling) in, safety gate and
// executor in the middle, Redis/ClickHouse/metrics out.
func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	logger.SetLevel(logrus.InfoLevel)

	loadEnv(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("invalid configuration")
	}
	if cfg.DevMode {
		logger.SetLevel(logrus.DebugLevel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	// Operator wallet: signs and pays for every mirrored trade
	w, err := wallet.NewWallet(wallet.WalletConfig{
		RPCURL:            cfg.RPCUrl,
		Timeout:           cfg.HTTPTimeout,
		MaxRetries:        cfg.MaxRetries,
		RetryBackoff:      cfg.RetryBackoff,
		PrivateKey:        cfg.WalletPrivateKey,
		DefaultCommitment: cfg.WalletCommitment,
		Logger:            logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to load operator wallet")
	}
	defer w.Close()

	if cfg.OperatorWallet != "" && cfg.OperatorWallet != w.Address() {
		logger.WithFields(logrus.Fields{
			"configured": cfg.OperatorWallet,
			"key":        w.Address(),
		}).Fatal("OPERATOR_WALLET_ADDRESS does not match WALLET_PRIVATE_KEY")
	}
	if w.Address() == cfg.TrackedWallet {
		logger.Fatal("operator wallet must differ from the tracked wallet")
	}

	// Redis backs recent outcomes, dedupe, liquidity cache and switches
	rclient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rclient.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	tradeCache := cache.NewRedisCacheFromClient(rclient, logger)
	defer tradeCache.Close()

	switchStore, err := switches.NewStore(rclient, map[string]bool{
		switches.TradingEnabled: true,
		switches.DryRun:         cfg.DryRun,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create switch store")
	}

	// ClickHouse is optional; outcomes still reach logs, metrics and Redis
	var store swapengine.OutcomeStore
	if cfg.ClickHouseAddr != "" {
		ch, err := cache.NewClickHouseStore(ctx, cache.ClickHouseConfig{
			Addr:     cfg.ClickHouseAddr,
			Database: cfg.ClickHouseDatabase,
			Username: cfg.ClickHouseUsername,
			Password: cfg.ClickHousePassword,
			Logger:   logger,
		})
		if err != nil {
			logger.WithError(err).Warn("ClickHouse unavailable, outcomes will not be persisted")
		} else {
			store = ch
			defer ch.Close()
		}
	}

	metrics := observability.NewMetrics("", nil)

	jup := jupiter.NewClient(cfg.JupiterBaseURL, cfg.JupiterAPIKey)
	market, err := marketdata.NewService(marketdata.Config{
		DexScreener: marketdata.NewDexScreener(cfg.DexScreenerBaseURL),
		Jupiter:     jup,
		Cache:       tradeCache,
		Logger:      logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create market data service")
	}

	gate := swapengine.NewSafetyGate(swapengine.RiskConfig{
		Cooldown:         cfg.Cooldown,
		MaxTradesPerHour: cfg.MaxTradesPerHour,
		MaxDailyValueSOL: cfg.MaxDailyValueSOL,
		Blacklist:        cfg.Blacklist,
		MinLiquidityUSD:  cfg.MinLiquidityUSD,
		MaxPriceImpact:   cfg.MaxPriceImpact,
	}, market)

	sendOpts := wallet.DefaultSendOptions()
	executor := swapengine.NewExecutor(w, swapengine.NewJupiterBuilder(jup, cfg.SlippageBps), swapengine.ExecutorConfig{
		MaxSubmissionRetries: cfg.MaxSubmissionRetries,
		ConfirmTimeout:       cfg.ConfirmTimeout,
		BlockhashMaxAge:      cfg.BlockhashMaxAge,
		SendOptions:          &sendOpts,
		Logger:               logger,
	})

	engine, err := swapengine.NewEngine(swapengine.EngineConfig{
		TrackedWallet: cfg.TrackedWallet,
		Classifier:    sig.NewClassifier(cfg.SwapEventTypes),
		Gate:          gate,
		Sizer: swapengine.TradeSizer{
			MaxPerTradeSOL: cfg.MaxSOLPerTrade,
			MinReserveSOL:  cfg.MinSOLBalance,
		},
		Executor: executor,
		Balance:  w,
		Cache:    tradeCache,
		Store:    store,
		Switches: switchStore,
		Metrics:  metrics,
		Logger:   logger,
		DryRun:   cfg.DryRun,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create engine")
	}

	srv, err := server.NewServer(server.ServerDeps{
		Handlers: &server.Handlers{
			Engine:   engine,
			Cache:    tradeCache,
			Switches: switchStore,
			DevMode:  cfg.DevMode,
			Logger:   logger,
		},
		Metrics: metrics.Handler(),
		Config: server.ServerConfig{
			Addr:          cfg.APIAddr,
			DevMode:       cfg.DevMode,
			APIKey:        cfg.APIKey,
			WebhookSecret: cfg.WebhookSecret,
			Logger:        logger,
		},
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to create http server")
	}

	var poller *stream.RPCPoller
	if cfg.StreamProvider == "rpc" {
		poller, err = stream.NewRPCPoller(stream.RPCPollerConfig{
			RPCClient: rpc.NewClient(rpc.ClientConfig{
				BaseURL:      cfg.RPCUrl,
				Timeout:      cfg.HTTPTimeout,
				MaxRetries:   cfg.MaxRetries,
				RetryBackoff: cfg.RetryBackoff,
				Logger:       logger,
			}),
			TrackedWallet: cfg.TrackedWallet,
			PollInterval:  cfg.PollInterval,
			Logger:        logger,
		})
		if err != nil {
			logger.WithError(err).Fatal("failed to create RPC poller")
		}
		go func() {
			err := poller.Start(ctx, func(ctx context.Context, events []models.TransactionEvent) {
				engine.ProcessEvents(ctx, events)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.WithError(err).Error("RPC poller stopped")
			}
		}()
	}

	go func() {
		<-sigCh
		logger.Info("shutting down")
		if poller != nil {
			_ = poller.Stop()
		}
		cancel()
		_ = srv.Shutdown(context.Background())
	}()

	logger.WithFields(logrus.Fields{
		"addr":     cfg.APIAddr,
		"tracked":  cfg.TrackedWallet,
		"operator": w.Address(),
		"stream":   cfg.StreamProvider,
		"dry_run":  cfg.DryRun,
	}).Info("copy trader starting")

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Fatal("api server failed")
	}

	if err := srv.WaitClosed(context.Background()); err != nil {
		logger.WithError(err).Warn("server did not close cleanly")
	}

	// Let accepted events finish before closing the stores they report to
	drainCtx, drainCancel := context.WithTimeout(context.Background(), cfg.ConfirmTimeout+10*time.Second)
	defer drainCancel()
	if err := engine.Shutdown(drainCtx); err != nil {
		logger.WithError(err).Warn("engine did not drain before timeout")
	}
	logger.Info("stopped")
}
