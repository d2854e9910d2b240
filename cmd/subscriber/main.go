package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/cache"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/config"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

// subscriber tails copy-trade outcomes published by the copytrader daemon
func main() {
	loadEnv()

	pattern := flag.String("pattern", "", "channel pattern, e.g. copytrade:outcomes:* (default: the main outcomes channel)")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down subscriber")
		cancel()
	}()

	cfg := config.Load()
	rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Logger:   logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("failed to connect to Redis")
	}
	defer rc.Close()

	var ch <-chan *models.TradeRecord
	if *pattern != "" {
		ch, err = rc.PSubscribeTrades(ctx, *pattern)
	} else {
		ch, err = rc.SubscribeTrades(ctx)
	}
	if err != nil {
		logger.WithError(err).Fatal("subscribe failed")
	}

	logger.Info("subscriber running, press Ctrl+C to stop")

	for rec := range ch {
		entry := logger.WithFields(logrus.Fields{
			"source": rec.SourceSignature,
			"side":   rec.Side,
			"mint":   constants.ShortMint(rec.Mint),
			"stage":  rec.Stage,
		})
		if rec.Reason != "" {
			entry = entry.WithField("reason", rec.Reason)
		}
		if rec.Status != "" {
			entry = entry.WithFields(logrus.Fields{
				"status":     rec.Status,
				"amount_sol": rec.AmountSOL,
				"signature":  rec.Signature,
				"attempts":   rec.Attempts,
			})
		}
		if rec.Error != "" {
			entry = entry.WithField("error", rec.Error)
		}
		entry.Info("outcome")
	}
}
