package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/config"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/jupiter"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/marketdata"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/swapengine"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/wallet"
	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func loadEnv() {
	_, filename, _, _ := runtime.Caller(0)
	projectRoot := filepath.Join(filepath.Dir(filename), "../..")
	_ = godotenv.Load(filepath.Join(projectRoot, ".env"))
}

// probe shows what the copy trader would do if the tracked wallet bought
// -mint right now: operator balance, trade size, market data and the gate
// verdict. Nothing is signed or sent.
func main() {
	loadEnv()

	mint := flag.String("mint", "", "token mint to probe")
	timeout := flag.Duration("timeout", 20*time.Second, "overall timeout")
	flag.Parse()

	if *mint == "" {
		fmt.Println("missing -mint")
		os.Exit(2)
	}
	if _, err := solana.PublicKeyFromBase58(*mint); err != nil {
		fmt.Println("invalid -mint:", err)
		os.Exit(2)
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	cfg := config.Load()

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
		fmt.Println("failed to load wallet:", err)
		os.Exit(1)
	}
	defer w.Close()

	balance, err := w.GetBalance(ctx, w.PublicKey())
	if err != nil {
		fmt.Println("balance failed:", err)
		os.Exit(1)
	}
	fmt.Printf("operator=%s balance_sol=%s\n", w.Address(), swapengine.LamportsToSOL(balance))

	sizer := swapengine.TradeSizer{MaxPerTradeSOL: cfg.MaxSOLPerTrade, MinReserveSOL: cfg.MinSOLBalance}
	amount, lamports, err := sizer.SizeLamports(balance)
	if err != nil {
		fmt.Println("size: no trade:", err)
		os.Exit(0)
	}
	fmt.Printf("size_sol=%s lamports=%d\n", amount, lamports)

	market, err := marketdata.NewService(marketdata.Config{
		DexScreener: marketdata.NewDexScreener(cfg.DexScreenerBaseURL),
		Jupiter:     jupiter.NewClient(cfg.JupiterBaseURL, cfg.JupiterAPIKey),
		Logger:      logger,
	})
	if err != nil {
		fmt.Println("market data:", err)
		os.Exit(1)
	}

	if liq, err := market.GetLiquidity(ctx, *mint); err != nil {
		fmt.Println("liquidity failed:", err)
	} else {
		fmt.Printf("mint=%s liquidity_usd=%s\n", constants.ShortMint(*mint), liq.StringFixed(2))
	}
	if impact, err := market.EstimatePriceImpact(ctx, *mint, lamports); err != nil {
		fmt.Println("price impact failed:", err)
	} else {
		fmt.Printf("price_impact=%s\n", impact.StringFixed(4))
	}

	// A fresh gate has no history, so only blacklist and market checks can deny
	gate := swapengine.NewSafetyGate(swapengine.RiskConfig{
		Cooldown:         cfg.Cooldown,
		MaxTradesPerHour: cfg.MaxTradesPerHour,
		MaxDailyValueSOL: cfg.MaxDailyValueSOL,
		Blacklist:        cfg.Blacklist,
		MinLiquidityUSD:  cfg.MinLiquidityUSD,
		MaxPriceImpact:   cfg.MaxPriceImpact,
	}, market)
	d := gate.Evaluate(ctx, swapengine.Candidate{
		Signal:    models.TradeSignal{Side: models.SideBuy, Mint: *mint},
		Mint:      *mint,
		AmountSOL: amount,
	})
	fmt.Printf("allowed=%v reason=%s detail=%q\n", d.Allowed, d.Reason, d.Detail)
	if d.Err != nil {
		fmt.Println("market error:", d.Err)
	}
}
