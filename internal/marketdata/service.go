// Package marketdata answers the safety gate's liquidity and price impact questions.
package marketdata

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/jupiter"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// LiquidityCache is the short-lived liquidity cache; *cache.RedisCache implements it
type LiquidityCache interface {
	GetLiquidity(ctx context.Context, mint string) (decimal.Decimal, bool, error)
	SetLiquidity(ctx context.Context, mint string, usd decimal.Decimal, ttl time.Duration) error
}

type Config struct {
	DexScreener *DexScreener
	Jupiter     *jupiter.Client
	Cache       LiquidityCache // optional
	CacheTTL    time.Duration
	Logger      *logrus.Logger

	// FlightTimeout bounds one shared DexScreener lookup
	FlightTimeout time.Duration
}

const defaultFlightTimeout = 10 * time.Second

// Service implements swapengine.MarketData
type Service struct {
	dex           *DexScreener
	jup           *jupiter.Client
	cache         LiquidityCache
	ttl           time.Duration
	flightTimeout time.Duration
	logger        *logrus.Logger
	flights       singleflight.Group
}

func NewService(cfg Config) (*Service, error) {
	if cfg.DexScreener == nil {
		return nil, fmt.Errorf("dexscreener client is nil")
	}
	if cfg.Jupiter == nil {
		return nil, fmt.Errorf("jupiter client is nil")
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = constants.LiquidityCacheTTL
	}
	if cfg.FlightTimeout <= 0 {
		cfg.FlightTimeout = defaultFlightTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Service{
		dex:           cfg.DexScreener,
		jup:           cfg.Jupiter,
		cache:         cfg.Cache,
		ttl:           cfg.CacheTTL,
		flightTimeout: cfg.FlightTimeout,
		logger:        cfg.Logger,
	}, nil
}

// GetLiquidity returns USD liquidity for mint. Cache errors only cost a
// lookup; concurrent misses for the same mint share one request.
func (s *Service) GetLiquidity(ctx context.Context, mint string) (decimal.Decimal, error) {
	if s.cache != nil {
		v, ok, err := s.cache.GetLiquidity(ctx, mint)
		if err != nil {
			s.logger.WithError(err).WithField("mint", mint).Warn("liquidity cache read failed")
		} else if ok {
			return v, nil
		}
	}

	// the shared lookup outlives any single caller's cancellation
	v, err, _ := s.flights.Do(mint, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.flightTimeout)
		defer cancel()
		return s.dex.TokenLiquidityUSD(fctx, mint)
	})
	if err != nil {
		return decimal.Zero, err
	}
	liq := v.(decimal.Decimal)

	if s.cache != nil {
		if err := s.cache.SetLiquidity(ctx, mint, liq, s.ttl); err != nil {
			s.logger.WithError(err).WithField("mint", mint).Warn("liquidity cache write failed")
		}
	}
	return liq, nil
}

// EstimatePriceImpact quotes a SOL -> mint ExactIn swap of lamports and
// returns Jupiter's price impact as a fraction
func (s *Service) EstimatePriceImpact(ctx context.Context, mint string, lamports uint64) (decimal.Decimal, error) {
	if lamports == 0 {
		return decimal.Zero, fmt.Errorf("amount is zero")
	}
	q, err := s.jup.Quote(ctx, jupiter.QuoteRequest{
		InputMint:  constants.WrappedSOLMint,
		OutputMint: mint,
		Amount:     strconv.FormatUint(lamports, 10),
		SwapMode:   "ExactIn",
	})
	if err != nil {
		return decimal.Zero, err
	}
	return q.PriceImpact()
}
