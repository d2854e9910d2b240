package swapengine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MarketData provides the external inputs of the liquidity and price impact checks
type MarketData interface {
	// GetLiquidity returns pooled liquidity for mint in USD
	GetLiquidity(ctx context.Context, mint string) (decimal.Decimal, error)
	// EstimatePriceImpact returns the expected impact of buying mint with
	// lamports of SOL, as a fraction (0.01 = 1%)
	EstimatePriceImpact(ctx context.Context, mint string, lamports uint64) (decimal.Decimal, error)
}

// RiskConfig defines the safety gate limits
type RiskConfig struct {
	// Spacing between committed trades
	Cooldown time.Duration

	// Fixed windows aligned to the clock hour and the UTC day.
	// Zero disables the corresponding cap.
	MaxTradesPerHour int
	MaxDailyValueSOL decimal.Decimal

	// Mints that are never bought (exact match)
	Blacklist []string

	// Market checks. Zero MinLiquidityUSD accepts any liquidity,
	// zero MaxPriceImpact skips the impact check.
	MinLiquidityUSD decimal.Decimal
	MaxPriceImpact  decimal.Decimal
}

// DefaultRiskConfig returns conservative gate settings
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{
		Cooldown:         60 * time.Second,
		MaxTradesPerHour: 10,
		MaxDailyValueSOL: decimal.NewFromInt(5),
		MinLiquidityUSD:  decimal.NewFromInt(50_000),
		MaxPriceImpact:   decimal.RequireFromString("0.03"),
	}
}

// SafetyGate enforces cooldown, trade caps, blacklist, liquidity and price
// impact. All SafetyState mutation happens inside Evaluate under mu.
type SafetyGate struct {
	config    RiskConfig
	blacklist map[string]struct{}
	market    MarketData
	now       func() time.Time

	mu    sync.Mutex
	state SafetyState
}

// NewSafetyGate creates a gate with the given limits and market data source
func NewSafetyGate(config RiskConfig, market MarketData) *SafetyGate {
	bl := make(map[string]struct{}, len(config.Blacklist))
	for _, m := range config.Blacklist {
		if m = strings.TrimSpace(m); m != "" {
			bl[m] = struct{}{}
		}
	}
	return &SafetyGate{
		config:    config,
		blacklist: bl,
		market:    market,
		now:       time.Now,
	}
}

// WithClock replaces the wall clock, for tests
func (g *SafetyGate) WithClock(now func() time.Time) *SafetyGate {
	if now != nil {
		g.now = now
	}
	return g
}

func (g *SafetyGate) Config() RiskConfig { return g.config }

// IsBlacklisted reports whether mint is on the configured blacklist
func (g *SafetyGate) IsBlacklisted(mint string) bool {
	_, ok := g.blacklist[mint]
	return ok
}

// Evaluate runs every check in order and, when all pass, commits the trade
// to SafetyState. The first failing check decides the denial reason.
//
// The market lookups run without the lock. Checks 1-3 are re-run against
// the current state right before the commit, so concurrent candidates can
// never both commit past a cap.
func (g *SafetyGate) Evaluate(ctx context.Context, c Candidate) TradeDecision {
	g.mu.Lock()
	d := g.checkLimitsLocked(g.now(), c.AmountSOL)
	g.mu.Unlock()
	if !d.Allowed {
		return d
	}

	if g.IsBlacklisted(c.Mint) {
		return deny(ReasonBlacklisted, fmt.Sprintf("mint %s is blacklisted", c.Mint), nil)
	}

	if d := g.checkMarket(ctx, c); !d.Allowed {
		return d
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if d := g.checkLimitsLocked(now, c.AmountSOL); !d.Allowed {
		return d
	}

	g.state.LastTradeAt = now
	g.state.TradesThisHour++
	g.state.ValueTradedToday = g.state.ValueTradedToday.Add(c.AmountSOL)

	return TradeDecision{Allowed: true, Reason: ReasonOK}
}

// checkLimitsLocked rolls the windows and runs the cooldown, hourly and daily
// checks. Caller must hold mu.
func (g *SafetyGate) checkLimitsLocked(now time.Time, amount decimal.Decimal) TradeDecision {
	g.rollLocked(now)

	if g.config.Cooldown > 0 && !g.state.LastTradeAt.IsZero() {
		if elapsed := now.Sub(g.state.LastTradeAt); elapsed < g.config.Cooldown {
			return deny(ReasonCooldown, fmt.Sprintf("last trade %s ago, cooldown %s",
				elapsed.Truncate(time.Millisecond), g.config.Cooldown), nil)
		}
	}

	if g.config.MaxTradesPerHour > 0 && g.state.TradesThisHour >= g.config.MaxTradesPerHour {
		return deny(ReasonHourlyLimit, fmt.Sprintf("%d trades this hour, max %d",
			g.state.TradesThisHour, g.config.MaxTradesPerHour), nil)
	}

	if limit := g.config.MaxDailyValueSOL; limit.IsPositive() {
		used := g.state.ValueTradedToday
		if used.GreaterThanOrEqual(limit) || used.Add(amount).GreaterThan(limit) {
			return deny(ReasonDailyLimit, fmt.Sprintf("daily value used %s + %s > %s SOL",
				used, amount, limit), nil)
		}
	}

	return TradeDecision{Allowed: true, Reason: ReasonOK}
}

func (g *SafetyGate) rollLocked(now time.Time) {
	if start, reset := RollWindow(g.state.HourWindowStart, now, time.Hour); reset {
		g.state.HourWindowStart = start
		g.state.TradesThisHour = 0
	}
	if start, reset := RollWindow(g.state.DayWindowStart, now, 24*time.Hour); reset {
		g.state.DayWindowStart = start
		g.state.ValueTradedToday = decimal.Zero
	}
}

// checkMarket runs the liquidity and price impact checks.
// Any market data failure denies.
func (g *SafetyGate) checkMarket(ctx context.Context, c Candidate) TradeDecision {
	if g.market == nil {
		return deny(ReasonLowLiquidity, "no market data source", ErrMarketDataUnavailable)
	}

	liq, err := g.market.GetLiquidity(ctx, c.Mint)
	if err != nil {
		return deny(ReasonLowLiquidity, "liquidity lookup failed",
			fmt.Errorf("%w: liquidity: %v", ErrMarketDataUnavailable, err))
	}
	if liq.LessThan(g.config.MinLiquidityUSD) {
		return deny(ReasonLowLiquidity, fmt.Sprintf("liquidity $%s below floor $%s",
			liq.StringFixed(2), g.config.MinLiquidityUSD), nil)
	}

	if !g.config.MaxPriceImpact.IsPositive() {
		return TradeDecision{Allowed: true, Reason: ReasonOK}
	}

	impact, err := g.market.EstimatePriceImpact(ctx, c.Mint, SOLToLamports(c.AmountSOL))
	if err != nil {
		return deny(ReasonHighPriceImpact, "price impact estimate failed",
			fmt.Errorf("%w: price impact: %v", ErrMarketDataUnavailable, err))
	}
	if impact.GreaterThan(g.config.MaxPriceImpact) {
		return deny(ReasonHighPriceImpact, fmt.Sprintf("price impact %s%% exceeds max %s%%",
			impact.Shift(2).StringFixed(2), g.config.MaxPriceImpact.Shift(2).StringFixed(2)), nil)
	}

	return TradeDecision{Allowed: true, Reason: ReasonOK}
}

// Snapshot returns the current state as seen at now, with expired windows
// shown as reset. It does not mutate the gate.
func (g *SafetyGate) Snapshot() SafetyState {
	g.mu.Lock()
	s := g.state
	g.mu.Unlock()

	now := g.now()
	if start, reset := RollWindow(s.HourWindowStart, now, time.Hour); reset {
		s.HourWindowStart = start
		s.TradesThisHour = 0
	}
	if start, reset := RollWindow(s.DayWindowStart, now, 24*time.Hour); reset {
		s.DayWindowStart = start
		s.ValueTradedToday = decimal.Zero
	}
	return s
}

func deny(reason Reason, detail string, err error) TradeDecision {
	return TradeDecision{Allowed: false, Reason: reason, Detail: detail, Err: err}
}
