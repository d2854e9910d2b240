package swapengine

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/observability"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/signal"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/switches"
	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	tracked  string
	pool     string
	engine   *Engine
	gate     *SafetyGate
	market   *fakeMarket
	chain    *fakeChain
	exec     *fakeExecutor
	cache    *memCache
	store    *memStore
	metrics  *observability.Metrics
	switches staticSwitches
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		tracked:  solana.NewWallet().PublicKey().String(),
		pool:     solana.NewWallet().PublicKey().String(),
		market:   goodMarket(),
		chain:    newFakeChain(),
		exec:     &fakeExecutor{},
		cache:    newMemCache(),
		store:    &memStore{},
		metrics:  observability.NewMetrics("test", nil),
		switches: staticSwitches{switches.TradingEnabled: true},
	}
	f.gate = NewSafetyGate(testRiskConfig(), f.market)

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)

	engine, err := NewEngine(EngineConfig{
		TrackedWallet: f.tracked,
		Gate:          f.gate,
		Sizer:         TradeSizer{MaxPerTradeSOL: dec("0.5"), MinReserveSOL: dec("0.1")},
		Executor:      f.exec,
		Balance:       f.chain,
		Cache:         f.cache,
		Store:         f.store,
		Switches:      f.switches,
		Metrics:       f.metrics,
		Logger:        logger,
		Concurrency:   1,
	})
	require.NoError(t, err)
	f.engine = engine
	return f
}

func (f *engineFixture) buy(sig string) models.TransactionEvent {
	return models.TransactionEvent{
		Signature: sig,
		Type:      "SWAP",
		NativeTransfers: []models.NativeTransfer{
			{FromUserAccount: f.tracked, ToUserAccount: f.pool, Amount: 1_000_000_000},
		},
		TokenTransfers: []models.TokenTransfer{
			{Mint: testMint, FromUserAccount: f.pool, ToUserAccount: f.tracked, TokenAmount: dec("12345")},
		},
	}
}

func (f *engineFixture) transfer(sig string) models.TransactionEvent {
	return models.TransactionEvent{
		Signature: sig,
		Type:      "TRANSFER",
		NativeTransfers: []models.NativeTransfer{
			{FromUserAccount: f.tracked, ToUserAccount: f.pool, Amount: 10_000},
		},
	}
}

func TestNewEngine_Validation(t *testing.T) {
	gate := NewSafetyGate(testRiskConfig(), goodMarket())
	_, err := NewEngine(EngineConfig{Gate: gate, Executor: &fakeExecutor{}, Balance: newFakeChain()})
	assert.Error(t, err)
	_, err = NewEngine(EngineConfig{TrackedWallet: "not-a-key", Gate: gate, Executor: &fakeExecutor{}, Balance: newFakeChain()})
	assert.Error(t, err)
	_, err = NewEngine(EngineConfig{TrackedWallet: solana.NewWallet().PublicKey().String(), Executor: &fakeExecutor{}, Balance: newFakeChain()})
	assert.Error(t, err)
}

func TestEngine_BuyAndTransferBatch(t *testing.T) {
	f := newEngineFixture(t)

	outcomes := f.engine.ProcessEvents(context.Background(), []models.TransactionEvent{
		f.buy("sigBuy"),
		f.transfer("sigTransfer"),
	})
	require.Len(t, outcomes, 2)

	buy := outcomes[0]
	assert.Equal(t, StageExecuted, buy.Stage)
	assert.Equal(t, models.SideBuy, buy.Signal.Side)
	assert.Equal(t, testMint, buy.Signal.Mint)
	assert.True(t, buy.AmountSOL.Equal(dec("0.5")))
	require.NotNil(t, buy.Result)
	assert.Equal(t, StatusConfirmed, buy.Result.Status)

	ignored := outcomes[1]
	assert.Equal(t, StageClassified, ignored.Stage)
	assert.Equal(t, models.SideIgnore, ignored.Signal.Side)
	assert.Nil(t, ignored.Decision)

	// the TRANSFER never reached the gate
	assert.Equal(t, int32(1), f.market.liquidityCalls.Load())
	assert.Equal(t, 1, f.gate.Snapshot().TradesThisHour)
	assert.Equal(t, 1, f.exec.count())

	require.Len(t, f.store.rows, 1)
	assert.Equal(t, "executed", f.store.rows[0].Stage)
	assert.Equal(t, "CONFIRMED", f.store.rows[0].Status)
	assert.Len(t, f.cache.recent, 1)
	assert.Len(t, f.cache.published, 1)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Signals.WithLabelValues("BUY")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Signals.WithLabelValues("IGNORE")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Executions.WithLabelValues("CONFIRMED", "none")))
}

func TestEngine_SecondBuyHitsCooldown(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	first := f.engine.ProcessEvents(ctx, []models.TransactionEvent{f.buy("sig1")})
	second := f.engine.ProcessEvents(ctx, []models.TransactionEvent{f.buy("sig2")})

	assert.Equal(t, StageExecuted, first[0].Stage)
	assert.Equal(t, StageDenied, second[0].Stage)
	require.NotNil(t, second[0].Decision)
	assert.Equal(t, ReasonCooldown, second[0].Decision.Reason)
	assert.Equal(t, 1, f.exec.count())

	require.Len(t, f.store.rows, 2)
	assert.Equal(t, "denied", f.store.rows[1].Stage)
	assert.Equal(t, "COOLDOWN", f.store.rows[1].Reason)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Decisions.WithLabelValues("COOLDOWN")))
}

func TestEngine_SellIsReportedNotMirrored(t *testing.T) {
	f := newEngineFixture(t)
	sell := models.TransactionEvent{
		Signature: "sigSell",
		Type:      "SWAP",
		NativeTransfers: []models.NativeTransfer{
			{FromUserAccount: f.pool, ToUserAccount: f.tracked, Amount: 3_000_000_000},
		},
		TokenTransfers: []models.TokenTransfer{
			{Mint: testMint, FromUserAccount: f.tracked, ToUserAccount: f.pool, TokenAmount: dec("500")},
		},
	}

	out := f.engine.ProcessEvents(context.Background(), []models.TransactionEvent{sell})

	assert.Equal(t, StageClassified, out[0].Stage)
	assert.Equal(t, models.SideSell, out[0].Signal.Side)
	assert.Zero(t, f.exec.count())
	assert.Zero(t, f.market.liquidityCalls.Load())
	require.Len(t, f.store.rows, 1)
	assert.Equal(t, "SELL", f.store.rows[0].Side)
}

func TestEngine_KillSwitch(t *testing.T) {
	f := newEngineFixture(t)
	f.switches[switches.TradingEnabled] = false

	out := f.engine.ProcessEvents(context.Background(), []models.TransactionEvent{f.buy("sig")})

	assert.Equal(t, StageSkipped, out[0].Stage)
	assert.Equal(t, SkipKillSwitch, out[0].SkipCause)
	assert.Zero(t, f.exec.count())
	assert.Zero(t, f.gate.Snapshot().TradesThisHour)
	assert.Empty(t, f.cache.seen, "a halted buy must not burn its signature")
}

func TestEngine_DryRunCommitsGateOnly(t *testing.T) {
	f := newEngineFixture(t)
	f.switches[switches.DryRun] = true

	out := f.engine.ProcessEvents(context.Background(), []models.TransactionEvent{f.buy("sig")})

	assert.Equal(t, StageDryRun, out[0].Stage)
	assert.Zero(t, f.exec.count())
	assert.Equal(t, 1, f.gate.Snapshot().TradesThisHour)
	require.Len(t, f.store.rows, 1)
	assert.True(t, f.store.rows[0].DryRun)
	assert.True(t, f.engine.Status(context.Background()).DryRun)
}

func TestEngine_DuplicateDeliveryIsSkipped(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.engine.ProcessEvents(ctx, []models.TransactionEvent{f.buy("same")})
	out := f.engine.ProcessEvents(ctx, []models.TransactionEvent{f.buy("same")})

	assert.Equal(t, StageSkipped, out[0].Stage)
	assert.Equal(t, SkipDuplicate, out[0].SkipCause)
	assert.Equal(t, 1, f.exec.count())
}

func TestEngine_InsufficientBalanceSkipsGate(t *testing.T) {
	f := newEngineFixture(t)
	f.chain.balance = 100_000_000 // exactly the reserve

	out := f.engine.ProcessEvents(context.Background(), []models.TransactionEvent{f.buy("sig")})

	assert.Equal(t, StageSkipped, out[0].Stage)
	assert.Equal(t, SkipInsufficientBalance, out[0].SkipCause)
	assert.ErrorIs(t, out[0].Err, ErrInsufficientBalance)
	assert.Zero(t, f.market.liquidityCalls.Load())
	assert.Equal(t, "insufficient_balance", f.store.rows[0].Reason)
}

func TestEngine_BalanceErrorSkips(t *testing.T) {
	f := newEngineFixture(t)
	f.chain.balanceErr = fmt.Errorf("rpc down")

	out := f.engine.ProcessEvents(context.Background(), []models.TransactionEvent{f.buy("sig")})

	assert.Equal(t, SkipBalanceUnavailable, out[0].SkipCause)
	assert.Zero(t, f.exec.count())
}

func TestEngine_RedeliveryAfterBalanceErrorIsMirrored(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	f.chain.mu.Lock()
	f.chain.balanceErr = fmt.Errorf("rpc down")
	f.chain.mu.Unlock()
	out := f.engine.ProcessEvents(ctx, []models.TransactionEvent{f.buy("retry")})
	require.Equal(t, SkipBalanceUnavailable, out[0].SkipCause)

	f.chain.mu.Lock()
	f.chain.balanceErr = nil
	f.chain.mu.Unlock()
	out = f.engine.ProcessEvents(ctx, []models.TransactionEvent{f.buy("retry")})

	assert.Equal(t, StageExecuted, out[0].Stage)
	assert.Equal(t, 1, f.exec.count())

	out = f.engine.ProcessEvents(ctx, []models.TransactionEvent{f.buy("retry")})
	assert.Equal(t, SkipDuplicate, out[0].SkipCause)
}

func TestEngine_MarketOutageDeniesWithCause(t *testing.T) {
	f := newEngineFixture(t)
	f.market.liquidityErr = fmt.Errorf("dexscreener timeout")

	out := f.engine.ProcessEvents(context.Background(), []models.TransactionEvent{f.buy("sig")})

	assert.Equal(t, StageDenied, out[0].Stage)
	assert.ErrorIs(t, out[0].Err, ErrMarketDataUnavailable)
	assert.Contains(t, f.store.rows[0].Error, "market data unavailable")
}

func TestEngine_FailedExecutionIsRecorded(t *testing.T) {
	f := newEngineFixture(t)
	f.exec.fail = ErrExpired

	out := f.engine.ProcessEvents(context.Background(), []models.TransactionEvent{f.buy("sig")})

	require.NotNil(t, out[0].Result)
	assert.Equal(t, StatusFailed, out[0].Result.Status)
	assert.Equal(t, "FAILED", f.store.rows[0].Status)
	assert.Contains(t, f.store.rows[0].Error, "expired")
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Executions.WithLabelValues("FAILED", "EXPIRED")))
}

func TestEngine_HandleJSON(t *testing.T) {
	f := newEngineFixture(t)
	body := fmt.Sprintf(`[
		{"signature":"sigA","type":"SWAP","timestamp":1767225600,
		 "nativeTransfers":[{"fromUserAccount":%q,"toUserAccount":%q,"amount":1000000000}],
		 "tokenTransfers":[{"mint":%q,"fromUserAccount":%q,"toUserAccount":%q,"tokenAmount":42.5}]},
		{"type":"SWAP"},
		{"signature":"sigB","type":"TRANSFER","nativeTransfers":[]}
	]`, f.tracked, f.pool, testMint, f.pool, f.tracked)

	out, err := f.engine.HandleJSON(context.Background(), []byte(body))
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, StageExecuted, out[0].Stage)
	assert.Equal(t, StageClassified, out[1].Stage)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EventsDropped))

	_, err = f.engine.HandleJSON(context.Background(), []byte(`   `))
	assert.ErrorIs(t, err, signal.ErrInvalidPayload)
	_, err = f.engine.HandlePayload(context.Background(), "text")
	assert.ErrorIs(t, err, signal.ErrInvalidPayload)
}

func TestEngine_AcceptRunsInBackground(t *testing.T) {
	f := newEngineFixture(t)
	body := fmt.Sprintf(`{"signature":"bg","type":"SWAP",
		"nativeTransfers":[{"fromUserAccount":%q,"toUserAccount":%q,"amount":1000000000}],
		"tokenTransfers":[{"mint":%q,"fromUserAccount":%q,"toUserAccount":%q,"tokenAmount":"7"}]}`,
		f.tracked, f.pool, testMint, f.pool, f.tracked)

	n, err := f.engine.Accept([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.engine.Shutdown(ctx))
	assert.Equal(t, 1, f.exec.count())

	_, err = f.engine.Accept([]byte(`[]`))
	assert.ErrorIs(t, err, signal.ErrInvalidPayload)
}

func TestEngine_Status(t *testing.T) {
	f := newEngineFixture(t)
	f.engine.ProcessEvents(context.Background(), []models.TransactionEvent{f.buy("sig")})

	st := f.engine.Status(context.Background())
	assert.Equal(t, f.tracked, st.TrackedWallet)
	assert.Equal(t, f.chain.PublicKey().String(), st.Operator)
	assert.False(t, st.DryRun)
	assert.Equal(t, 1, st.Safety.TradesThisHour)
	assert.True(t, st.Safety.ValueTradedToday.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 60.0, st.Limits.CooldownSeconds)
	assert.Equal(t, "0.5", st.Limits.MaxSOLPerTrade)
	assert.NotNil(t, st.Limits.Blacklist)
}
