package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/jupiter"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mint = "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"

const pairsBody = `{
  "schemaVersion": "1.0.0",
  "pairs": [
    {"chainId": "solana", "dexId": "raydium", "pairAddress": "p1", "liquidity": {"usd": 120000.5}},
    {"chainId": "solana", "dexId": "orca", "pairAddress": "p2", "liquidity": {"usd": 30000}},
    {"chainId": "ethereum", "dexId": "uniswap", "pairAddress": "p3", "liquidity": {"usd": 999999}},
    {"chainId": "solana", "dexId": "meteora", "pairAddress": "p4"}
  ]
}`

type memCache struct {
	mu   sync.Mutex
	vals map[string]decimal.Decimal
	sets int
}

func (m *memCache) GetLiquidity(_ context.Context, mint string) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[mint]
	return v, ok, nil
}

func (m *memCache) SetLiquidity(_ context.Context, mint string, usd decimal.Decimal, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.vals == nil {
		m.vals = map[string]decimal.Decimal{}
	}
	m.vals[mint] = usd
	m.sets++
	return nil
}

func TestDexScreener_SumsSolanaPairs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tokens/"+mint, r.URL.Path)
		_, _ = w.Write([]byte(pairsBody))
	}))
	defer srv.Close()

	liq, err := NewDexScreener(srv.URL).TokenLiquidityUSD(context.Background(), mint)
	require.NoError(t, err)
	assert.Equal(t, "150000.5", liq.String())
}

func TestDexScreener_NoPairsIsZero(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"schemaVersion":"1.0.0","pairs":null}`))
	}))
	defer srv.Close()

	liq, err := NewDexScreener(srv.URL).TokenLiquidityUSD(context.Background(), mint)
	require.NoError(t, err)
	assert.True(t, liq.IsZero())
}

func TestDexScreener_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewDexScreener(srv.URL).TokenLiquidityUSD(context.Background(), mint)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestService_LiquidityIsCached(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(pairsBody))
	}))
	defer srv.Close()

	cache := &memCache{}
	svc, err := NewService(Config{
		DexScreener: NewDexScreener(srv.URL),
		Jupiter:     jupiter.NewClient(srv.URL, ""),
		Cache:       cache,
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		liq, err := svc.GetLiquidity(context.Background(), mint)
		require.NoError(t, err)
		assert.Equal(t, "150000.5", liq.String())
	}
	assert.Equal(t, int32(1), hits.Load())
	assert.Equal(t, 1, cache.sets)
}

func TestService_EstimatePriceImpact(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/quote", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "So11111111111111111111111111111111111111112", q.Get("inputMint"))
		assert.Equal(t, mint, q.Get("outputMint"))
		assert.Equal(t, "250000000", q.Get("amount"))
		assert.Equal(t, "ExactIn", q.Get("swapMode"))
		_, _ = w.Write([]byte(`{"inputMint":"So11111111111111111111111111111111111111112","outputMint":"` + mint +
			`","inAmount":"250000000","outAmount":"1","priceImpactPct":"-0.0125","routePlan":[]}`))
	}))
	defer srv.Close()

	svc, err := NewService(Config{
		DexScreener: NewDexScreener(srv.URL),
		Jupiter:     jupiter.NewClient(srv.URL, ""),
	})
	require.NoError(t, err)

	impact, err := svc.EstimatePriceImpact(context.Background(), mint, 250_000_000)
	require.NoError(t, err)
	assert.True(t, impact.Equal(decimal.RequireFromString("0.0125")), impact.String())

	_, err = svc.EstimatePriceImpact(context.Background(), mint, 0)
	assert.Error(t, err)
}

func TestService_QuoteFailurePropagates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no route"}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	svc, err := NewService(Config{
		DexScreener: NewDexScreener(srv.URL),
		Jupiter:     jupiter.NewClient(srv.URL, ""),
	})
	require.NoError(t, err)

	_, err = svc.EstimatePriceImpact(context.Background(), mint, 1000)
	var httpErr *jupiter.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusBadRequest, httpErr.StatusCode)
}

func TestNewService_RequiresClients(t *testing.T) {
	_, err := NewService(Config{})
	assert.Error(t, err)
	_, err = NewService(Config{DexScreener: NewDexScreener("")})
	assert.Error(t, err)
}

func TestService_MissingPriceImpactIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"inputMint":"So11111111111111111111111111111111111111112","outputMint":"` + mint +
			`","inAmount":"1000","outAmount":"1","routePlan":[]}`))
	}))
	defer srv.Close()

	svc, err := NewService(Config{
		DexScreener: NewDexScreener(srv.URL),
		Jupiter:     jupiter.NewClient(srv.URL, ""),
	})
	require.NoError(t, err)

	impact, err := svc.EstimatePriceImpact(context.Background(), mint, 1000)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "priceImpactPct")
	assert.True(t, impact.IsZero())
}

func TestService_SharedLookupSurvivesCallerCancel(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		_, _ = w.Write([]byte(pairsBody))
	}))
	defer srv.Close()

	svc, err := NewService(Config{
		DexScreener:   NewDexScreener(srv.URL),
		Jupiter:       jupiter.NewClient(srv.URL, ""),
		FlightTimeout: 5 * time.Second,
	})
	require.NoError(t, err)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan struct{})
	go func() {
		defer close(firstDone)
		_, _ = svc.GetLiquidity(firstCtx, mint)
	}()
	require.Eventually(t, func() bool { return hits.Load() == 1 }, 2*time.Second, 5*time.Millisecond)

	type result struct {
		liq decimal.Decimal
		err error
	}
	second := make(chan result, 1)
	go func() {
		liq, err := svc.GetLiquidity(context.Background(), mint)
		second <- result{liq, err}
	}()
	// give the second caller time to join the in-flight lookup
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	time.Sleep(20 * time.Millisecond)
	close(release)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, "150000.5", res.liq.String())
	assert.Equal(t, int32(1), hits.Load())
	<-firstDone
}
