package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestCache(t *testing.T) *RedisCache {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   3,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("Redis not available: %v", err)
	}
	require.NoError(t, client.FlushDB(ctx).Err())

	t.Cleanup(func() {
		_ = client.FlushDB(context.Background()).Err()
		_ = client.Close()
	})

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return NewRedisCacheFromClient(client, logger)
}

func TestRecentTrades_NewestFirstAndTrimmed(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	for i := 0; i < constants.MaxRecentTrades+5; i++ {
		require.NoError(t, c.AddRecentTrade(ctx, &models.TradeRecord{
			SourceSignature: fmt.Sprintf("sig-%d", i),
			Stage:           "executed",
		}))
	}

	n, err := c.Client().LLen(ctx, constants.RedisKeyRecentTrades).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(constants.MaxRecentTrades), n)

	items, err := c.GetRecentTrades(ctx, 3)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, fmt.Sprintf("sig-%d", constants.MaxRecentTrades+4), items[0].SourceSignature)

	items, err = c.GetRecentTrades(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestGetRecentTrades_SkipsMalformed(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.AddRecentTrade(ctx, &models.TradeRecord{SourceSignature: "good"}))
	require.NoError(t, c.Client().LPush(ctx, constants.RedisKeyRecentTrades, "{broken").Err())

	items, err := c.GetRecentTrades(ctx, 10)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "good", items[0].SourceSignature)
}

func TestClaimSignature(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	fresh, err := c.ClaimSignature(ctx, "sig", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)

	fresh, err = c.ClaimSignature(ctx, "sig", time.Minute)
	require.NoError(t, err)
	assert.False(t, fresh)

	ttl, err := c.Client().TTL(ctx, constants.RedisKeySeenPrefix+"sig").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 50*time.Second)

	require.NoError(t, c.ReleaseSignature(ctx, "sig"))
	fresh, err = c.ClaimSignature(ctx, "sig", time.Minute)
	require.NoError(t, err)
	assert.True(t, fresh)
}

func TestLiquidityCache(t *testing.T) {
	c := setupTestCache(t)
	ctx := context.Background()

	_, ok, err := c.GetLiquidity(ctx, "mint")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetLiquidity(ctx, "mint", decimal.RequireFromString("123456.78"), time.Minute))
	v, ok, err := c.GetLiquidity(ctx, "mint")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v.Equal(decimal.RequireFromString("123456.78")))

	require.NoError(t, c.Client().Set(ctx, constants.RedisKeyLiquidityPref+"bad", "nope", time.Minute).Err())
	_, _, err = c.GetLiquidity(ctx, "bad")
	assert.Error(t, err)
}

func TestPublishAndSubscribe(t *testing.T) {
	c := setupTestCache(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	all, err := c.SubscribeTrades(ctx)
	require.NoError(t, err)
	buys, err := c.PSubscribeTrades(ctx, constants.PubSubChannelOutcomes+":BUY")
	require.NoError(t, err)

	require.NoError(t, c.PublishTrade(ctx, &models.TradeRecord{SourceSignature: "s1", Side: "BUY", Stage: "executed"}))

	// channels are shared across Redis databases, so skip foreign messages
	for name, ch := range map[string]<-chan *models.TradeRecord{"all": all, "buys": buys} {
		assert.True(t, receive(ctx, ch, "s1"), "%s subscriber did not receive s1", name)
	}

	cancel()
	_, open := <-all
	for open {
		_, open = <-all
	}
}

func receive(ctx context.Context, ch <-chan *models.TradeRecord, signature string) bool {
	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return false
			}
			if rec.SourceSignature == signature {
				return true
			}
		case <-ctx.Done():
			return false
		}
	}
}
