package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Logger   *logrus.Logger
}

// RedisCache keeps recent outcomes, seen signatures and cached liquidity
type RedisCache struct {
	client *redis.Client
	logger *logrus.Logger
}

// NewRedisCache connects to Redis and verifies the connection
func NewRedisCache(ctx context.Context, cfg RedisConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis at %s: %w", cfg.Addr, err)
	}
	return NewRedisCacheFromClient(client, cfg.Logger), nil
}

// NewRedisCacheFromClient wraps an existing client (shared with the switches store)
func NewRedisCacheFromClient(client *redis.Client, logger *logrus.Logger) *RedisCache {
	if logger == nil {
		logger = logrus.New()
	}
	return &RedisCache{client: client, logger: logger}
}

func (r *RedisCache) Client() *redis.Client { return r.client }

// AddRecentTrade pushes rec to the head of the recent list and trims it
func (r *RedisCache) AddRecentTrade(ctx context.Context, rec *models.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal trade: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, constants.RedisKeyRecentTrades, data)
	pipe.LTrim(ctx, constants.RedisKeyRecentTrades, 0, constants.MaxRecentTrades-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("add recent trade: %w", err)
	}
	return nil
}

func (r *RedisCache) GetRecentTrades(ctx context.Context, limit int64) ([]*models.TradeRecord, error) {
	if limit <= 0 {
		return []*models.TradeRecord{}, nil
	}
	raw, err := r.client.LRange(ctx, constants.RedisKeyRecentTrades, 0, limit-1).Result()
	if err != nil {
		return nil, fmt.Errorf("get recent trades: %w", err)
	}

	out := make([]*models.TradeRecord, 0, len(raw))
	for _, s := range raw {
		var rec models.TradeRecord
		if err := json.Unmarshal([]byte(s), &rec); err != nil {
			r.logger.WithError(err).Warn("skipping malformed trade record")
			continue
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *RedisCache) ClaimSignature(ctx context.Context, signature string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, constants.RedisKeySeenPrefix+signature, time.Now().Unix(), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim signature: %w", err)
	}
	return ok, nil
}

func (r *RedisCache) ReleaseSignature(ctx context.Context, signature string) error {
	if err := r.client.Del(ctx, constants.RedisKeySeenPrefix+signature).Err(); err != nil {
		return fmt.Errorf("release signature: %w", err)
	}
	return nil
}

// GetLiquidity returns a cached USD liquidity value; ok is false on a miss
func (r *RedisCache) GetLiquidity(ctx context.Context, mint string) (decimal.Decimal, bool, error) {
	s, err := r.client.Get(ctx, constants.RedisKeyLiquidityPref+mint).Result()
	if errors.Is(err, redis.Nil) {
		return decimal.Zero, false, nil
	}
	if err != nil {
		return decimal.Zero, false, err
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false, fmt.Errorf("cached liquidity for %s: %w", mint, err)
	}
	return d, true, nil
}

func (r *RedisCache) SetLiquidity(ctx context.Context, mint string, usd decimal.Decimal, ttl time.Duration) error {
	return r.client.Set(ctx, constants.RedisKeyLiquidityPref+mint, usd.String(), ttl).Err()
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
