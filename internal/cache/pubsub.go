// ============================================================================
// cache/pubsub.go - Redis Pub/Sub for copy-trade outcomes
// ============================================================================
package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aman-zulfiqar/solana-copy-trader/internal/constants"
	"github.com/aman-zulfiqar/solana-copy-trader/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// PublishTrade publishes rec to the outcomes channel and to a per-side
// channel (copytrade:outcomes:BUY, ...)
func (r *RedisCache) PublishTrade(ctx context.Context, rec *models.TradeRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}

	channels := []string{
		constants.PubSubChannelOutcomes,
		fmt.Sprintf("%s:%s", constants.PubSubChannelOutcomes, rec.Side),
	}

	pipe := r.client.Pipeline()
	for _, channel := range channels {
		pipe.Publish(ctx, channel, data)
	}

	_, err = pipe.Exec(ctx)
	return err
}

// SubscribeTrades streams outcomes until ctx is done
func (r *RedisCache) SubscribeTrades(ctx context.Context) (<-chan *models.TradeRecord, error) {
	return r.subscribe(ctx, false, constants.PubSubChannelOutcomes)
}

// PSubscribeTrades streams outcomes from every channel matching pattern
func (r *RedisCache) PSubscribeTrades(ctx context.Context, pattern string) (<-chan *models.TradeRecord, error) {
	return r.subscribe(ctx, true, pattern)
}

func (r *RedisCache) subscribe(ctx context.Context, pattern bool, channel string) (<-chan *models.TradeRecord, error) {
	var ps *redis.PubSub
	if pattern {
		ps = r.client.PSubscribe(ctx, channel)
	} else {
		ps = r.client.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation so callers see errors early
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}

	r.logger.WithField("channel", channel).Info("subscribed")

	out := make(chan *models.TradeRecord, 64)
	go func() {
		defer close(out)
		defer ps.Close()

		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var rec models.TradeRecord
				if err := json.Unmarshal([]byte(msg.Payload), &rec); err != nil {
					r.logger.WithError(err).WithFields(logrus.Fields{"channel": msg.Channel}).Warn("error unmarshaling trade")
					continue
				}
				select {
				case out <- &rec:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
