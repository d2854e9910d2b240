package switches

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	indexKey    = "switches:index"
	valuePrefix = "switches:"
)

var keyRe = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,128}$`)

// Store keeps switch overrides in Redis. Switches without an override
// resolve to the defaults given at construction.
type Store struct {
	client   redis.Cmdable
	defaults map[string]bool
}

func NewStore(client redis.Cmdable, defaults map[string]bool) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	d := make(map[string]bool, len(defaults))
	for k, v := range defaults {
		if err := ValidateKey(k); err != nil {
			return nil, fmt.Errorf("default %q: %w", k, err)
		}
		d[k] = v
	}
	return &Store{client: client, defaults: d}, nil
}

func ValidateKey(key string) error {
	if !keyRe.MatchString(key) {
		return fmt.Errorf("invalid switch key")
	}
	return nil
}

// IsOn resolves a switch: the stored override, else the default, else false.
// On a Redis error the default is returned together with the error.
func (s *Store) IsOn(ctx context.Context, key string) (bool, error) {
	sw, err := s.Get(ctx, key)
	if err != nil {
		return s.defaults[key], err
	}
	return sw.Value, nil
}

func (s *Store) Set(ctx context.Context, key string, value bool) (*Switch, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	sw := &Switch{Key: key, Value: value, UpdatedAt: time.Now().UTC()}
	b, err := json.Marshal(sw)
	if err != nil {
		return nil, fmt.Errorf("marshal switch: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, switchKey(key), b, 0)
	pipe.SAdd(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("set switch: %w", err)
	}

	return sw, nil
}

// Get returns the stored override, or the default for a known switch.
// Unknown switches without an override return ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (*Switch, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	val, err := s.client.Get(ctx, switchKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		if def, ok := s.defaults[key]; ok {
			return &Switch{Key: key, Value: def, Default: true}, nil
		}
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get switch: %w", err)
	}

	var sw Switch
	if err := json.Unmarshal([]byte(val), &sw); err != nil {
		return nil, fmt.Errorf("unmarshal switch: %w", err)
	}
	return &sw, nil
}

// List returns every stored switch plus the defaults that are not
// overridden, sorted by key
func (s *Store) List(ctx context.Context) ([]*Switch, error) {
	keys, err := s.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list switches index: %w", err)
	}

	out := make([]*Switch, 0, len(keys)+len(s.defaults))
	seen := make(map[string]struct{}, len(keys))

	redisKeys := make([]string, 0, len(keys))
	for _, k := range keys {
		if err := ValidateKey(k); err != nil {
			continue
		}
		redisKeys = append(redisKeys, switchKey(k))
	}

	if len(redisKeys) > 0 {
		vals, err := s.client.MGet(ctx, redisKeys...).Result()
		if err != nil {
			return nil, fmt.Errorf("mget switches: %w", err)
		}
		for _, v := range vals {
			str, ok := v.(string)
			if !ok {
				continue
			}
			var sw Switch
			if err := json.Unmarshal([]byte(str), &sw); err != nil {
				continue
			}
			seen[sw.Key] = struct{}{}
			out = append(out, &sw)
		}
	}

	for k, v := range s.defaults {
		if _, ok := seen[k]; !ok {
			out = append(out, &Switch{Key: k, Value: v, Default: true})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Delete removes an override; a known switch falls back to its default
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, switchKey(key))
	pipe.SRem(ctx, indexKey, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete switch: %w", err)
	}

	return nil
}

func switchKey(key string) string {
	return valuePrefix + key
}
