package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const cartKeyPrefix = "storefront:cart:"

// CartCacheConfig controls how long cached carts live. Each write gets a
// random extra of up to Jitter so carts cached together do not expire together.
type CartCacheConfig struct {
	TTL    time.Duration
	Jitter time.Duration
}

func (c CartCacheConfig) withDefaults() CartCacheConfig {
	if c.TTL <= 0 {
		c.TTL = 15 * time.Minute
	}
	if c.Jitter < 0 {
		c.Jitter = 0
	}
	return c
}

// RedisCache stores enriched carts as JSON under storefront:cart:<user>.
type RedisCache struct {
	rdb redis.UniversalClient
	cfg CartCacheConfig
}

func NewRedisCache(rdb redis.UniversalClient, cfg CartCacheConfig) *RedisCache {
	return &RedisCache{rdb: rdb, cfg: cfg.withDefaults()}
}

// Get returns ErrCacheMiss for absent entries. An entry that no longer
// decodes is dropped and reported as a miss.
func (r *RedisCache) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	key := cartKey(userID)
	raw, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrCacheMiss
	case err != nil:
		return nil, fmt.Errorf("cart cache get %s: %w", userID, err)
	}

	cart := new(domain.Cart)
	if err := json.Unmarshal(raw, cart); err != nil {
		logger.FromContext(ctx).Warn("dropping undecodable cached cart", "user_id", userID, "error", err)
		if delErr := r.rdb.Del(ctx, key).Err(); delErr != nil {
			return nil, fmt.Errorf("cart cache evict %s: %w", userID, delErr)
		}
		return nil, ErrCacheMiss
	}
	return cart, nil
}

func (r *RedisCache) Set(ctx context.Context, userID string, cart *domain.Cart) error {
	raw, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("cart cache encode %s: %w", userID, err)
	}
	if err := r.rdb.Set(ctx, cartKey(userID), raw, r.ttl()).Err(); err != nil {
		return fmt.Errorf("cart cache set %s: %w", userID, err)
	}
	return nil
}

func (r *RedisCache) Delete(ctx context.Context, userID string) error {
	if err := r.rdb.Del(ctx, cartKey(userID)).Err(); err != nil {
		return fmt.Errorf("cart cache delete %s: %w", userID, err)
	}
	return nil
}

func (r *RedisCache) ttl() time.Duration {
	if r.cfg.Jitter <= 0 {
		return r.cfg.TTL
	}
	return r.cfg.TTL + rand.N(r.cfg.Jitter)
}

func cartKey(userID string) string {
	return cartKeyPrefix + userID
}
