// Package cache provides the Redis-backed read-through layer in front of
// the dedup id-set and leverage-override lookups (SPEC_FULL.md §4.4/§4.5),
// adapted from the teacher's plain *redis.Client wiring in internal/storage.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
)

const (
	dedupTTL    = 24 * time.Hour
	leverageTTL = 1 * time.Hour
)

type Cache struct {
	client *redis.Client
}

func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func dedupKey(userID, exchange string) string {
	return fmt.Sprintf("dedup:%s:%s", userID, exchange)
}

func leverageKey(userID, exchange string) string {
	return fmt.Sprintf("leverage:%s:%s", userID, exchange)
}

// ExistingTradeIDs returns the cached id set for (userID, exchange), and
// false if the cache has nothing for this key (a cold read the caller
// should fill from the persistence layer via PutExistingTradeIDs).
func (c *Cache) ExistingTradeIDs(ctx context.Context, userID, exchange string) (map[string]struct{}, bool, error) {
	members, err := c.client.SMembers(ctx, dedupKey(userID, exchange)).Result()
	if err != nil && err != redis.Nil {
		return nil, false, fmt.Errorf("cache: smembers %s: %w", dedupKey(userID, exchange), err)
	}
	if len(members) == 0 {
		return nil, false, nil
	}

	out := make(map[string]struct{}, len(members))
	for _, m := range members {
		out[m] = struct{}{}
	}
	return out, true, nil
}

// PutExistingTradeIDs seeds the id-set cache from the persistence layer.
func (c *Cache) PutExistingTradeIDs(ctx context.Context, userID, exchange string, ids map[string]struct{}) error {
	key := dedupKey(userID, exchange)
	if len(ids) == 0 {
		return nil
	}

	members := make([]interface{}, 0, len(ids))
	for id := range ids {
		members = append(members, id)
	}

	pipe := c.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, dedupTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: seed id set %s: %w", key, err)
	}
	return nil
}

// AddTradeIDs is called after a successful upsert so subsequent jobs in the
// same TTL window see the newly persisted ids without a store round-trip.
func (c *Cache) AddTradeIDs(ctx context.Context, userID, exchange string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	key := dedupKey(userID, exchange)

	members := make([]interface{}, len(ids))
	for i, id := range ids {
		members[i] = id
	}

	pipe := c.client.TxPipeline()
	pipe.SAdd(ctx, key, members...)
	pipe.Expire(ctx, key, dedupTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: add trade ids %s: %w", key, err)
	}
	return nil
}

// LeverageOverrides returns the cached symbol->leverage map, and false on a
// cache miss.
func (c *Cache) LeverageOverrides(ctx context.Context, userID, exchange string) (map[string]decimal.Decimal, bool, error) {
	raw, err := c.client.Get(ctx, leverageKey(userID, exchange)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache: get %s: %w", leverageKey(userID, exchange), err)
	}

	var decoded map[string]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, false, fmt.Errorf("cache: decode leverage overrides: %w", err)
	}

	out := make(map[string]decimal.Decimal, len(decoded))
	for symbol, s := range decoded {
		d, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		out[symbol] = d
	}
	return out, true, nil
}

// PutLeverageOverrides seeds the override cache from the persistence layer.
func (c *Cache) PutLeverageOverrides(ctx context.Context, userID, exchange string, overrides map[string]decimal.Decimal) error {
	encoded := make(map[string]string, len(overrides))
	for symbol, d := range overrides {
		encoded[symbol] = d.String()
	}

	payload, err := json.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("cache: encode leverage overrides: %w", err)
	}

	if err := c.client.Set(ctx, leverageKey(userID, exchange), payload, leverageTTL).Err(); err != nil {
		return fmt.Errorf("cache: set %s: %w", leverageKey(userID, exchange), err)
	}
	return nil
}
