// Package dedup filters a sync run's candidate trades against the set of
// exchange_trade_id values already persisted for (user, exchange)
// (SPEC_FULL.md §4.5).
package dedup

import (
	"context"
	"fmt"

	"github.com/tradesync/syncengine/internal/domain"
)

// IDStore is the persistence-side source of existing trade ids.
type IDStore interface {
	ListExistingTradeIDs(ctx context.Context, userID, exchange string) (map[string]struct{}, error)
}

// IDCache is the read-through Redis layer fronting IDStore.
type IDCache interface {
	ExistingTradeIDs(ctx context.Context, userID, exchange string) (map[string]struct{}, bool, error)
	PutExistingTradeIDs(ctx context.Context, userID, exchange string, ids map[string]struct{}) error
	AddTradeIDs(ctx context.Context, userID, exchange string, ids []string) error
}

type Filter struct {
	store IDStore
	cache IDCache
}

func NewFilter(store IDStore, cache IDCache) *Filter {
	return &Filter{store: store, cache: cache}
}

// Filter returns only the trades whose exchange_trade_id is not already
// known for (userID, exchange). Call MarkPersisted after a successful
// upsert so the cache reflects the new ids without another store round-trip.
func (f *Filter) Filter(ctx context.Context, userID, exchange string, trades []domain.CanonicalTrade) ([]domain.CanonicalTrade, error) {
	existing, err := f.existingIDs(ctx, userID, exchange)
	if err != nil {
		return nil, err
	}

	fresh := make([]domain.CanonicalTrade, 0, len(trades))
	for _, t := range trades {
		if _, seen := existing[t.ExchangeTradeID]; !seen {
			fresh = append(fresh, t)
		}
	}
	return fresh, nil
}

func (f *Filter) existingIDs(ctx context.Context, userID, exchange string) (map[string]struct{}, error) {
	if cached, ok, err := f.cache.ExistingTradeIDs(ctx, userID, exchange); err != nil {
		return nil, fmt.Errorf("dedup: read cache: %w", err)
	} else if ok {
		return cached, nil
	}

	fresh, err := f.store.ListExistingTradeIDs(ctx, userID, exchange)
	if err != nil {
		return nil, fmt.Errorf("dedup: read store: %w", err)
	}
	if err := f.cache.PutExistingTradeIDs(ctx, userID, exchange, fresh); err != nil {
		return nil, fmt.Errorf("dedup: seed cache: %w", err)
	}
	return fresh, nil
}

// MarkPersisted records newly upserted ids in the cache.
func (f *Filter) MarkPersisted(ctx context.Context, userID, exchange string, trades []domain.CanonicalTrade) error {
	ids := make([]string, len(trades))
	for i, t := range trades {
		ids[i] = t.ExchangeTradeID
	}
	return f.cache.AddTradeIDs(ctx, userID, exchange, ids)
}
