// Package leverage implements the fallback cascade that fixes up a trade's
// leverage and recomputes pnl_percent once leverage is known
// (SPEC_FULL.md §4.4).
package leverage

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

var (
	defaultLeverage            = decimal.NewFromInt(1)
	defaultHyperliquidLeverage = decimal.NewFromInt(10)
	hundred                    = decimal.NewFromInt(100)
)

// OverrideStore is the persistence-side source of truth for user-edited
// leverage overrides, consulted only on a cache miss.
type OverrideStore interface {
	GetLeverageOverrides(ctx context.Context, userID, exchange string) (map[string]decimal.Decimal, error)
}

// OverrideCache is the read-through Redis layer fronting OverrideStore.
type OverrideCache interface {
	LeverageOverrides(ctx context.Context, userID, exchange string) (map[string]decimal.Decimal, bool, error)
	PutLeverageOverrides(ctx context.Context, userID, exchange string, overrides map[string]decimal.Decimal) error
}

type Resolver struct {
	store OverrideStore
	cache OverrideCache
}

func NewResolver(store OverrideStore, cache OverrideCache) *Resolver {
	return &Resolver{store: store, cache: cache}
}

// overrides returns the (user, exchange) override map, populating the
// cache from the store on a miss.
func (r *Resolver) overrides(ctx context.Context, userID, exchange string) (map[string]decimal.Decimal, error) {
	if cached, ok, err := r.cache.LeverageOverrides(ctx, userID, exchange); err != nil {
		return nil, fmt.Errorf("leverage: read cache: %w", err)
	} else if ok {
		return cached, nil
	}

	fresh, err := r.store.GetLeverageOverrides(ctx, userID, exchange)
	if err != nil {
		return nil, fmt.Errorf("leverage: read store: %w", err)
	}
	if err := r.cache.PutLeverageOverrides(ctx, userID, exchange, fresh); err != nil {
		return nil, fmt.Errorf("leverage: seed cache: %w", err)
	}
	return fresh, nil
}

// Resolve fixes a trade's leverage per the cascade (exchange-supplied >
// user override > default) and recomputes pnl_percent from the resolved
// value. It mutates a copy and returns it; the input is left untouched.
func (r *Resolver) Resolve(ctx context.Context, t domain.CanonicalTrade) (domain.CanonicalTrade, error) {
	out := t

	if out.Leverage.LessThanOrEqual(decimal.Zero) {
		overrides, err := r.overrides(ctx, t.UserID, t.Exchange)
		if err != nil {
			return domain.CanonicalTrade{}, err
		}

		if override, ok := overrides[t.Symbol]; ok && override.GreaterThan(decimal.Zero) {
			out.Leverage = override
		} else if t.Exchange == string(domain.ExchangeHyperliquid) {
			out.Leverage = defaultHyperliquidLeverage
		} else {
			out.Leverage = defaultLeverage
		}
	}

	out.PnLPercent = pnlPercent(out.PnLUSD, out.EntryPrice, out.Quantity, out.Leverage)
	return out, nil
}

func pnlPercent(pnlUSD, entryPrice, quantity, leverage decimal.Decimal) decimal.Decimal {
	if leverage.IsZero() {
		return decimal.Zero
	}
	margin := entryPrice.Mul(quantity).Div(leverage)
	if margin.IsZero() {
		return decimal.Zero
	}
	return pnlUSD.Div(margin).Mul(hundred).Round(4)
}
