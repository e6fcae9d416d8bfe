package aggregator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

// hyperliquidPositionKey identifies an open position by coin and side so
// Open/Close events on the same coin but opposite sides never collide.
type hyperliquidPositionKey struct {
	coin string
	side string
}

type hyperliquidOpenPosition struct {
	totalSize   decimal.Decimal
	totalCost   decimal.Decimal
	totalFees   decimal.Decimal
	earliestTime int64
}

// HyperliquidAggregate sorts fills oldest-first and walks them maintaining
// one open-position accumulator per (coin, side). An Open event folds into
// the accumulator; a Close event emits a completed LogicalTrade using the
// accumulator's size-weighted entry price, then drains (or fully removes)
// the accumulator. A Close with no matching open position is emitted as a
// standalone single-fill trade. defaultLeverage is always used since
// Hyperliquid never reports leverage per fill.
func HyperliquidAggregate(fills []domain.RawFill, defaultLeverage decimal.Decimal) []domain.LogicalTrade {
	sorted := make([]domain.RawFill, len(fills))
	copy(sorted, fills)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	open := map[hyperliquidPositionKey]*hyperliquidOpenPosition{}
	var trades []domain.LogicalTrade

	for _, f := range sorted {
		dir, _ := f.Raw["dir"].(string)
		isOpen := strings.HasPrefix(dir, "Open")
		isClose := strings.HasPrefix(dir, "Close")
		side := hyperliquidSideFromDir(dir)
		key := hyperliquidPositionKey{coin: f.Symbol, side: side}

		switch {
		case isOpen:
			pos, ok := open[key]
			if !ok {
				pos = &hyperliquidOpenPosition{earliestTime: f.Timestamp.UnixMilli()}
				open[key] = pos
			}
			pos.totalSize = pos.totalSize.Add(f.Quantity)
			pos.totalCost = pos.totalCost.Add(f.Price.Mul(f.Quantity))
			pos.totalFees = pos.totalFees.Add(f.Fee)
			if ms := f.Timestamp.UnixMilli(); ms < pos.earliestTime {
				pos.earliestTime = ms
			}

		case isClose:
			pos, ok := open[key]
			if !ok || pos.totalSize.IsZero() {
				trades = append(trades, hyperliquidStandaloneTrade(f, side, defaultLeverage))
				continue
			}

			entryPrice := decimal.Zero
			if !pos.totalSize.IsZero() {
				entryPrice = pos.totalCost.Div(pos.totalSize)
			}
			qty := f.Quantity
			if qty.GreaterThan(pos.totalSize) {
				qty = pos.totalSize
			}

			trades = append(trades, domain.LogicalTrade{
				Exchange:        domain.ExchangeHyperliquid,
				Symbol:          f.Symbol,
				Side:            side,
				EntryPrice:      entryPrice,
				ExitPrice:       f.Price,
				Quantity:        qty,
				RealizedPnL:     f.RealizedPnL,
				Fees:            pos.totalFees.Add(f.Fee),
				EntryTime:       time.UnixMilli(pos.earliestTime),
				ExitTime:        f.Timestamp,
				Leverage:        defaultLeverage,
				ExchangeTradeID: fmt.Sprintf("%s_%d", f.Symbol, pos.earliestTime),
			})

			pos.totalSize = pos.totalSize.Sub(qty)
			if pos.totalSize.LessThanOrEqual(decimal.Zero) {
				delete(open, key)
			} else {
				// Partial close: re-anchor the remaining size at the same
				// average entry price and reset fees, mirroring the
				// source's total_cost/fees reset after a partial close.
				pos.totalCost = entryPrice.Mul(pos.totalSize)
				pos.totalFees = decimal.Zero
			}

		default:
			// Unrecognized dir tag: treat the fill as a standalone trade
			// rather than silently dropping execution history.
			trades = append(trades, hyperliquidStandaloneTrade(f, side, defaultLeverage))
		}
	}

	return trades
}

func hyperliquidStandaloneTrade(f domain.RawFill, side string, defaultLeverage decimal.Decimal) domain.LogicalTrade {
	return domain.LogicalTrade{
		Exchange:        domain.ExchangeHyperliquid,
		Symbol:          f.Symbol,
		Side:            side,
		EntryPrice:      f.Price,
		ExitPrice:       f.Price,
		Quantity:        f.Quantity,
		RealizedPnL:     f.RealizedPnL,
		Fees:            f.Fee,
		EntryTime:       f.Timestamp,
		ExitTime:        f.Timestamp,
		Leverage:        defaultLeverage,
		ExchangeTradeID: f.TradeID,
	}
}

// hyperliquidSideFromDir maps the "Open Long"/"Close Short"/... tag to the
// same BUY/SELL convention the other three exchanges report, so the
// canonical side field stays consistent across exchanges.
func hyperliquidSideFromDir(dir string) string {
	lower := strings.ToLower(dir)
	switch {
	case strings.Contains(lower, "long"):
		return "BUY"
	case strings.Contains(lower, "short"):
		return "SELL"
	default:
		return "BUY"
	}
}
