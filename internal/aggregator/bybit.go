package aggregator

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

// bybitTakerFeeRate is the flat assumption used because the closed-pnl
// endpoint never returns explicit fees (SPEC_FULL.md §9 Open Questions:
// real fees may differ from this 6bp estimate).
var bybitTakerFeeRate = decimal.NewFromFloat(0.0006)

// BybitAggregate is the identity transform: Bybit's closed-pnl endpoint
// already returns one record per closed position, so there is no folding to
// do. This still converts RawFill.Raw's string fields into a LogicalTrade.
func BybitAggregate(fills []domain.RawFill) []domain.LogicalTrade {
	trades := make([]domain.LogicalTrade, 0, len(fills))
	for _, f := range fills {
		trades = append(trades, bybitFillToTrade(f))
	}
	return trades
}

func bybitFillToTrade(f domain.RawFill) domain.LogicalTrade {
	avgEntry := decimalFromRaw(f.Raw, "avgEntryPrice", f.Price)
	avgExit := decimalFromRaw(f.Raw, "avgExitPrice", decimal.Zero)
	leverage := decimalFromRaw(f.Raw, "leverage", decimal.Zero)
	cumEntryValue := decimalFromRaw(f.Raw, "cumEntryValue", decimal.Zero)
	cumExitValue := decimalFromRaw(f.Raw, "cumExitValue", decimal.Zero)

	fees := cumEntryValue.Add(cumExitValue).Mul(bybitTakerFeeRate)

	side := strings.ToUpper(f.Side)

	entryTime := f.Timestamp
	exitTime := f.Timestamp
	if raw := f.Raw; raw != nil {
		if createdStr, ok := raw["createdTime"].(string); ok {
			if ms, err := strconv.ParseInt(createdStr, 10, 64); err == nil {
				entryTime = time.UnixMilli(ms)
			}
		}
		if updatedStr, ok := raw["updatedTime"].(string); ok {
			if ms, err := strconv.ParseInt(updatedStr, 10, 64); err == nil {
				exitTime = time.UnixMilli(ms)
			}
		}
	}

	return domain.LogicalTrade{
		Exchange:        domain.ExchangeBybit,
		Symbol:          f.Symbol,
		Side:            side,
		EntryPrice:      avgEntry,
		ExitPrice:       avgExit,
		Quantity:        f.Quantity,
		RealizedPnL:     f.RealizedPnL,
		Fees:            fees,
		EntryTime:       entryTime,
		ExitTime:        exitTime,
		Leverage:        leverage,
		ExchangeTradeID: f.TradeID,
	}
}

func decimalFromRaw(raw map[string]interface{}, key string, fallback decimal.Decimal) decimal.Decimal {
	if raw == nil {
		return fallback
	}
	s, ok := raw[key].(string)
	if !ok || s == "" {
		return fallback
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return fallback
	}
	return d
}
