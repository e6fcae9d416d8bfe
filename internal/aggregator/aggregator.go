package aggregator

import (
	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

var hyperliquidDefaultLeverage = decimal.NewFromInt(10)

// Aggregate dispatches to the exchange-specific folding strategy
// (SPEC_FULL.md §4.2, §9 "one aggregator interface"). leverageMap and
// contractValueMap may be nil for exchanges that don't use them.
func Aggregate(ex domain.Exchange, fills []domain.RawFill, leverageMap, contractValueMap map[string]decimal.Decimal) []domain.LogicalTrade {
	switch ex {
	case domain.ExchangeBinance:
		return BinanceAggregate(fills, leverageMap)
	case domain.ExchangeBybit:
		return BybitAggregate(fills)
	case domain.ExchangeBlofin:
		return BlofinAggregate(fills, leverageMap, contractValueMap)
	case domain.ExchangeHyperliquid:
		return HyperliquidAggregate(fills, hyperliquidDefaultLeverage)
	default:
		return nil
	}
}
