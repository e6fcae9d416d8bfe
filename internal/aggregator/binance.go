// Package aggregator folds exchange-native raw fills into LogicalTrades,
// one strategy per exchange (SPEC_FULL.md §4.2).
package aggregator

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

// BinanceAggregate groups fills by symbol, sorts each group newest-first,
// then greedily folds the maximal contiguous run of exit fills
// (realizedPnl != 0) followed by the maximal contiguous run of entry fills
// (realizedPnl == 0) into one LogicalTrade. A position is only emitted if it
// has at least one fill of each kind.
func BinanceAggregate(fills []domain.RawFill, leverageMap map[string]decimal.Decimal) []domain.LogicalTrade {
	bySymbol := map[string][]domain.RawFill{}
	for _, f := range fills {
		bySymbol[f.Symbol] = append(bySymbol[f.Symbol], f)
	}

	var trades []domain.LogicalTrade
	for symbol, symbolFills := range bySymbol {
		sort.Slice(symbolFills, func(i, j int) bool {
			return symbolFills[i].Timestamp.After(symbolFills[j].Timestamp)
		})

		i := 0
		for i < len(symbolFills) {
			exitRun, j := takeRun(symbolFills, i, func(f domain.RawFill) bool { return !f.RealizedPnL.IsZero() })
			entryRun, k := takeRun(symbolFills, j, func(f domain.RawFill) bool { return f.RealizedPnL.IsZero() })

			if len(exitRun) > 0 && len(entryRun) > 0 {
				trades = append(trades, foldBinancePosition(symbol, entryRun, exitRun, leverageMap))
				i = k
			} else {
				i++
			}
		}
	}
	return trades
}

func takeRun(fills []domain.RawFill, start int, match func(domain.RawFill) bool) ([]domain.RawFill, int) {
	i := start
	for i < len(fills) && match(fills[i]) {
		i++
	}
	return fills[start:i], i
}

func foldBinancePosition(symbol string, entryFills, exitFills []domain.RawFill, leverageMap map[string]decimal.Decimal) domain.LogicalTrade {
	entryQty, entryNotional := weightedSum(entryFills)
	exitQty, exitNotional := weightedSum(exitFills)

	entryPrice := decimal.Zero
	if !entryQty.IsZero() {
		entryPrice = entryNotional.Div(entryQty)
	}
	exitPrice := decimal.Zero
	if !exitQty.IsZero() {
		exitPrice = exitNotional.Div(exitQty)
	}

	realizedPnL := decimal.Zero
	fees := decimal.Zero
	entryTime := entryFills[0].Timestamp
	for _, f := range entryFills {
		realizedPnL = realizedPnL.Add(f.RealizedPnL)
		fees = fees.Add(f.Fee.Abs())
		if f.Timestamp.Before(entryTime) {
			entryTime = f.Timestamp
		}
	}
	exitTime := exitFills[0].Timestamp
	for _, f := range exitFills {
		realizedPnL = realizedPnL.Add(f.RealizedPnL)
		fees = fees.Add(f.Fee.Abs())
		if f.Timestamp.After(exitTime) {
			exitTime = f.Timestamp
		}
	}

	side := strings.ToUpper(entryFills[0].Side)

	leverage := leverageMap[symbol]

	return domain.LogicalTrade{
		Exchange:        domain.ExchangeBinance,
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      entryPrice,
		ExitPrice:       exitPrice,
		Quantity:        entryQty,
		RealizedPnL:     realizedPnL,
		Fees:            fees,
		EntryTime:       entryTime,
		ExitTime:        exitTime,
		Leverage:        leverage,
		ExchangeTradeID: entryFills[0].TradeID,
	}
}

func weightedSum(fills []domain.RawFill) (qty, notional decimal.Decimal) {
	qty = decimal.Zero
	notional = decimal.Zero
	for _, f := range fills {
		qty = qty.Add(f.Quantity)
		notional = notional.Add(f.Price.Mul(f.Quantity))
	}
	return qty, notional
}
