package aggregator

import (
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

// BlofinAggregate uses the same exit-run-then-entry-run fold as Binance,
// but on fills-history shaped fills (fillPnl/fillPrice/fillSize/fee/ts), and
// converts the folded contract-denominated quantity into coin units via
// contractValueMap before emitting.
func BlofinAggregate(fills []domain.RawFill, leverageMap, contractValueMap map[string]decimal.Decimal) []domain.LogicalTrade {
	bySymbol := map[string][]domain.RawFill{}
	for _, f := range fills {
		bySymbol[f.Symbol] = append(bySymbol[f.Symbol], f)
	}

	var trades []domain.LogicalTrade
	for symbol, symbolFills := range bySymbol {
		sort.Slice(symbolFills, func(i, j int) bool {
			return symbolFills[i].Timestamp.After(symbolFills[j].Timestamp)
		})

		contractValue, ok := contractValueMap[symbol]
		if !ok || contractValue.IsZero() {
			contractValue = decimal.NewFromInt(1)
		}

		i := 0
		for i < len(symbolFills) {
			exitRun, j := takeRun(symbolFills, i, func(f domain.RawFill) bool { return !f.RealizedPnL.IsZero() })
			entryRun, k := takeRun(symbolFills, j, func(f domain.RawFill) bool { return f.RealizedPnL.IsZero() })

			if len(exitRun) > 0 && len(entryRun) > 0 {
				trades = append(trades, foldBlofinPosition(symbol, entryRun, exitRun, leverageMap, contractValue))
				i = k
			} else {
				i++
			}
		}
	}
	return trades
}

func foldBlofinPosition(symbol string, entryFills, exitFills []domain.RawFill, leverageMap map[string]decimal.Decimal, contractValue decimal.Decimal) domain.LogicalTrade {
	entryContracts, entryNotional := weightedSum(entryFills)
	exitContracts, exitNotional := weightedSum(exitFills)

	entryPrice := decimal.Zero
	if !entryContracts.IsZero() {
		entryPrice = entryNotional.Div(entryContracts)
	}
	exitPrice := decimal.Zero
	if !exitContracts.IsZero() {
		exitPrice = exitNotional.Div(exitContracts)
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

	leverage, ok := leverageMap[symbol]
	if !ok || leverage.IsZero() {
		leverage = leverageFromFill(entryFills[0])
	}

	return domain.LogicalTrade{
		Exchange:        domain.ExchangeBlofin,
		Symbol:          symbol,
		Side:            side,
		EntryPrice:      entryPrice,
		ExitPrice:       exitPrice,
		Quantity:        entryContracts.Mul(contractValue),
		RealizedPnL:     realizedPnL,
		Fees:            fees,
		EntryTime:       entryTime,
		ExitTime:        exitTime,
		Leverage:        leverage,
		ExchangeTradeID: entryFills[0].TradeID,
	}
}

func leverageFromFill(f domain.RawFill) decimal.Decimal {
	if f.Raw == nil {
		return decimal.Zero
	}
	raw, ok := f.Raw["lever"].(string)
	if !ok || raw == "" {
		return decimal.Zero
	}
	lev, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return lev
}

// BlofinPairRecord is the shape the legacy interleaved-pair layout ships:
// an exit-priced record whose Date is really the exit time, immediately
// followed by the matching entry-priced record carrying the real entry time.
type BlofinPairRecord struct {
	Symbol   string
	Entry    decimal.Decimal
	Exit     decimal.Decimal
	Date     time.Time
	ExitDate time.Time
	PnLUSD   decimal.Decimal
}

// MatchEntryExitPairs detects consecutive same-symbol pairs where the first
// record carries a non-zero pnl_usd (it is really the exit leg, mis-tagged
// with the exit time as its "date") and the second carries pnl_usd=0 (the
// real entry leg). It repairs both timestamp and price assignment and
// advances by 2 on a match, by 1 otherwise.
func MatchEntryExitPairs(records []BlofinPairRecord) []BlofinPairRecord {
	var out []BlofinPairRecord

	i := 0
	for i < len(records) {
		if i+1 < len(records) {
			cur, next := records[i], records[i+1]
			if cur.Symbol == next.Symbol && !cur.PnLUSD.IsZero() && next.PnLUSD.IsZero() {
				out = append(out, BlofinPairRecord{
					Symbol:   cur.Symbol,
					Entry:    next.Entry,
					Exit:     cur.Entry,
					Date:     next.Date,
					ExitDate: cur.Date,
					PnLUSD:   cur.PnLUSD,
				})
				i += 2
				continue
			}
		}
		out = append(out, records[i])
		i++
	}

	return out
}
