// Package normalizer maps a LogicalTrade produced by aggregation into a
// CanonicalTrade: symbol canonicalization, numeric clamping, a validity
// filter, and fixed-precision rounding. It never resolves leverage or
// dedups; those are separate stages in the pipeline.
package normalizer

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

var quoteCurrencies = []string{"USDT", "BUSD", "USDC"}

var (
	maxMagnitude = decimal.New(1, 15) // (-1e15, 1e15) exclusive bound
	maxPrice     = decimal.New(1, 6)
	maxQuantity  = decimal.New(1, 6)
	maxPnL       = decimal.New(1, 5)
	maxLeverage  = decimal.NewFromInt(125)
)

var symbolPattern = regexp.MustCompile(`^[A-Z0-9]+-[A-Z0-9]+$`)

// Normalize converts one LogicalTrade into a CanonicalTrade, or returns
// ok=false if the record fails the validity filter. Leverage is carried
// through unresolved; the Leverage Resolver stage fixes it up afterward.
func Normalize(t domain.LogicalTrade, userID string) (domain.CanonicalTrade, bool) {
	entryPrice := clamp(t.EntryPrice, maxPrice)
	exitPrice := clamp(t.ExitPrice, maxPrice)
	quantity := clamp(t.Quantity, maxQuantity)
	fees := clamp(t.Fees, maxPrice)
	pnlUSD := clamp(t.RealizedPnL, maxPnL)
	leverage := clamp(t.Leverage, maxLeverage)

	if entryPrice.IsZero() || exitPrice.IsZero() {
		return domain.CanonicalTrade{}, false
	}
	if quantity.LessThanOrEqual(decimal.Zero) {
		return domain.CanonicalTrade{}, false
	}

	exchange := strings.ToLower(string(t.Exchange))
	if (exchange == string(domain.ExchangeBinance) || exchange == string(domain.ExchangeBlofin)) && pnlUSD.IsZero() {
		return domain.CanonicalTrade{}, false
	}

	return domain.CanonicalTrade{
		UserID:          userID,
		Exchange:        exchange,
		Symbol:          canonicalSymbol(t.Exchange, t.Symbol),
		Side:            strings.ToUpper(t.Side),
		EntryPrice:      entryPrice.Round(8),
		ExitPrice:       exitPrice.Round(8),
		Quantity:        quantity.Round(8),
		Leverage:        leverage.Round(2),
		Fees:            fees.Round(8),
		PnLUSD:          pnlUSD.Round(2),
		PnLPercent:      decimal.Zero, // filled in by the leverage resolver
		EntryTime:       t.EntryTime,
		ExitTime:        t.ExitTime,
		ExchangeTradeID: t.ExchangeTradeID,
	}, true
}

// canonicalSymbol strips the trailing quote currency to produce BASE-QUOTE.
// Hyperliquid reports bare coin tickers and always settles in USDC.
func canonicalSymbol(exchange domain.Exchange, symbol string) string {
	if exchange == domain.ExchangeHyperliquid {
		return symbol + "-USDC"
	}
	for _, quote := range quoteCurrencies {
		if strings.HasSuffix(symbol, quote) && len(symbol) > len(quote) {
			base := strings.TrimSuffix(strings.TrimSuffix(symbol, quote), "-")
			return base + "-" + quote
		}
	}
	return symbol
}

// MatchesCanonicalForm reports whether a symbol already has the BASE-QUOTE
// shape the pipeline's invariants require; used by tests and call sites that
// want to assert on normalizer output without re-deriving the regex.
func MatchesCanonicalForm(symbol string) bool {
	return symbolPattern.MatchString(symbol)
}

// clamp implements normalize_numeric_value: values outside (-1e15, 1e15),
// or whose magnitude exceeds the field-specific max, collapse to zero
// rather than propagating a garbage number downstream.
func clamp(v decimal.Decimal, fieldMax decimal.Decimal) decimal.Decimal {
	if v.Abs().GreaterThanOrEqual(maxMagnitude) {
		return decimal.Zero
	}
	if v.Abs().GreaterThan(fieldMax) {
		return decimal.Zero
	}
	return v
}
