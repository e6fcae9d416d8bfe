package aggregator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

func TestBlofinAggregateContractConversion(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []domain.RawFill{
		{
			Exchange:    domain.ExchangeBlofin,
			Symbol:      "SOL-USDT",
			Side:        "buy",
			Price:       dec("150"),
			Quantity:    dec("5"),
			Fee:         decimal.Zero,
			RealizedPnL: decimal.Zero,
			Timestamp:   base,
			TradeID:     "e1",
		},
		{
			Exchange:    domain.ExchangeBlofin,
			Symbol:      "SOL-USDT",
			Side:        "sell",
			Price:       dec("155"),
			Quantity:    dec("5"),
			Fee:         decimal.Zero,
			RealizedPnL: dec("25"),
			Timestamp:   base.Add(time.Hour),
			TradeID:     "e2",
		},
	}
	contractValueMap := map[string]decimal.Decimal{"SOL-USDT": decimal.NewFromInt(1)}
	leverageMap := map[string]decimal.Decimal{"SOL-USDT": decimal.NewFromInt(20)}

	trades := BlofinAggregate(fills, leverageMap, contractValueMap)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}

	tr := trades[0]
	if !tr.Quantity.Equal(dec("5")) {
		t.Errorf("quantity = %s, want 5", tr.Quantity)
	}
	if !tr.EntryPrice.Equal(dec("150")) {
		t.Errorf("entry price = %s, want 150", tr.EntryPrice)
	}
	if !tr.ExitPrice.Equal(dec("155")) {
		t.Errorf("exit price = %s, want 155", tr.ExitPrice)
	}
	if !tr.RealizedPnL.Equal(dec("25")) {
		t.Errorf("pnl = %s, want 25", tr.RealizedPnL)
	}
	if !tr.Leverage.Equal(decimal.NewFromInt(20)) {
		t.Errorf("leverage = %s, want 20", tr.Leverage)
	}
}

func TestBlofinAggregateContractValueScaling(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []domain.RawFill{
		{
			Symbol: "DOGE-USDT", Side: "buy", Price: dec("0.1"), Quantity: dec("10"),
			RealizedPnL: decimal.Zero, Timestamp: base, TradeID: "1",
		},
		{
			Symbol: "DOGE-USDT", Side: "sell", Price: dec("0.12"), Quantity: dec("10"),
			RealizedPnL: dec("2"), Timestamp: base.Add(time.Hour), TradeID: "2",
		},
	}
	contractValueMap := map[string]decimal.Decimal{"DOGE-USDT": dec("100")}

	trades := BlofinAggregate(fills, nil, contractValueMap)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	if !trades[0].Quantity.Equal(dec("1000")) {
		t.Errorf("quantity = %s, want 1000 (10 contracts * contractValue 100)", trades[0].Quantity)
	}
}

func TestMatchEntryExitPairsRepairsSwappedRecord(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)

	records := []BlofinPairRecord{
		{Symbol: "ETH-USDT", Entry: dec("2050"), Date: t2, PnLUSD: dec("30")},
		{Symbol: "ETH-USDT", Entry: dec("2000"), Date: t1, PnLUSD: decimal.Zero},
	}

	out := MatchEntryExitPairs(records)
	if len(out) != 1 {
		t.Fatalf("got %d records, want 1", len(out))
	}

	r := out[0]
	if !r.Entry.Equal(dec("2000")) {
		t.Errorf("entry = %s, want 2000", r.Entry)
	}
	if !r.Exit.Equal(dec("2050")) {
		t.Errorf("exit = %s, want 2050", r.Exit)
	}
	if !r.Date.Equal(t1) {
		t.Errorf("date = %v, want %v", r.Date, t1)
	}
	if !r.ExitDate.Equal(t2) {
		t.Errorf("exit date = %v, want %v", r.ExitDate, t2)
	}
}

func TestMatchEntryExitPairsLeavesUnmatchedAlone(t *testing.T) {
	records := []BlofinPairRecord{
		{Symbol: "ETH-USDT", Entry: dec("2000"), PnLUSD: decimal.Zero},
		{Symbol: "BTC-USDT", Entry: dec("50000"), PnLUSD: dec("5")},
	}
	out := MatchEntryExitPairs(records)
	if len(out) != 2 {
		t.Fatalf("got %d records, want 2 (no matching pair)", len(out))
	}
}
