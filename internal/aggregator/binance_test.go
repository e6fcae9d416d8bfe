package aggregator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestBinanceAggregateSingleRoundTrip(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	fills := []domain.RawFill{
		{
			Exchange:    domain.ExchangeBinance,
			Symbol:      "BTCUSDT",
			Side:        "BUY",
			Price:       dec("50000"),
			Quantity:    dec("0.1"),
			Fee:         dec("1.0"),
			RealizedPnL: decimal.Zero,
			Timestamp:   base,
			TradeID:     "1",
		},
		{
			Exchange:    domain.ExchangeBinance,
			Symbol:      "BTCUSDT",
			Side:        "SELL",
			Price:       dec("51000"),
			Quantity:    dec("0.1"),
			Fee:         dec("1.02"),
			RealizedPnL: dec("100.0"),
			Timestamp:   base.Add(time.Hour),
			TradeID:     "2",
		},
	}
	leverageMap := map[string]decimal.Decimal{"BTCUSDT": decimal.NewFromInt(10)}

	trades := BinanceAggregate(fills, leverageMap)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}

	tr := trades[0]
	if tr.Symbol != "BTCUSDT" {
		t.Errorf("symbol = %s, want BTCUSDT", tr.Symbol)
	}
	if tr.Side != "BUY" {
		t.Errorf("side = %s, want BUY", tr.Side)
	}
	if !tr.EntryPrice.Equal(dec("50000")) {
		t.Errorf("entry price = %s, want 50000", tr.EntryPrice)
	}
	if !tr.ExitPrice.Equal(dec("51000")) {
		t.Errorf("exit price = %s, want 51000", tr.ExitPrice)
	}
	if !tr.Quantity.Equal(dec("0.1")) {
		t.Errorf("quantity = %s, want 0.1", tr.Quantity)
	}
	if !tr.RealizedPnL.Equal(dec("100.0")) {
		t.Errorf("realized pnl = %s, want 100.0", tr.RealizedPnL)
	}
	if !tr.Fees.Equal(dec("2.02")) {
		t.Errorf("fees = %s, want 2.02", tr.Fees)
	}
	if !tr.Leverage.Equal(decimal.NewFromInt(10)) {
		t.Errorf("leverage = %s, want 10", tr.Leverage)
	}
	if !tr.EntryTime.Equal(base) {
		t.Errorf("entry time = %v, want %v", tr.EntryTime, base)
	}
	if !tr.ExitTime.Equal(base.Add(time.Hour)) {
		t.Errorf("exit time = %v, want %v", tr.ExitTime, base.Add(time.Hour))
	}
}

func TestBinanceAggregateDropsUnmatchedEntry(t *testing.T) {
	fills := []domain.RawFill{
		{
			Exchange:    domain.ExchangeBinance,
			Symbol:      "ETHUSDT",
			Side:        "BUY",
			Price:       dec("3000"),
			Quantity:    dec("1"),
			Fee:         dec("1"),
			RealizedPnL: decimal.Zero,
			Timestamp:   time.Now(),
			TradeID:     "1",
		},
	}
	trades := BinanceAggregate(fills, nil)
	if len(trades) != 0 {
		t.Fatalf("got %d trades, want 0 (no exit leg present)", len(trades))
	}
}

func TestWeightedSum(t *testing.T) {
	fills := []domain.RawFill{
		{Price: dec("100"), Quantity: dec("2")},
		{Price: dec("200"), Quantity: dec("1")},
	}
	qty, notional := weightedSum(fills)
	if !qty.Equal(dec("3")) {
		t.Errorf("qty = %s, want 3", qty)
	}
	if !notional.Equal(dec("400")) {
		t.Errorf("notional = %s, want 400", notional)
	}
}
