package aggregator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

func hlFill(coin, dir string, px, sz, fee string, pnl string, ts time.Time, tid string) domain.RawFill {
	return domain.RawFill{
		Exchange:    domain.ExchangeHyperliquid,
		Symbol:      coin,
		Price:       dec(px),
		Quantity:    dec(sz),
		Fee:         dec(fee),
		RealizedPnL: dec(pnl),
		Timestamp:   ts,
		TradeID:     tid,
		Raw:         map[string]interface{}{"dir": dir},
	}
}

func TestHyperliquidAggregateMatch(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	fills := []domain.RawFill{
		hlFill("ETH", "Open Long", "2000", "1", "0.5", "0", t1, "o1"),
		hlFill("ETH", "Close Long", "2100", "1", "0.5", "100", t2, "c1"),
	}

	trades := HyperliquidAggregate(fills, decimal.NewFromInt(10))
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}

	tr := trades[0]
	if tr.Symbol != "ETH" {
		t.Errorf("symbol = %s, want ETH", tr.Symbol)
	}
	if tr.Side != "BUY" {
		t.Errorf("side = %s, want BUY", tr.Side)
	}
	if !tr.EntryPrice.Equal(dec("2000")) {
		t.Errorf("entry price = %s, want 2000", tr.EntryPrice)
	}
	if !tr.ExitPrice.Equal(dec("2100")) {
		t.Errorf("exit price = %s, want 2100", tr.ExitPrice)
	}
	if !tr.Quantity.Equal(dec("1")) {
		t.Errorf("quantity = %s, want 1", tr.Quantity)
	}
	if !tr.RealizedPnL.Equal(dec("100")) {
		t.Errorf("pnl = %s, want 100", tr.RealizedPnL)
	}
	if !tr.Fees.Equal(dec("1.0")) {
		t.Errorf("fees = %s, want 1.0", tr.Fees)
	}
	if !tr.Leverage.Equal(decimal.NewFromInt(10)) {
		t.Errorf("leverage = %s, want 10", tr.Leverage)
	}
	if !tr.EntryTime.Equal(t1) {
		t.Errorf("entry time = %v, want %v", tr.EntryTime, t1)
	}
	if !tr.ExitTime.Equal(t2) {
		t.Errorf("exit time = %v, want %v", tr.ExitTime, t2)
	}
}

func TestHyperliquidAggregateCloseWithoutOpenIsStandalone(t *testing.T) {
	fills := []domain.RawFill{
		hlFill("BTC", "Close Short", "50000", "0.5", "1", "20", time.Now(), "lone"),
	}
	trades := HyperliquidAggregate(fills, decimal.NewFromInt(10))
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	tr := trades[0]
	if tr.Side != "SELL" {
		t.Errorf("side = %s, want SELL", tr.Side)
	}
	if !tr.EntryPrice.Equal(tr.ExitPrice) {
		t.Errorf("standalone trade should have entry == exit price, got entry=%s exit=%s", tr.EntryPrice, tr.ExitPrice)
	}
	if tr.ExchangeTradeID != "lone" {
		t.Errorf("exchange trade id = %s, want the raw fill's own TradeID", tr.ExchangeTradeID)
	}
}

func TestHyperliquidAggregatePartialClose(t *testing.T) {
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	t3 := t1.Add(2 * time.Hour)
	fills := []domain.RawFill{
		hlFill("SOL", "Open Long", "100", "2", "0", "0", t1, "o1"),
		hlFill("SOL", "Close Long", "110", "1", "0", "10", t2, "c1"),
		hlFill("SOL", "Close Long", "120", "1", "0", "20", t3, "c2"),
	}
	trades := HyperliquidAggregate(fills, decimal.NewFromInt(10))
	if len(trades) != 2 {
		t.Fatalf("got %d trades, want 2 (two partial closes against one open)", len(trades))
	}
	for _, tr := range trades {
		if !tr.EntryPrice.Equal(dec("100")) {
			t.Errorf("entry price = %s, want 100 for both partial closes", tr.EntryPrice)
		}
	}
}
