package aggregator

import (
	"testing"
	"time"

	"github.com/tradesync/syncengine/internal/domain"
)

func TestAggregateDispatchesPerExchange(t *testing.T) {
	base := time.Now()
	bybitFill := domain.RawFill{
		Exchange: domain.ExchangeBybit, Symbol: "BTCUSDT", Side: "Buy",
		Quantity: dec("1"), Timestamp: base, TradeID: "1",
	}
	trades := Aggregate(domain.ExchangeBybit, []domain.RawFill{bybitFill}, nil, nil)
	if len(trades) != 1 {
		t.Fatalf("bybit dispatch: got %d trades, want 1", len(trades))
	}

	if got := Aggregate(domain.Exchange("unknown"), []domain.RawFill{bybitFill}, nil, nil); got != nil {
		t.Errorf("unknown exchange dispatch = %v, want nil", got)
	}
}
