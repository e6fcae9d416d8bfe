package resilience

import (
	"context"
	"testing"
	"time"
)

func TestPacerEnforcesPerExchangeDelay(t *testing.T) {
	p := NewPacer()
	ctx := context.Background()

	start := time.Now()
	if err := p.Wait(ctx, "binance", 50*time.Millisecond); err != nil {
		t.Fatalf("first Wait() error = %v", err)
	}
	if err := p.Wait(ctx, "binance", 50*time.Millisecond); err != nil {
		t.Fatalf("second Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Errorf("elapsed = %v, want at least ~50ms between two calls on the same exchange", elapsed)
	}
}

func TestPacerIsIndependentPerExchange(t *testing.T) {
	p := NewPacer()
	ctx := context.Background()

	if err := p.Wait(ctx, "binance", 100*time.Millisecond); err != nil {
		t.Fatalf("binance Wait() error = %v", err)
	}

	start := time.Now()
	if err := p.Wait(ctx, "bybit", 100*time.Millisecond); err != nil {
		t.Fatalf("bybit Wait() error = %v", err)
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("elapsed = %v, want bybit's first call to proceed immediately regardless of binance's pacing", elapsed)
	}
}
