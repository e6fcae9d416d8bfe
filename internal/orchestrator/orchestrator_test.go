package orchestrator

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/config"
	"github.com/tradesync/syncengine/internal/domain"
	"github.com/tradesync/syncengine/internal/exchange"
	"github.com/tradesync/syncengine/internal/resilience"
)

func newTestOrchestrator() *Orchestrator {
	factory := exchange.NewFactory(config.ExchangesConfig{}, resilience.NewPacer(), resilience.NewBreakers(resilience.BreakerConfig{}), zap.NewNop())
	return New(nil, nil, factory, nil, nil, nil, nil, zap.NewNop())
}

func TestTryLockPreventsConcurrentSyncOfSameConnection(t *testing.T) {
	o := newTestOrchestrator()

	if !o.tryLock("conn-1") {
		t.Fatal("tryLock() = false on first call, want true")
	}
	if o.tryLock("conn-1") {
		t.Fatal("tryLock() = true on second call for the same connection, want false")
	}
	o.unlock("conn-1")
	if !o.tryLock("conn-1") {
		t.Fatal("tryLock() = false after unlock, want true")
	}
}

func TestTryLockIsIndependentPerConnection(t *testing.T) {
	o := newTestOrchestrator()
	if !o.tryLock("conn-a") {
		t.Fatal("tryLock(conn-a) = false, want true")
	}
	if !o.tryLock("conn-b") {
		t.Fatal("tryLock(conn-b) = false, want true (independent connection)")
	}
}

func TestTruncateLeavesShortStringsAlone(t *testing.T) {
	if got := truncate("short", 500); got != "short" {
		t.Errorf("truncate() = %q, want unchanged", got)
	}
}

func TestTruncateCapsLongStrings(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'x'
	}
	got := truncate(string(long), 500)
	if len(got) != 500 {
		t.Errorf("len(truncate()) = %d, want 500", len(got))
	}
}

func TestValidateRejectsUnsupportedExchange(t *testing.T) {
	o := newTestOrchestrator()
	err := o.Validate(context.Background(), domain.Exchange("unsupported"), "key", "secret", "")
	if err == nil {
		t.Error("Validate() error = nil, want error for an unsupported exchange tag")
	}
}
