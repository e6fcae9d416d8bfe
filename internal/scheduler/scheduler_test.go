package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/domain"
)

type fakeConnections struct {
	conns []domain.ExchangeConnection
}

func (f *fakeConnections) ListConnections(ctx context.Context) ([]domain.ExchangeConnection, error) {
	return f.conns, nil
}

type fakeSyncer struct {
	mu      sync.Mutex
	started []string
}

func (f *fakeSyncer) StartSync(ctx context.Context, connectionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, connectionID)
	return nil
}

func (f *fakeSyncer) startedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.started))
	copy(out, f.started)
	return out
}

func TestFireSkipsInProgressConnections(t *testing.T) {
	conns := &fakeConnections{conns: []domain.ExchangeConnection{
		{ID: "a", LastSyncStatus: domain.SyncStatusInProgress},
		{ID: "b", LastSyncStatus: domain.SyncStatusSuccess},
		{ID: "c", LastSyncStatus: domain.SyncStatusFailed},
	}}
	syncer := &fakeSyncer{}
	s := New(conns, syncer, time.Hour, time.Hour, zap.NewNop())

	s.fire(context.Background())

	got := syncer.startedIDs()
	if len(got) != 2 {
		t.Fatalf("started = %v, want 2 connections (in_progress one skipped)", got)
	}
	for _, id := range got {
		if id == "a" {
			t.Errorf("started includes %q, want in_progress connection skipped", id)
		}
	}
}

func TestStartFiresOnTickerAndStopWaits(t *testing.T) {
	conns := &fakeConnections{conns: []domain.ExchangeConnection{{ID: "only"}}}
	syncer := &fakeSyncer{}
	s := New(conns, syncer, 20*time.Millisecond, time.Hour, zap.NewNop())

	s.Start(context.Background())
	time.Sleep(70 * time.Millisecond)
	s.Stop()

	got := syncer.startedIDs()
	if len(got) == 0 {
		t.Fatal("started = [], want at least one tick to have fired")
	}
}

func TestNewAppliesDefaultsForNonPositiveDurations(t *testing.T) {
	s := New(&fakeConnections{}, &fakeSyncer{}, 0, 0, zap.NewNop())
	if s.interval != 24*time.Hour {
		t.Errorf("interval = %v, want 24h default", s.interval)
	}
	if s.misfireGrace != time.Hour {
		t.Errorf("misfireGrace = %v, want 1h default", s.misfireGrace)
	}
}
