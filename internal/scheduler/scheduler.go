// Package scheduler fires a periodic sync trigger across every connection
// (SPEC_FULL.md §4.6 Scheduler). It has no external job queue: a
// time.Ticker bound to the process lifecycle is the entire implementation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/domain"
)

// ConnectionLister is the subset of the persistence interface the scheduler
// needs to enumerate connections on each tick.
type ConnectionLister interface {
	ListConnections(ctx context.Context) ([]domain.ExchangeConnection, error)
}

// Syncer is the orchestrator surface the scheduler drives.
type Syncer interface {
	StartSync(ctx context.Context, connectionID string) error
}

type Scheduler struct {
	connections  ConnectionLister
	syncer       Syncer
	interval     time.Duration
	misfireGrace time.Duration
	logger       *zap.Logger

	stop   chan struct{}
	wg     sync.WaitGroup
	ticker *time.Ticker
}

func New(connections ConnectionLister, syncer Syncer, interval, misfireGrace time.Duration, logger *zap.Logger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if misfireGrace <= 0 {
		misfireGrace = time.Hour
	}
	return &Scheduler{
		connections:  connections,
		syncer:       syncer,
		interval:     interval,
		misfireGrace: misfireGrace,
		logger:       logger,
		stop:         make(chan struct{}),
	}
}

// Start begins firing on s.interval. A tick that arrives later than
// interval+misfireGrace after the last one (e.g. the process was asleep)
// still fires exactly once, not once per missed interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.ticker = time.NewTicker(s.interval)
	lastTick := time.Now()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for {
			select {
			case now := <-s.ticker.C:
				if now.Sub(lastTick) > s.interval+s.misfireGrace {
					s.logger.Warn("scheduler: tick arrived past misfire grace, firing once",
						zap.Duration("since_last_tick", now.Sub(lastTick)))
				}
				lastTick = now
				s.fire(ctx)
			case <-s.stop:
				return
			}
		}
	}()
}

func (s *Scheduler) fire(ctx context.Context) {
	conns, err := s.connections.ListConnections(ctx)
	if err != nil {
		s.logger.Error("scheduler: list connections failed", zap.Error(err))
		return
	}

	for _, c := range conns {
		if c.LastSyncStatus == domain.SyncStatusInProgress {
			continue
		}
		if err := s.syncer.StartSync(ctx, c.ID); err != nil {
			s.logger.Error("scheduler: start sync failed", zap.String("connection_id", c.ID), zap.Error(err))
		}
	}
}

// Stop halts the ticker and waits for the scheduler's own firing goroutine
// to return. It does not wait for the sync jobs that firing started — those
// run detached in the Orchestrator, which tracks them on its own
// sync.WaitGroup; callers should call Orchestrator.Wait after Stop to block
// for an orderly shutdown.
func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stop)
	s.wg.Wait()
}
