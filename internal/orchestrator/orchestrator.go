// Package orchestrator drives one sync job per exchange connection: fetch,
// aggregate, normalize, resolve leverage, dedup, persist, publish
// (SPEC_FULL.md §4.6).
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/aggregator"
	"github.com/tradesync/syncengine/internal/credentials"
	"github.com/tradesync/syncengine/internal/dedup"
	"github.com/tradesync/syncengine/internal/domain"
	"github.com/tradesync/syncengine/internal/events"
	"github.com/tradesync/syncengine/internal/exchange"
	"github.com/tradesync/syncengine/internal/leverage"
	"github.com/tradesync/syncengine/internal/metrics"
	"github.com/tradesync/syncengine/internal/normalizer"
)

const lastErrorMaxLen = 500

// ConnectionStore is the subset of the persistence interface the
// Orchestrator drives directly.
type ConnectionStore interface {
	GetConnection(ctx context.Context, id string) (domain.ExchangeConnection, error)
	ListConnections(ctx context.Context) ([]domain.ExchangeConnection, error)
	UpdateConnectionStatus(ctx context.Context, id string, status domain.SyncStatus, lastSyncTime *time.Time, lastError string) error
}

// TradeStore is the subset of the persistence interface the Orchestrator
// upserts new trades into.
type TradeStore interface {
	UpsertTrades(ctx context.Context, trades []domain.CanonicalTrade) error
}

type Orchestrator struct {
	connections ConnectionStore
	trades      TradeStore
	clients     *exchange.Factory
	leverage    *leverage.Resolver
	dedup       *dedup.Filter
	codec       *credentials.Codec
	publisher   *events.Publisher
	logger      *zap.Logger

	mu      sync.Mutex
	running map[string]bool
	wg      sync.WaitGroup
}

func New(
	connections ConnectionStore,
	trades TradeStore,
	clients *exchange.Factory,
	lev *leverage.Resolver,
	dd *dedup.Filter,
	codec *credentials.Codec,
	publisher *events.Publisher,
	logger *zap.Logger,
) *Orchestrator {
	return &Orchestrator{
		connections: connections,
		trades:      trades,
		clients:     clients,
		leverage:    lev,
		dedup:       dd,
		codec:       codec,
		publisher:   publisher,
		logger:      logger,
		running:     make(map[string]bool),
	}
}

// StartSync triggers an immediate sync of one connection. It returns once
// the job either starts running in the background or is skipped because one
// is already in progress; it does not wait for completion.
func (o *Orchestrator) StartSync(ctx context.Context, connectionID string) error {
	if !o.tryLock(connectionID) {
		return nil
	}
	o.wg.Add(1)
	go o.run(context.Background(), connectionID)
	return nil
}

// Resync is the user-initiated equivalent of StartSync.
func (o *Orchestrator) Resync(ctx context.Context, connectionID string) error {
	return o.StartSync(ctx, connectionID)
}

// Wait blocks until every sync job started by StartSync has returned. Call
// it during shutdown, after the scheduler has stopped accepting new
// firings, so the process never exits mid-persist.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

// Validate exercises a cheap authenticated endpoint before a connection is
// persisted (SPEC_FULL.md §6).
func (o *Orchestrator) Validate(ctx context.Context, ex domain.Exchange, key, secret, passphrase string) error {
	client, err := o.clients.Build(domain.ExchangeConnection{
		ID:         "validate",
		Exchange:   ex,
		APIKey:     key,
		Secret:     secret,
		Passphrase: passphrase,
	})
	if err != nil {
		return fmt.Errorf("build exchange client: %w", err)
	}
	return client.ValidateCredentials(ctx)
}

func (o *Orchestrator) tryLock(connectionID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.running[connectionID] {
		return false
	}
	o.running[connectionID] = true
	return true
}

func (o *Orchestrator) unlock(connectionID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.running, connectionID)
}

func (o *Orchestrator) run(ctx context.Context, connectionID string) {
	defer o.wg.Done()
	defer o.unlock(connectionID)

	conn, err := o.connections.GetConnection(ctx, connectionID)
	if err != nil {
		o.logger.Error("orchestrator: load connection failed", zap.String("connection_id", connectionID), zap.Error(err))
		return
	}

	start := time.Now()
	if err := o.connections.UpdateConnectionStatus(ctx, conn.ID, domain.SyncStatusInProgress, nil, ""); err != nil {
		o.logger.Error("orchestrator: mark in_progress failed", zap.String("connection_id", conn.ID), zap.Error(err))
		return
	}

	imported, err := o.syncOnce(ctx, conn)
	duration := time.Since(start)

	if err != nil {
		kind := "INTERNAL"
		var xerr *exchange.Error
		if errors.As(err, &xerr) {
			kind = string(xerr.Kind)
		}

		o.logger.Error("orchestrator: sync job failed",
			zap.String("connection_id", conn.ID),
			zap.String("kind", kind),
			zap.Error(err))

		msg := truncate(err.Error(), lastErrorMaxLen)
		if upErr := o.connections.UpdateConnectionStatus(ctx, conn.ID, domain.SyncStatusFailed, nil, msg); upErr != nil {
			o.logger.Error("orchestrator: mark failed status failed", zap.String("connection_id", conn.ID), zap.Error(upErr))
		}
		metrics.SyncErrors.WithLabelValues(string(conn.Exchange), kind).Inc()
		o.publisher.PublishSyncFailed(events.SyncFailed{
			ConnectionID: conn.ID,
			UserID:       conn.UserID,
			Exchange:     string(conn.Exchange),
			Error:        msg,
			Timestamp:    time.Now().UTC(),
		})
		return
	}

	now := time.Now().UTC()
	if upErr := o.connections.UpdateConnectionStatus(ctx, conn.ID, domain.SyncStatusSuccess, &now, ""); upErr != nil {
		o.logger.Error("orchestrator: mark success status failed", zap.String("connection_id", conn.ID), zap.Error(upErr))
	}

	metrics.SyncDuration.WithLabelValues(string(conn.Exchange)).Observe(duration.Seconds())
	metrics.TradesImported.WithLabelValues(string(conn.Exchange)).Add(float64(imported))
	o.publisher.PublishSyncCompleted(events.SyncCompleted{
		ConnectionID:   conn.ID,
		UserID:         conn.UserID,
		Exchange:       string(conn.Exchange),
		TradesImported: imported,
		DurationMS:     duration.Milliseconds(),
		Timestamp:      now,
	})
}

// syncOnce runs the fetch -> aggregate -> normalize -> leverage -> dedup ->
// persist pipeline for one connection and returns the number of trades
// newly upserted.
func (o *Orchestrator) syncOnce(ctx context.Context, conn domain.ExchangeConnection) (int, error) {
	decrypted, err := o.decryptConnection(conn)
	if err != nil {
		return 0, fmt.Errorf("decrypt credentials: %w", err)
	}

	client, err := o.clients.Build(decrypted)
	if err != nil {
		return 0, fmt.Errorf("build exchange client: %w", err)
	}

	fills, err := client.FetchTradeHistory(ctx, conn.LastSyncTime)
	if err != nil {
		return 0, fmt.Errorf("fetch trade history: %w", err)
	}

	var leverageMap, contractValueMap map[string]decimal.Decimal
	if mapper, ok := client.(exchange.LeverageMapper); ok {
		if leverageMap, err = mapper.LeverageMap(ctx); err != nil {
			return 0, fmt.Errorf("build leverage map: %w", err)
		}
	}
	if mapper, ok := client.(exchange.ContractValueMapper); ok {
		if contractValueMap, err = mapper.ContractValueMap(ctx); err != nil {
			return 0, fmt.Errorf("build contract value map: %w", err)
		}
	}

	logicalTrades := aggregator.Aggregate(conn.Exchange, fills, leverageMap, contractValueMap)

	canonical := make([]domain.CanonicalTrade, 0, len(logicalTrades))
	for _, lt := range logicalTrades {
		ct, ok := normalizer.Normalize(lt, conn.UserID)
		if !ok {
			metrics.RecordsDropped.WithLabelValues(string(conn.Exchange)).Inc()
			continue
		}
		resolved, err := o.leverage.Resolve(ctx, ct)
		if err != nil {
			return 0, fmt.Errorf("resolve leverage: %w", err)
		}
		canonical = append(canonical, resolved)
	}

	fresh, err := o.dedup.Filter(ctx, conn.UserID, string(conn.Exchange), canonical)
	if err != nil {
		return 0, fmt.Errorf("dedup filter: %w", err)
	}
	metrics.TradesDeduped.WithLabelValues(string(conn.Exchange)).Add(float64(len(canonical) - len(fresh)))
	if len(fresh) == 0 {
		return 0, nil
	}

	if err := o.trades.UpsertTrades(ctx, fresh); err != nil {
		return 0, fmt.Errorf("upsert trades: %w", err)
	}
	if err := o.dedup.MarkPersisted(ctx, conn.UserID, string(conn.Exchange), fresh); err != nil {
		o.logger.Warn("orchestrator: mark persisted cache update failed", zap.String("connection_id", conn.ID), zap.Error(err))
	}

	return len(fresh), nil
}

func (o *Orchestrator) decryptConnection(conn domain.ExchangeConnection) (domain.ExchangeConnection, error) {
	out := conn
	var err error
	if out.APIKey, err = o.codec.Decrypt(conn.APIKey); err != nil {
		return domain.ExchangeConnection{}, fmt.Errorf("decrypt api key: %w", err)
	}
	if conn.Secret != "" {
		if out.Secret, err = o.codec.Decrypt(conn.Secret); err != nil {
			return domain.ExchangeConnection{}, fmt.Errorf("decrypt secret: %w", err)
		}
	}
	if conn.Passphrase != "" {
		if out.Passphrase, err = o.codec.Decrypt(conn.Passphrase); err != nil {
			return domain.ExchangeConnection{}, fmt.Errorf("decrypt passphrase: %w", err)
		}
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

