package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/config"
	"github.com/tradesync/syncengine/internal/domain"
)

// NewPostgresPool creates a new PostgreSQL connection pool.
func NewPostgresPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
		cfg.SSLMode,
	)

	poolConfig, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// RunMigrations creates the tables the sync pipeline persists to.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS exchange_connections (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			exchange VARCHAR(20) NOT NULL,
			api_key TEXT NOT NULL,
			secret TEXT NOT NULL DEFAULT '',
			passphrase TEXT NOT NULL DEFAULT '',
			last_sync_time TIMESTAMPTZ,
			last_sync_status VARCHAR(20) NOT NULL DEFAULT 'pending',
			last_error TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (user_id, exchange)
		);`,

		`CREATE TABLE IF NOT EXISTS canonical_trades (
			id BIGSERIAL PRIMARY KEY,
			user_id TEXT NOT NULL,
			exchange VARCHAR(20) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			side VARCHAR(10) NOT NULL,
			entry_price DECIMAL(20, 8) NOT NULL,
			exit_price DECIMAL(20, 8) NOT NULL,
			quantity DECIMAL(20, 8) NOT NULL,
			leverage DECIMAL(6, 2) NOT NULL,
			fees DECIMAL(20, 8) NOT NULL,
			pnl_usd DECIMAL(14, 2) NOT NULL,
			pnl_percent DECIMAL(14, 4) NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			exchange_trade_id TEXT NOT NULL,
			UNIQUE (user_id, exchange, exchange_trade_id)
		);`,

		`CREATE INDEX IF NOT EXISTS idx_canonical_trades_user_exchange ON canonical_trades(user_id, exchange);`,

		`CREATE TABLE IF NOT EXISTS leverage_overrides (
			user_id TEXT NOT NULL,
			exchange VARCHAR(20) NOT NULL,
			symbol VARCHAR(20) NOT NULL,
			leverage DECIMAL(6, 2) NOT NULL,
			PRIMARY KEY (user_id, exchange, symbol)
		);`,
	}

	for i, migration := range migrations {
		if _, err := pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	return nil
}

// ConnectionStore is the Postgres-backed adapter for SPEC_FULL.md §6's
// connection persistence interface.
type ConnectionStore struct {
	pool *pgxpool.Pool
}

func NewConnectionStore(pool *pgxpool.Pool) *ConnectionStore {
	return &ConnectionStore{pool: pool}
}

func (s *ConnectionStore) GetConnection(ctx context.Context, id string) (domain.ExchangeConnection, error) {
	var c domain.ExchangeConnection
	row := s.pool.QueryRow(ctx, `
		SELECT id, user_id, exchange, api_key, secret, passphrase,
		       last_sync_time, last_sync_status, last_error, created_at
		FROM exchange_connections WHERE id = $1`, id)

	err := row.Scan(&c.ID, &c.UserID, &c.Exchange, &c.APIKey, &c.Secret, &c.Passphrase,
		&c.LastSyncTime, &c.LastSyncStatus, &c.LastError, &c.CreatedAt)
	if err != nil {
		return domain.ExchangeConnection{}, fmt.Errorf("get connection %s: %w", id, err)
	}
	return c, nil
}

func (s *ConnectionStore) ListConnections(ctx context.Context) ([]domain.ExchangeConnection, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, exchange, api_key, secret, passphrase,
		       last_sync_time, last_sync_status, last_error, created_at
		FROM exchange_connections`)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	defer rows.Close()

	var out []domain.ExchangeConnection
	for rows.Next() {
		var c domain.ExchangeConnection
		if err := rows.Scan(&c.ID, &c.UserID, &c.Exchange, &c.APIKey, &c.Secret, &c.Passphrase,
			&c.LastSyncTime, &c.LastSyncStatus, &c.LastError, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan connection row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *ConnectionStore) UpdateConnectionStatus(ctx context.Context, id string, status domain.SyncStatus, lastSyncTime *time.Time, lastError string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE exchange_connections
		SET last_sync_status = $2, last_sync_time = COALESCE($3, last_sync_time), last_error = $4
		WHERE id = $1`, id, status, lastSyncTime, lastError)
	if err != nil {
		return fmt.Errorf("update connection status %s: %w", id, err)
	}
	return nil
}

// TradeStore is the Postgres-backed adapter for trade persistence and
// dedup-id lookups.
type TradeStore struct {
	pool *pgxpool.Pool
}

func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

func (s *TradeStore) ListExistingTradeIDs(ctx context.Context, userID string, exchange string) (map[string]struct{}, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT exchange_trade_id FROM canonical_trades WHERE user_id = $1 AND exchange = $2`, userID, exchange)
	if err != nil {
		return nil, fmt.Errorf("list existing trade ids: %w", err)
	}
	defer rows.Close()

	ids := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan trade id: %w", err)
		}
		ids[id] = struct{}{}
	}
	return ids, rows.Err()
}

// UpsertTrades is idempotent by (user_id, exchange, exchange_trade_id); a
// conflicting row is left untouched rather than overwritten, since the
// dedup stage should already have filtered these down to new trades.
func (s *TradeStore) UpsertTrades(ctx context.Context, trades []domain.CanonicalTrade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(`
			INSERT INTO canonical_trades
				(user_id, exchange, symbol, side, entry_price, exit_price, quantity,
				 leverage, fees, pnl_usd, pnl_percent, entry_time, exit_time, exchange_trade_id)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			ON CONFLICT (user_id, exchange, exchange_trade_id) DO NOTHING`,
			t.UserID, t.Exchange, t.Symbol, t.Side, t.EntryPrice, t.ExitPrice, t.Quantity,
			t.Leverage, t.Fees, t.PnLUSD, t.PnLPercent, t.EntryTime, t.ExitTime, t.ExchangeTradeID)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert trade batch: %w", err)
		}
	}
	return nil
}

// LeverageStore is the Postgres-backed adapter for user leverage overrides.
type LeverageStore struct {
	pool *pgxpool.Pool
}

func NewLeverageStore(pool *pgxpool.Pool) *LeverageStore {
	return &LeverageStore{pool: pool}
}

func (s *LeverageStore) GetLeverageOverrides(ctx context.Context, userID string, exchange string) (map[string]decimal.Decimal, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT symbol, leverage FROM leverage_overrides WHERE user_id = $1 AND exchange = $2`, userID, exchange)
	if err != nil {
		return nil, fmt.Errorf("get leverage overrides: %w", err)
	}
	defer rows.Close()

	out := map[string]decimal.Decimal{}
	for rows.Next() {
		var symbol string
		var leverage decimal.Decimal
		if err := rows.Scan(&symbol, &leverage); err != nil {
			return nil, fmt.Errorf("scan leverage override: %w", err)
		}
		out[symbol] = leverage
	}
	return out, rows.Err()
}
