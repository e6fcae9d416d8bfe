// Package domain holds the shared value types that flow through the sync
// pipeline: raw exchange connections, the in-memory position values produced
// by aggregation, and the canonical trade persisted downstream.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Exchange string

const (
	ExchangeBinance     Exchange = "binance"
	ExchangeBybit       Exchange = "bybit"
	ExchangeBlofin      Exchange = "blofin"
	ExchangeHyperliquid Exchange = "hyperliquid"
)

type SyncStatus string

const (
	SyncStatusPending    SyncStatus = "pending"
	SyncStatusInProgress SyncStatus = "in_progress"
	SyncStatusSuccess    SyncStatus = "success"
	SyncStatusFailed     SyncStatus = "failed"
)

// ExchangeConnection is one user's credential set for one exchange.
// For Hyperliquid, APIKey holds the wallet address and Secret/Passphrase
// are empty.
type ExchangeConnection struct {
	ID             string
	UserID         string
	Exchange       Exchange
	APIKey         string // encrypted at rest; decrypted just before use
	Secret         string
	Passphrase     string
	LastSyncTime   *time.Time
	LastSyncStatus SyncStatus
	LastError      string
	CreatedAt      time.Time
}

// RawFill is an exchange-native execution record. Its shape varies by
// exchange; it never leaves the pipeline that produced it.
type RawFill struct {
	Exchange    Exchange
	Symbol      string
	Side        string // exchange-native casing (BUY/SELL, Long/Short, A/B...)
	Price       decimal.Decimal
	Quantity    decimal.Decimal
	Fee         decimal.Decimal
	RealizedPnL decimal.Decimal
	Timestamp   time.Time
	TradeID     string // orderId/tradeId/tid, exchange-specific
	Raw         map[string]interface{}
}

// LogicalTrade is the pre-normalization result of fill aggregation: one
// reconstructed round trip, still carrying exchange-native casing and units.
type LogicalTrade struct {
	Exchange         Exchange
	Symbol           string
	Side             string
	EntryPrice       decimal.Decimal
	ExitPrice        decimal.Decimal
	Quantity         decimal.Decimal
	RealizedPnL      decimal.Decimal
	Fees             decimal.Decimal
	EntryTime        time.Time
	ExitTime         time.Time
	Leverage         decimal.Decimal // zero means "not supplied by the exchange"
	ExchangeTradeID  string
}

// CanonicalTrade is the normalized output of the pipeline.
type CanonicalTrade struct {
	UserID          string
	Exchange        string
	Symbol          string
	Side            string
	EntryPrice      decimal.Decimal
	ExitPrice       decimal.Decimal
	Quantity        decimal.Decimal
	Leverage        decimal.Decimal
	Fees            decimal.Decimal
	PnLUSD          decimal.Decimal
	PnLPercent      decimal.Decimal
	EntryTime       time.Time
	ExitTime        time.Time
	ExchangeTradeID string
}

// LeverageOverrideKey identifies a user's manual leverage override for a
// given exchange+symbol pair.
type LeverageOverrideKey struct {
	UserID   string
	Exchange string
	Symbol   string
}
