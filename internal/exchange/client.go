// Package exchange implements the signed REST clients for each supported
// exchange behind one common interface, so the Orchestrator can dispatch on
// an ExchangeConnection's exchange tag without knowing exchange-specific
// signing or pagination details.
package exchange

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tradesync/syncengine/internal/domain"
)

// Client is the contract every per-exchange client implements (SPEC_FULL.md
// §4.1).
type Client interface {
	// FetchTradeHistory returns every raw fill since the given instant
	// (nil means the client's own default lookback window).
	FetchTradeHistory(ctx context.Context, since *time.Time) ([]domain.RawFill, error)
	// ValidateCredentials exercises a cheap authenticated endpoint to
	// confirm the stored key/secret/passphrase actually work.
	ValidateCredentials(ctx context.Context) error
}

// LeverageMapper is implemented by clients whose account endpoints expose
// current leverage by symbol (Binance, Blofin); the aggregator uses this to
// fill in LogicalTrade.Leverage since fills themselves don't always carry it.
type LeverageMapper interface {
	LeverageMap(ctx context.Context) (map[string]decimal.Decimal, error)
}

// ContractValueMapper is implemented only by Blofin, whose fill sizes are
// denominated in contracts rather than coins.
type ContractValueMapper interface {
	ContractValueMap(ctx context.Context) (map[string]decimal.Decimal, error)
}

// Kind classifies client-facing failures into the taxonomy in
// SPEC_FULL.md §7, so the Orchestrator can decide whether to retry, surface
// a remediation string, or just fail the job.
type Kind string

const (
	KindAuth       Kind = "AUTH_ERROR"
	KindClockSkew  Kind = "CLOCK_SKEW"
	KindPermission Kind = "PERMISSION_ERROR"
	KindRateLimit  Kind = "RATE_LIMITED"
	KindNetwork    Kind = "NETWORK_ERROR"
	KindInternal   Kind = "INTERNAL"
)

// Error is the typed error every client returns for a failed request.
type Error struct {
	Kind        Kind
	Exchange    domain.Exchange
	Message     string
	Remediation string
}

func (e *Error) Error() string {
	if e.Remediation != "" {
		return e.Message + " (" + e.Remediation + ")"
	}
	return e.Message
}

// Retryable reports whether err (from any exchange client) should be
// retried by internal/resilience.Retry.
func Retryable(err error) bool {
	var xerr *Error
	if !errors.As(err, &xerr) {
		return false
	}
	return xerr.Kind == KindRateLimit || xerr.Kind == KindNetwork
}
