package exchange

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/config"
	"github.com/tradesync/syncengine/internal/domain"
	"github.com/tradesync/syncengine/internal/resilience"
)

// Factory builds the right signed client for a connection's exchange tag
// (SPEC_FULL.md §9: "Polymorphism over four exchanges" — one dispatch point,
// no per-call type switches elsewhere in the pipeline).
type Factory struct {
	cfg      config.ExchangesConfig
	pacer    *resilience.Pacer
	breakers *resilience.Breakers
	logger   *zap.Logger
}

func NewFactory(cfg config.ExchangesConfig, pacer *resilience.Pacer, breakers *resilience.Breakers, logger *zap.Logger) *Factory {
	return &Factory{cfg: cfg, pacer: pacer, breakers: breakers, logger: logger}
}

func (f *Factory) Build(conn domain.ExchangeConnection) (Client, error) {
	switch conn.Exchange {
	case domain.ExchangeBinance:
		return NewBinanceClient(conn.ID, f.cfg.Binance, conn.APIKey, conn.Secret, f.pacer, f.breakers, f.logger), nil
	case domain.ExchangeBybit:
		return NewBybitClient(conn.ID, f.cfg.Bybit, conn.APIKey, conn.Secret, f.pacer, f.breakers, f.logger), nil
	case domain.ExchangeBlofin:
		return NewBlofinClient(conn.ID, f.cfg.Blofin, conn.APIKey, conn.Secret, conn.Passphrase, f.pacer, f.breakers, f.logger), nil
	case domain.ExchangeHyperliquid:
		return NewHyperliquidClient(conn.ID, f.cfg.Hyperliquid, conn.APIKey, f.pacer, f.breakers, f.logger), nil
	default:
		return nil, fmt.Errorf("exchange: unsupported exchange tag %q", conn.Exchange)
	}
}
