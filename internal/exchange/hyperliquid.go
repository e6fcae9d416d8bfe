package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/config"
	"github.com/tradesync/syncengine/internal/domain"
	"github.com/tradesync/syncengine/internal/resilience"
)

// hyperliquidMaxFills is the hard cap the /info userFills endpoint imposes;
// there is no pagination cursor, so a wallet with a longer history is read
// only up to this many most-recent fills.
const hyperliquidMaxFills = 2000

var walletPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// HyperliquidClient queries on-chain fill data by wallet address. There is
// no request signing: the wallet address itself is the credential.
type HyperliquidClient struct {
	connectionID string
	wallet       string
	baseURL      string
	httpClient   *http.Client
	doer         *Doer
	logger       *zap.Logger
}

func NewHyperliquidClient(connectionID string, cfg config.ExchangeEndpointConfig, wallet string, pacer *resilience.Pacer, breakers *resilience.Breakers, logger *zap.Logger) *HyperliquidClient {
	c := &HyperliquidClient{
		connectionID: connectionID,
		wallet:       wallet,
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger:       logger,
	}
	c.doer = &Doer{
		HTTPClient:   c.httpClient,
		Pacer:        pacer,
		Breakers:     breakers,
		Exchange:     domain.ExchangeHyperliquid,
		BreakerName:  "hyperliquid:" + connectionID,
		RequestDelay: cfg.RequestDelay,
		MaxRetries:   cfg.MaxRetries,
	}
	return c
}

func (c *HyperliquidClient) post(ctx context.Context, payload interface{}) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, internalErr(domain.ExchangeHyperliquid, "encode request: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/info", bytes.NewReader(encoded))
	if err != nil {
		return nil, internalErr(domain.ExchangeHyperliquid, "build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doer.Do(ctx, req, func(status int, body []byte, transportErr error) error {
		return mapHyperliquidErr(status, body, transportErr)
	})
}

func mapHyperliquidErr(status int, body []byte, transportErr error) error {
	if transportErr != nil {
		return &Error{Kind: KindNetwork, Exchange: domain.ExchangeHyperliquid, Message: transportErr.Error()}
	}
	switch {
	case status == 429:
		return &Error{Kind: KindRateLimit, Exchange: domain.ExchangeHyperliquid, Message: "rate limited"}
	case status >= 500:
		return &Error{Kind: KindNetwork, Exchange: domain.ExchangeHyperliquid, Message: fmt.Sprintf("server error %d", status)}
	case status != 0 && status != 200:
		return &Error{Kind: KindInternal, Exchange: domain.ExchangeHyperliquid, Message: fmt.Sprintf("unexpected status %d: %s", status, string(body))}
	}
	return nil
}

// ValidateCredentials confirms the wallet address is well-formed and that
// the userFills endpoint responds for it.
func (c *HyperliquidClient) ValidateCredentials(ctx context.Context) error {
	if !walletPattern.MatchString(c.wallet) {
		return &Error{Kind: KindAuth, Exchange: domain.ExchangeHyperliquid, Message: "wallet address is not a valid 0x... address"}
	}
	_, err := c.post(ctx, map[string]string{"type": "userFills", "user": c.wallet})
	return err
}

type hyperliquidFill struct {
	Coin       string `json:"coin"`
	Px         string `json:"px"`
	Sz         string `json:"sz"`
	Side       string `json:"side"`
	Dir        string `json:"dir"`
	Fee        string `json:"fee"`
	ClosedPnl  string `json:"closedPnl"`
	Time       int64  `json:"time"`
	Tid        int64  `json:"tid"`
}

// FetchTradeHistory returns every fill the endpoint will give us — up to
// hyperliquidMaxFills, since userFills has no pagination cursor — filtered
// to since if provided.
func (c *HyperliquidClient) FetchTradeHistory(ctx context.Context, since *time.Time) ([]domain.RawFill, error) {
	body, err := c.post(ctx, map[string]string{"type": "userFills", "user": c.wallet})
	if err != nil {
		return nil, err
	}

	var raw []hyperliquidFill
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, internalErr(domain.ExchangeHyperliquid, "decode userFills: %v", err)
	}

	if len(raw) >= hyperliquidMaxFills {
		c.logger.Warn("hyperliquid: userFills returned the hard API cap, older fills may be missing",
			zap.Int("count", len(raw)), zap.Int("cap", hyperliquidMaxFills))
	}

	fills := make([]domain.RawFill, 0, len(raw))
	for _, f := range raw {
		px, _ := decimal.NewFromString(f.Px)
		sz, _ := decimal.NewFromString(f.Sz)
		fee, _ := decimal.NewFromString(f.Fee)
		pnl, _ := decimal.NewFromString(f.ClosedPnl)
		ts := time.UnixMilli(f.Time)

		if since != nil && ts.Before(*since) {
			continue
		}

		fills = append(fills, domain.RawFill{
			Exchange:    domain.ExchangeHyperliquid,
			Symbol:      f.Coin,
			Side:        sideOrDir(f),
			Price:       px,
			Quantity:    sz,
			Fee:         fee,
			RealizedPnL: pnl,
			Timestamp:   ts,
			TradeID:     fmt.Sprintf("%s_%d", f.Coin, f.Time),
			Raw: map[string]interface{}{
				"dir": f.Dir,
				"tid": f.Tid,
			},
		})
	}

	return fills, nil
}

// sideOrDir prefers the dir tag ("Open Long"/"Close Long"/...) used by the
// aggregator; it falls back to the raw side code ("A"/"B") only as a last
// resort for malformed records, mirroring the source's fallback chain.
func sideOrDir(f hyperliquidFill) string {
	if f.Dir != "" {
		return f.Dir
	}
	return f.Side
}
