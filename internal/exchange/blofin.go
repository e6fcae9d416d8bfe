package exchange

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/tradesync/syncengine/internal/config"
	"github.com/tradesync/syncengine/internal/domain"
	"github.com/tradesync/syncengine/internal/resilience"
)

const (
	blofinPageLimit = 100
	blofinSafetyCap = 10000
)

type BlofinClient struct {
	connectionID string
	apiKey       string
	secret       string
	passphrase   string
	baseURL      string
	httpClient   *http.Client
	doer         *Doer
	logger       *zap.Logger
}

func NewBlofinClient(connectionID string, cfg config.ExchangeEndpointConfig, apiKey, secret, passphrase string, pacer *resilience.Pacer, breakers *resilience.Breakers, logger *zap.Logger) *BlofinClient {
	c := &BlofinClient{
		connectionID: connectionID,
		apiKey:       apiKey,
		secret:       secret,
		passphrase:   passphrase,
		baseURL:      cfg.BaseURL,
		httpClient:   &http.Client{Timeout: cfg.HTTPTimeout},
		logger:       logger,
	}
	c.doer = &Doer{
		HTTPClient:   c.httpClient,
		Pacer:        pacer,
		Breakers:     breakers,
		Exchange:     domain.ExchangeBlofin,
		BreakerName:  "blofin:" + connectionID,
		RequestDelay: cfg.RequestDelay,
		MaxRetries:   cfg.MaxRetries,
	}
	return c
}

// sign implements Blofin's scheme: base64(hex(HMAC-SHA256(secret,
// path+method+timestamp+nonce+body))).
func (c *BlofinClient) sign(path, method, timestamp, nonce, body string) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(path + method + timestamp + nonce + body))
	hexDigest := hex.EncodeToString(mac.Sum(nil))
	return base64.StdEncoding.EncodeToString([]byte(hexDigest))
}

func (c *BlofinClient) signedGet(ctx context.Context, path string) ([]byte, error) {
	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	nonce := uuid.NewString()
	signature := c.sign(path, http.MethodGet, timestamp, nonce, "")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, internalErr(domain.ExchangeBlofin, "build request: %v", err)
	}
	req.Header.Set("ACCESS-KEY", c.apiKey)
	req.Header.Set("ACCESS-SIGN", signature)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-NONCE", nonce)
	req.Header.Set("ACCESS-PASSPHRASE", c.passphrase)

	return c.doer.Do(ctx, req, func(status int, body []byte, transportErr error) error {
		return mapBlofinErr(status, body, transportErr)
	})
}

func mapBlofinErr(status int, body []byte, transportErr error) error {
	if transportErr != nil {
		return &Error{Kind: KindNetwork, Exchange: domain.ExchangeBlofin, Message: transportErr.Error()}
	}

	var apiErr struct {
		Code string `json:"code"`
		Msg  string `json:"msg"`
	}
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case apiErr.Code == "152404":
		return &Error{
			Kind:        KindPermission,
			Exchange:    domain.ExchangeBlofin,
			Message:     "API key type does not have access to trade endpoints",
			Remediation: "create a regular (non-third-party) API key with READ permission enabled",
		}
	case apiErr.Code == "152409":
		return &Error{Kind: KindPermission, Exchange: domain.ExchangeBlofin, Message: apiErr.Msg, Remediation: "check API key trade/read scopes"}
	case status == 401 || status == 403:
		return &Error{Kind: KindAuth, Exchange: domain.ExchangeBlofin, Message: "unauthorized"}
	case status == 429:
		return &Error{Kind: KindRateLimit, Exchange: domain.ExchangeBlofin, Message: "rate limited"}
	case status >= 500:
		return &Error{Kind: KindNetwork, Exchange: domain.ExchangeBlofin, Message: fmt.Sprintf("server error %d", status)}
	case status != 0 && status != 200:
		return &Error{Kind: KindInternal, Exchange: domain.ExchangeBlofin, Message: fmt.Sprintf("unexpected status %d: %s", status, apiErr.Msg)}
	case apiErr.Code != "" && apiErr.Code != "0":
		return &Error{Kind: KindInternal, Exchange: domain.ExchangeBlofin, Message: apiErr.Msg}
	}
	return nil
}

func (c *BlofinClient) ValidateCredentials(ctx context.Context) error {
	_, err := c.signedGet(ctx, "/api/v1/trade/fills-history?limit=1")
	return err
}

type blofinInstrument struct {
	InstID       string `json:"instId"`
	ContractValue string `json:"contractValue"`
}

type blofinInstrumentsResponse struct {
	Code string             `json:"code"`
	Data []blofinInstrument `json:"data"`
}

// ContractValueMap builds a symbol->contractValue map: Blofin fill sizes are
// denominated in contracts, not coins, and must be converted before
// aggregation.
func (c *BlofinClient) ContractValueMap(ctx context.Context) (map[string]decimal.Decimal, error) {
	body, err := c.signedGet(ctx, "/api/v1/market/instruments?instType=PERPETUAL")
	if err != nil {
		return nil, err
	}
	var resp blofinInstrumentsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, internalErr(domain.ExchangeBlofin, "decode instruments: %v", err)
	}
	out := make(map[string]decimal.Decimal, len(resp.Data))
	for _, inst := range resp.Data {
		cv, err := decimal.NewFromString(inst.ContractValue)
		if err == nil {
			out[inst.InstID] = cv
		}
	}
	return out, nil
}

type blofinLeverageInfo struct {
	InstID   string `json:"instId"`
	Leverage string `json:"leverage"`
}

type blofinLeverageResponse struct {
	Code string               `json:"code"`
	Data []blofinLeverageInfo `json:"data"`
}

type blofinPosition struct {
	InstID   string `json:"instId"`
	Leverage string `json:"leverage"`
}

type blofinPositionsResponse struct {
	Code string           `json:"code"`
	Data []blofinPosition `json:"data"`
}

// LeverageMap tries the batch-leverage-info endpoint first, falling back to
// reading leverage off open positions if that call fails or is empty.
func (c *BlofinClient) LeverageMap(ctx context.Context) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)

	if body, err := c.signedGet(ctx, "/api/v1/account/batch-leverage-info?mgnMode=cross"); err == nil {
		var resp blofinLeverageResponse
		if json.Unmarshal(body, &resp) == nil {
			for _, l := range resp.Data {
				if lev, err := decimal.NewFromString(l.Leverage); err == nil {
					out[l.InstID] = lev
				}
			}
		}
	}

	if len(out) > 0 {
		return out, nil
	}

	body, err := c.signedGet(ctx, "/api/v1/account/positions")
	if err != nil {
		return out, nil
	}
	var resp blofinPositionsResponse
	if json.Unmarshal(body, &resp) == nil {
		for _, p := range resp.Data {
			if lev, err := decimal.NewFromString(p.Leverage); err == nil {
				out[p.InstID] = lev
			}
		}
	}
	return out, nil
}

type blofinFill struct {
	TradeID   string `json:"tradeId"`
	InstID    string `json:"instId"`
	Side      string `json:"side"`
	FillPrice string `json:"fillPrice"`
	FillSize  string `json:"fillSize"`
	FillPnl   string `json:"fillPnl"`
	Fee       string `json:"fee"`
	Lever     string `json:"lever"`
	Ts        string `json:"ts"`
}

type blofinFillsPaging struct {
	After string `json:"after"`
}

type blofinFillsResponse struct {
	Code   string            `json:"code"`
	Msg    string            `json:"msg"`
	Data   []blofinFill      `json:"data"`
	Paging blofinFillsPaging `json:"paging"`
}

// FetchTradeHistory paginates /api/v1/trade/fills-history with cursor
// "after" = the last page's tradeId, terminating on a short page or the
// safety cap.
func (c *BlofinClient) FetchTradeHistory(ctx context.Context, since *time.Time) ([]domain.RawFill, error) {
	var fills []domain.RawFill
	after := ""

	for page := 0; page < blofinSafetyCap; page++ {
		path := fmt.Sprintf("/api/v1/trade/fills-history?limit=%d", blofinPageLimit)
		if after != "" {
			path += "&after=" + after
		}

		body, err := c.signedGet(ctx, path)
		if err != nil {
			return nil, err
		}
		var resp blofinFillsResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, internalErr(domain.ExchangeBlofin, "decode fills-history: %v", err)
		}
		if resp.Code != "0" || len(resp.Data) == 0 {
			break
		}

		for _, f := range resp.Data {
			rf := blofinFillToRawFill(f)
			if since != nil && rf.Timestamp.Before(*since) {
				continue
			}
			fills = append(fills, rf)
		}

		if len(resp.Data) < blofinPageLimit {
			break
		}
		after = resp.Data[len(resp.Data)-1].TradeID
	}

	return fills, nil
}

func blofinFillToRawFill(f blofinFill) domain.RawFill {
	price, _ := decimal.NewFromString(f.FillPrice)
	size, _ := decimal.NewFromString(f.FillSize)
	pnl, _ := decimal.NewFromString(f.FillPnl)
	fee, _ := decimal.NewFromString(f.Fee)
	tsMs, _ := strconv.ParseInt(f.Ts, 10, 64)

	return domain.RawFill{
		Exchange:    domain.ExchangeBlofin,
		Symbol:      f.InstID,
		Side:        f.Side,
		Price:       price,
		Quantity:    size,
		Fee:         fee.Abs(),
		RealizedPnL: pnl,
		Timestamp:   time.UnixMilli(tsMs),
		TradeID:     f.TradeID,
		Raw: map[string]interface{}{
			"lever": f.Lever,
		},
	}
}
