package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tradesync/syncengine/internal/domain"
	"github.com/tradesync/syncengine/internal/resilience"
)

// Doer centralizes the ambient concerns every exchange client needs around
// a raw HTTP call: request pacing, a per-connection circuit breaker, and
// bounded retry on RATE_LIMITED/NETWORK_ERROR. Exchange-specific signing
// happens before Do is called; exchange-specific status-code mapping is
// supplied via mapErr.
type Doer struct {
	HTTPClient   *http.Client
	Pacer        *resilience.Pacer
	Breakers     *resilience.Breakers
	Exchange     domain.Exchange
	BreakerName  string
	RequestDelay time.Duration
	MaxRetries   int
}

// MapErrFunc turns a non-2xx response (or a transport error) into a typed
// *Error. body is nil when err is a transport-level failure.
type MapErrFunc func(statusCode int, body []byte, transportErr error) error

func (d *Doer) Do(ctx context.Context, req *http.Request, mapErr MapErrFunc) ([]byte, error) {
	var result []byte

	op := func() error {
		if err := d.Pacer.Wait(ctx, string(d.Exchange), d.RequestDelay); err != nil {
			return err
		}

		raw, err := d.Breakers.Execute(d.BreakerName, func() (interface{}, error) {
			resp, err := d.HTTPClient.Do(req)
			if err != nil {
				return nil, mapErr(0, nil, err)
			}
			defer resp.Body.Close()

			body, readErr := io.ReadAll(resp.Body)
			if readErr != nil {
				return nil, mapErr(0, nil, readErr)
			}

			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return nil, mapErr(resp.StatusCode, body, nil)
			}

			return body, nil
		})
		if err != nil {
			return err
		}
		result = raw.([]byte)
		return nil
	}

	err := resilience.Retry(ctx, d.MaxRetries+1, Retryable, op)
	if err != nil {
		return nil, err
	}
	return result, nil
}

func internalErr(ex domain.Exchange, format string, args ...interface{}) *Error {
	return &Error{Kind: KindInternal, Exchange: ex, Message: fmt.Sprintf(format, args...)}
}
