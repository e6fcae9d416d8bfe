package exchange

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"testing"
)

func TestBinanceSignMatchesHMACSHA256(t *testing.T) {
	b := &BinanceClient{secret: "mysecret"}
	params := url.Values{"symbol": {"BTCUSDT"}, "timestamp": {"123"}}

	mac := hmac.New(sha256.New, []byte("mysecret"))
	mac.Write([]byte(params.Encode()))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := b.sign(params); got != want {
		t.Errorf("sign() = %s, want %s", got, want)
	}
}

func TestBinanceSignIsStableForSameParams(t *testing.T) {
	b := &BinanceClient{secret: "s"}
	params := url.Values{"a": {"1"}}
	if b.sign(params) != b.sign(params) {
		t.Error("sign() is not deterministic for identical input")
	}
}

func TestMapBinanceErrClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   []byte
		want   Kind
	}{
		{"invalid key", 400, []byte(`{"code":-2015,"msg":"Invalid API-key"}`), KindAuth},
		{"clock skew", 400, []byte(`{"code":-1021,"msg":"Timestamp out of recvWindow"}`), KindClockSkew},
		{"unauthorized status", 401, []byte(`{}`), KindAuth},
		{"rate limited", 429, []byte(`{}`), KindRateLimit},
		{"banned", 418, []byte(`{}`), KindRateLimit},
		{"server error", 503, []byte(`{}`), KindNetwork},
		{"unexpected status", 400, []byte(`{"code":0,"msg":"weird"}`), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapBinanceErr(tt.status, tt.body, nil)
			xerr, ok := err.(*Error)
			if !ok {
				t.Fatalf("mapBinanceErr() returned %T, want *Error", err)
			}
			if xerr.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", xerr.Kind, tt.want)
			}
		})
	}
}

func TestMapBinanceErrTransportError(t *testing.T) {
	err := mapBinanceErr(0, nil, errBoomExchange)
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != KindNetwork {
		t.Errorf("mapBinanceErr(transportErr) = %v, want KindNetwork", err)
	}
}

func TestMapBinanceErrNilOnSuccess(t *testing.T) {
	if err := mapBinanceErr(200, []byte(`{}`), nil); err != nil {
		t.Errorf("mapBinanceErr(200) = %v, want nil", err)
	}
}
