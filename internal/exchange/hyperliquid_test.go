package exchange

import "testing"

func TestWalletPatternAcceptsValidAddress(t *testing.T) {
	if !walletPattern.MatchString("0x1234567890abcdef1234567890ABCDEF12345678") {
		t.Error("walletPattern rejected a well-formed 40-hex-digit address")
	}
}

func TestWalletPatternRejectsMalformed(t *testing.T) {
	tests := []string{
		"",
		"not-a-wallet",
		"0x123",                                       // too short
		"1234567890abcdef1234567890abcdef12345678",    // missing 0x prefix
		"0x1234567890abcdef1234567890abcdef123456789", // too long
	}
	for _, addr := range tests {
		if walletPattern.MatchString(addr) {
			t.Errorf("walletPattern accepted malformed address %q", addr)
		}
	}
}

func TestMapHyperliquidErrClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   []byte
		want   Kind
	}{
		{"rate limited", 429, []byte(`{}`), KindRateLimit},
		{"server error", 500, []byte(`{}`), KindNetwork},
		{"unexpected status", 400, []byte(`bad request`), KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := mapHyperliquidErr(tt.status, tt.body, nil)
			xerr, ok := err.(*Error)
			if !ok {
				t.Fatalf("mapHyperliquidErr() returned %T, want *Error", err)
			}
			if xerr.Kind != tt.want {
				t.Errorf("Kind = %s, want %s", xerr.Kind, tt.want)
			}
		})
	}
}

func TestMapHyperliquidErrNilOnSuccess(t *testing.T) {
	if err := mapHyperliquidErr(200, []byte(`[]`), nil); err != nil {
		t.Errorf("mapHyperliquidErr(200) = %v, want nil", err)
	}
}

func TestMapHyperliquidErrTransportError(t *testing.T) {
	err := mapHyperliquidErr(0, nil, errBoomExchange)
	xerr, ok := err.(*Error)
	if !ok || xerr.Kind != KindNetwork {
		t.Errorf("mapHyperliquidErr(transportErr) = %v, want KindNetwork", err)
	}
}

func TestSideOrDirPrefersDir(t *testing.T) {
	f := hyperliquidFill{Dir: "Open Long", Side: "B"}
	if got := sideOrDir(f); got != "Open Long" {
		t.Errorf("sideOrDir() = %q, want %q", got, "Open Long")
	}
}

func TestSideOrDirFallsBackToSide(t *testing.T) {
	f := hyperliquidFill{Dir: "", Side: "A"}
	if got := sideOrDir(f); got != "A" {
		t.Errorf("sideOrDir() = %q, want %q", got, "A")
	}
}
