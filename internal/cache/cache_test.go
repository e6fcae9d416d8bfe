package cache

import (
	"context"
	"testing"

	redismock "github.com/go-redis/redismock/v8"
	"github.com/shopspring/decimal"
)

func TestExistingTradeIDsCacheHit(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client)

	mock.ExpectSMembers("dedup:user-1:binance").SetVal([]string{"a", "b"})

	ids, ok, err := c.ExistingTradeIDs(context.Background(), "user-1", "binance")
	if err != nil {
		t.Fatalf("ExistingTradeIDs() error = %v", err)
	}
	if !ok {
		t.Fatal("ExistingTradeIDs() ok = false, want true")
	}
	if _, present := ids["a"]; !present {
		t.Error("ids missing \"a\"")
	}
	if _, present := ids["b"]; !present {
		t.Error("ids missing \"b\"")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestExistingTradeIDsCacheMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client)

	mock.ExpectSMembers("dedup:user-1:binance").SetVal(nil)

	_, ok, err := c.ExistingTradeIDs(context.Background(), "user-1", "binance")
	if err != nil {
		t.Fatalf("ExistingTradeIDs() error = %v", err)
	}
	if ok {
		t.Error("ExistingTradeIDs() ok = true, want false on empty member set")
	}
}

func TestPutExistingTradeIDsSkipsEmptySet(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client)

	if err := c.PutExistingTradeIDs(context.Background(), "user-1", "binance", nil); err != nil {
		t.Fatalf("PutExistingTradeIDs() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestLeverageOverridesRoundTrip(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client)

	payload := `{"BTC-USDT":"10"}`
	mock.ExpectGet("leverage:user-1:binance").SetVal(payload)

	overrides, ok, err := c.LeverageOverrides(context.Background(), "user-1", "binance")
	if err != nil {
		t.Fatalf("LeverageOverrides() error = %v", err)
	}
	if !ok {
		t.Fatal("LeverageOverrides() ok = false, want true")
	}
	want := decimal.NewFromInt(10)
	if !overrides["BTC-USDT"].Equal(want) {
		t.Errorf("overrides[BTC-USDT] = %s, want %s", overrides["BTC-USDT"], want)
	}
}

func TestLeverageOverridesCacheMiss(t *testing.T) {
	client, mock := redismock.NewClientMock()
	c := New(client)

	mock.ExpectGet("leverage:user-1:binance").RedisNil()

	_, ok, err := c.LeverageOverrides(context.Background(), "user-1", "binance")
	if err != nil {
		t.Fatalf("LeverageOverrides() error = %v", err)
	}
	if ok {
		t.Error("LeverageOverrides() ok = true, want false on redis.Nil")
	}
}
