package resilience

import (
	"context"
	"errors"
	"testing"
)

var errBoom = errors.New("boom")

func TestRetrySucceedsWithoutRetryingOnFirstSuccess(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func(error) bool { return true }, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryStopsAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func(error) bool { return true }, func() error {
		calls++
		return errBoom
	})
	if err == nil {
		t.Fatal("Retry() error = nil, want errBoom after exhausting attempts")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (maxAttempts)", calls)
	}
}

func TestRetryStopsImmediatelyOnNonRetryableError(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, func(error) bool { return false }, func() error {
		calls++
		return errBoom
	})
	if err == nil {
		t.Fatal("Retry() error = nil, want errBoom")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (non-retryable error aborts immediately)", calls)
	}
}

func TestRetryDefaultsMaxAttempts(t *testing.T) {
	calls := 0
	_ = Retry(context.Background(), 0, func(error) bool { return true }, func() error {
		calls++
		return errBoom
	})
	if calls != 3 {
		t.Errorf("calls = %d, want 3 (default maxAttempts when <= 0)", calls)
	}
}
