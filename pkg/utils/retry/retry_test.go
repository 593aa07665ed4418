package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/utils/retry"
)

func noWait(context.Context) error { return nil }

func TestBlocking(t *testing.T) {
	t.Run("retries until success", func(t *testing.T) {
		attempts := 0
		got, err := retry.Blocking(context.Background(), noWait, func() (string, error) {
			attempts += 1
			if attempts < 3 {
				return "", retry.ErrRetry
			}
			return "done", nil
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != "done" || attempts != 3 {
			t.Errorf("unexpected result: (%s, %d)", got, attempts)
		}
	})

	t.Run("non-retry errors stop the loop", func(t *testing.T) {
		boom := errors.New("fatal")
		attempts := 0
		_, err := retry.Blocking(context.Background(), noWait, func() (int, error) {
			attempts += 1
			return 0, boom
		})
		if !errors.Is(err, boom) {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 1 {
			t.Errorf("unexpected attempt count: %d", attempts)
		}
	})

	t.Run("canceled context stops retrying", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		attempts := 0
		_, err := retry.Blocking(ctx, noWait, func() (int, error) {
			attempts += 1
			cancel()
			return 0, retry.ErrRetry
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: %v", err)
		}
		if attempts != 1 {
			t.Errorf("unexpected attempt count: %d", attempts)
		}
	})

	t.Run("backoff errors surface before the first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		called := false
		_, err := retry.Blocking(ctx, retry.StaticBackoff(time.Hour), func() (int, error) {
			called = true
			return 0, nil
		})
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("unexpected error: %v", err)
		}
		if called {
			t.Error("f should not run when backoff fails")
		}
	})
}

func TestGo(t *testing.T) {
	t.Run("resolves with the final value", func(t *testing.T) {
		attempts := 0
		promise := retry.Go(context.Background(), noWait, func() (int, error) {
			attempts += 1
			if attempts < 2 {
				return 0, retry.ErrRetry
			}
			return 7, nil
		})

		select {
		case result := <-promise:
			if result.Err != nil {
				t.Fatalf("unexpected error: %v", result.Err)
			}
			if result.Value != 7 {
				t.Errorf("unexpected result: %d", result.Value)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("promise did not resolve")
		}
	})

	t.Run("recovers panics into the result", func(t *testing.T) {
		promise := retry.Go(context.Background(), noWait, func() (int, error) {
			panic(errors.New("boom"))
		})

		select {
		case result := <-promise:
			if result.Err == nil || result.Err.Error() != "boom" {
				t.Errorf("unexpected error: %v", result.Err)
			}
		case <-time.After(3 * time.Second):
			t.Fatal("promise did not resolve")
		}
	})
}

func TestFailedAndOk(t *testing.T) {
	boom := errors.New("boom")
	if result := <-retry.Failed[int](boom); !errors.Is(result.Err, boom) {
		t.Errorf("unexpected result: %+v", result)
	}
	if result := <-retry.Ok(42); result.Err != nil || result.Value != 42 {
		t.Errorf("unexpected result: %+v", result)
	}
}
