package concurrent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	wp := NewWorkerPool(2)
	var running, peak atomic.Int32
	items := make([]int, 8)
	_, err := ParallelMap(context.Background(), items, func(int) (int, error) {
		return 0, wp.Do(context.Background(), func() error {
			n := running.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			running.Add(-1)
			return nil
		})
	}, 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if peak.Load() > 2 {
		t.Fatalf("expected at most 2 concurrent workers, saw %d", peak.Load())
	}
}

func TestSubmitReturnsResult(t *testing.T) {
	wp := NewWorkerPool(1)
	got, err := Submit(context.Background(), wp, func(context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil || got != "ok" {
		t.Fatalf("unexpected result %q err=%v", got, err)
	}
}

func TestSubmitHonoursDeadline(t *testing.T) {
	wp := NewWorkerPool(1)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := Submit(ctx, wp, func(context.Context) (int, error) {
		time.Sleep(200 * time.Millisecond)
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if time.Since(start) > 150*time.Millisecond {
		t.Fatal("submit should not wait for the blocked worker")
	}
}

func TestSubmitRecoversPanic(t *testing.T) {
	wp := NewWorkerPool(1)
	_, err := Submit(context.Background(), wp, func(context.Context) (int, error) {
		panic("boom")
	})
	if err == nil {
		t.Fatal("expected panic to surface as error")
	}
}

func TestParallelMapKeepsOrder(t *testing.T) {
	out, err := ParallelMap(context.Background(), []int{1, 2, 3}, func(v int) (int, error) {
		return v * 10, nil
	}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out[0] != 10 || out[1] != 20 || out[2] != 30 {
		t.Fatalf("unexpected order: %v", out)
	}
}
