package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestGateSpacesAcquisitions(t *testing.T) {
	gate := NewGate(5) // 200ms interval
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 10; i++ {
		if err := gate.Acquire(ctx); err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
	}
	elapsed := time.Since(start)

	// 10 acquisitions at 5 QPS span at least 9 intervals of 200ms.
	if elapsed < 1800*time.Millisecond {
		t.Fatalf("expected at least 1800ms for 10 acquisitions at 5 QPS, took %v", elapsed)
	}
}

func TestGateConcurrentCallersShareOneCursor(t *testing.T) {
	gate := NewGate(10) // 100ms interval
	ctx := context.Background()

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := gate.Acquire(ctx); err != nil {
				t.Errorf("acquire failed: %v", err)
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	if elapsed < 500*time.Millisecond {
		t.Fatalf("expected 6 concurrent acquisitions to span at least 500ms, took %v", elapsed)
	}
}

func TestGateAcquireHonorsContext(t *testing.T) {
	gate := NewGate(1) // 1s interval

	if err := gate.Acquire(context.Background()); err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := gate.Acquire(ctx); err == nil {
		t.Fatalf("expected context deadline error on second acquire")
	}
}
