package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestPollerFetchesImmediatelyAndOnInterval(t *testing.T) {
	var calls int32
	p, err := New("counter", 10*time.Millisecond, func(ctx context.Context) (int32, error) {
		return atomic.AddInt32(&calls, 1), nil
	}, nil)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer p.Stop()

	select {
	case snap := <-p.Updates():
		if snap.Value < 1 {
			t.Fatalf("unexpected first value %d", snap.Value)
		}
	case <-time.After(time.Second):
		t.Fatalf("no update received")
	}

	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&calls) < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("expected repeated polls, got %d", atomic.LoadInt32(&calls))
		}
		time.Sleep(5 * time.Millisecond)
	}

	snap, ok := p.Latest()
	if !ok || snap.Value < 3 || snap.FetchedAt.IsZero() {
		t.Fatalf("latest snapshot mismatch: %+v %v", snap, ok)
	}
}

func TestPollerKeepsLastGoodSnapshotOnError(t *testing.T) {
	var calls int32
	boom := errors.New("rpc down")
	p, err := New("flaky", 5*time.Millisecond, func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return "pool@1", nil
		}
		return "", boom
	}, nil)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for !errors.Is(p.Err(), boom) {
		if time.Now().After(deadline) {
			t.Fatalf("error never recorded")
		}
		time.Sleep(2 * time.Millisecond)
	}
	p.Stop()

	snap, ok := p.Latest()
	if !ok || snap.Value != "pool@1" {
		t.Fatalf("expected last good snapshot, got %+v %v", snap, ok)
	}
}

func TestPollerStopHaltsPolling(t *testing.T) {
	var calls int32
	p, err := New("stop", 2*time.Millisecond, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, nil
	}, nil)
	if err != nil {
		t.Fatalf("new poller: %v", err)
	}
	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	p.Stop()

	after := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&calls) != after {
		t.Fatalf("poller kept running after Stop")
	}
	if err := p.Start(context.Background()); err == nil {
		t.Fatalf("expected restart after stop to fail")
	}
	p.Stop()
}

func TestNewValidatesArguments(t *testing.T) {
	if _, err := New[int]("nil", time.Second, nil, nil); err == nil {
		t.Fatalf("expected error for nil fetch")
	}
	if _, err := New("zero", 0, func(context.Context) (int, error) { return 0, nil }, nil); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}
