package relay

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestEnqueueDequeue_Order(t *testing.T) {
	r := New[int](4)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		if err := r.Enqueue(ctx, i); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	for i := 0; i < 4; i++ {
		v, ok, err := r.Dequeue(ctx)
		if err != nil || !ok {
			t.Fatalf("dequeue %d: ok=%v err=%v", i, ok, err)
		}
		if v != i {
			t.Fatalf("expected %d, got %d", i, v)
		}
	}
}

func TestEnqueue_BlocksAtCapacity(t *testing.T) {
	r := New[int](1)
	ctx := context.Background()
	if err := r.Enqueue(ctx, 1); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := r.Enqueue(timeoutCtx, 2)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded at capacity, got %v", err)
	}
}

func TestClose_DrainsThenSignalsSentinel(t *testing.T) {
	r := New[string](4)
	ctx := context.Background()
	if err := r.Enqueue(ctx, "buffered"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	r.Close()

	if err := r.Enqueue(ctx, "late"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}

	v, ok, err := r.Dequeue(ctx)
	if err != nil || !ok || v != "buffered" {
		t.Fatalf("expected buffered value to drain, got v=%q ok=%v err=%v", v, ok, err)
	}
	_, ok, err = r.Dequeue(ctx)
	if err != nil || ok {
		t.Fatalf("expected sentinel after drain, got ok=%v err=%v", ok, err)
	}
}

func TestClose_Idempotent(t *testing.T) {
	r := New[int](1)
	r.Close()
	r.Close()
	_, ok, err := r.Dequeue(context.Background())
	if err != nil || ok {
		t.Fatalf("expected sentinel, got ok=%v err=%v", ok, err)
	}
}

func TestDequeue_UnblocksOnClose(t *testing.T) {
	r := New[int](1)
	result := make(chan bool, 1)
	go func() {
		_, ok, _ := r.Dequeue(context.Background())
		result <- ok
	}()
	time.Sleep(10 * time.Millisecond)
	r.Close()
	select {
	case ok := <-result:
		if ok {
			t.Fatal("expected sentinel from blocked dequeue")
		}
	case <-time.After(time.Second):
		t.Fatal("dequeue did not unblock on close")
	}
}

func TestLenAndCap(t *testing.T) {
	r := New[int](AudioCapacity)
	if r.Cap() != AudioCapacity {
		t.Fatalf("expected cap %d, got %d", AudioCapacity, r.Cap())
	}
	_ = r.Enqueue(context.Background(), 1)
	if r.Len() != 1 {
		t.Fatalf("expected len 1, got %d", r.Len())
	}
}
