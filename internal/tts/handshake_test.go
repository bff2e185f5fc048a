package tts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestHandshakeSettlesOnce(t *testing.T) {
	h := NewHandshake()
	handle := &chanHandle{}
	if !h.Resolve(handle) {
		t.Fatalf("first resolve must settle")
	}
	if h.Resolve(&chanHandle{}) {
		t.Fatalf("second resolve must be ignored")
	}
	if h.Fail(errors.New("late")) {
		t.Fatalf("fail after resolve must be ignored")
	}
	got, err := h.Await(context.Background())
	if err != nil || got != handle {
		t.Fatalf("unexpected outcome %v %v", got, err)
	}
}

func TestHandshakeFanOut(t *testing.T) {
	h := NewHandshake()
	boom := errors.New("boom")

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.Await(context.Background())
			errs <- err
		}()
	}
	h.Fail(boom)
	wg.Wait()
	close(errs)
	for err := range errs {
		if !errors.Is(err, boom) {
			t.Fatalf("expected boom, got %v", err)
		}
	}
}

func TestHandshakeFailNil(t *testing.T) {
	h := NewHandshake()
	h.Fail(nil)
	if _, err := h.Await(context.Background()); err == nil {
		t.Fatalf("expected an error for a nil failure")
	}
}

func TestHandshakeAwaitCancelled(t *testing.T) {
	h := NewHandshake()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := h.Await(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	select {
	case <-h.Done():
		t.Fatalf("cancelled await must not settle the handshake")
	default:
	}
}

func TestHandshakeSettledWinsOverCancelledContext(t *testing.T) {
	h := NewHandshake()
	h.Resolve(&chanHandle{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := h.Await(ctx); err != nil {
		t.Fatalf("settled handshake must be observed, got %v", err)
	}
}
