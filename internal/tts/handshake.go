package tts

import (
	"context"
	"errors"
	"sync"
)

// Handshake is a one-shot signal settled by the open message of a session.
// Any number of goroutines may await it; all observe the same outcome.
type Handshake struct {
	once   sync.Once
	done   chan struct{}
	handle ResponseHandle
	err    error
}

func NewHandshake() *Handshake {
	return &Handshake{done: make(chan struct{})}
}

// Resolve settles the handshake with a response handle. It returns false if
// the handshake was already settled.
func (h *Handshake) Resolve(handle ResponseHandle) bool {
	return h.settle(handle, nil)
}

// Fail settles the handshake with an error. It returns false if the handshake
// was already settled.
func (h *Handshake) Fail(err error) bool {
	if err == nil {
		err = errors.New("handshake failed")
	}
	return h.settle(nil, err)
}

func (h *Handshake) settle(handle ResponseHandle, err error) bool {
	settled := false
	h.once.Do(func() {
		h.handle = handle
		h.err = err
		settled = true
		close(h.done)
	})
	return settled
}

// Done is closed once the handshake is settled.
func (h *Handshake) Done() <-chan struct{} { return h.done }

// Await blocks until the handshake settles or ctx ends.
func (h *Handshake) Await(ctx context.Context) (ResponseHandle, error) {
	select {
	case <-h.done:
		return h.handle, h.err
	default:
	}
	select {
	case <-h.done:
		return h.handle, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
