package tts

import (
	"context"
	"iter"

	"github.com/loqalabs/loqa-tts/internal/protocol"
)

// chanHandle adapts a per-context event channel to ResponseHandle. The
// channel is closed by its producer when the context ends normally; gone is
// closed when the owning connection fails, after which err reports why.
// release runs once when iteration stops so the producer can give up on a
// consumer that went away.
type chanHandle struct {
	events  <-chan protocol.WebSocketResponse
	gone    <-chan struct{}
	err     func() error
	release func()
}

func (h *chanHandle) Events(ctx context.Context) iter.Seq2[protocol.WebSocketResponse, error] {
	return func(yield func(protocol.WebSocketResponse, error) bool) {
		if h.release != nil {
			defer h.release()
		}
		for {
			select {
			case msg, ok := <-h.events:
				if !ok {
					return
				}
				if !yield(msg, nil) {
					return
				}
			case <-h.gone:
				yield(protocol.WebSocketResponse{}, h.err())
				return
			case <-ctx.Done():
				yield(protocol.WebSocketResponse{}, ctx.Err())
				return
			}
		}
	}
}
