package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-tts/internal/protocol"
)

var errMockClosed = errors.New("mock connection closed")

type mockContext struct {
	feed  chan string
	ended chan struct{}
	quit  chan struct{}
}

// MockConnection synthesizes silence locally: one chunk per transcript,
// sized by word count, and a done event once no text arrived for the idle
// period.
type MockConnection struct {
	idle time.Duration

	mu       sync.Mutex
	contexts map[string]*mockContext
	done     chan struct{}
	closed   bool
}

// NewMockDialer returns a dialer of mock connections.
func NewMockDialer(idle time.Duration) Dialer {
	return func(ctx context.Context) (Connection, error) {
		return NewMockConnection(idle), nil
	}
}

func NewMockConnection(idle time.Duration) *MockConnection {
	if idle <= 0 {
		idle = 250 * time.Millisecond
	}
	return &MockConnection{
		idle:     idle,
		contexts: make(map[string]*mockContext),
		done:     make(chan struct{}),
	}
}

func (m *MockConnection) Open(ctx context.Context, req Request) (ResponseHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, errMockClosed
	}
	if _, ok := m.contexts[req.ContextID]; ok {
		return nil, fmt.Errorf("context %s already open", req.ContextID)
	}
	mc := &mockContext{feed: make(chan string, 64), ended: make(chan struct{}), quit: make(chan struct{})}
	mc.feed <- req.Transcript
	m.contexts[req.ContextID] = mc

	events := make(chan protocol.WebSocketResponse)
	go m.run(req, mc, events)
	return &chanHandle{
		events:  events,
		gone:    m.done,
		err:     func() error { return errMockClosed },
		release: sync.OnceFunc(func() { close(mc.quit) }),
	}, nil
}

func (m *MockConnection) Continue(ctx context.Context, req Request) error {
	m.mu.Lock()
	mc, ok := m.contexts[req.ContextID]
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return errMockClosed
	}
	if !ok {
		return fmt.Errorf("context %s is not open", req.ContextID)
	}
	select {
	case mc.feed <- req.Transcript:
		return nil
	case <-mc.ended:
		return fmt.Errorf("context %s already finished", req.ContextID)
	case <-m.done:
		return errMockClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *MockConnection) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errMockClosed
	}
	return nil
}

func (m *MockConnection) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.closed {
		m.closed = true
		close(m.done)
	}
	return nil
}

func (m *MockConnection) run(req Request, mc *mockContext, events chan<- protocol.WebSocketResponse) {
	defer close(events)
	defer func() {
		close(mc.ended)
		m.mu.Lock()
		delete(m.contexts, req.ContextID)
		m.mu.Unlock()
	}()

	timer := time.NewTimer(m.idle)
	defer timer.Stop()
	for {
		select {
		case text := <-mc.feed:
			msg := protocol.WebSocketResponse{
				Type:       protocol.ResponseTypeChunk,
				ContextID:  req.ContextID,
				Data:       base64.StdEncoding.EncodeToString(silence(req.Options.Format, len(strings.Fields(text)))),
				StatusCode: 206,
			}
			select {
			case events <- msg:
			case <-mc.quit:
				return
			case <-m.done:
				return
			}
			timer.Reset(m.idle)
		case <-timer.C:
			select {
			case events <- protocol.WebSocketResponse{Type: protocol.ResponseTypeDone, ContextID: req.ContextID, Done: true, StatusCode: 200}:
			case <-mc.quit:
			case <-m.done:
			}
			return
		case <-mc.quit:
			return
		case <-m.done:
			return
		}
	}
}

// silence returns 100ms of zeroed samples per word in the requested format.
func silence(format protocol.OutputFormat, words int) []byte {
	rate := format.SampleRate
	if rate <= 0 {
		rate = 44100
	}
	return make([]byte, words*rate/10*bytesPerSample(format.Encoding))
}

func bytesPerSample(encoding string) int {
	switch encoding {
	case "pcm_f32le":
		return 4
	case "pcm_s16le":
		return 2
	default:
		return 1
	}
}
