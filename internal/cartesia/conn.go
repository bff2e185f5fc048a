// Package cartesia implements the synthesis connection over the Cartesia
// websocket API. One socket carries many contexts; responses are routed to
// their context by id.
package cartesia

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

// ErrMissingAPIKey is returned when no API key is configured.
var ErrMissingAPIKey = fmt.Errorf("%w: cartesia api key is required", tts.ErrConfiguration)

var errClosed = errors.New("cartesia connection closed")

// readLimit bounds a single response frame. Chunks carry base64 audio.
const readLimit = 16 << 20

// Conn is a tts.Connection backed by one websocket.
type Conn struct {
	ws     *websocket.Conn
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	writeMu sync.Mutex

	mu       sync.Mutex
	contexts map[string]*contextStream

	failOnce sync.Once
	gone     chan struct{}
	err      error
}

type contextStream struct {
	events   chan protocol.WebSocketResponse
	quit     chan struct{}
	quitOnce sync.Once
}

func (s *contextStream) abandon() { s.quitOnce.Do(func() { close(s.quit) }) }

// Endpoint builds the websocket URL carrying the credentials.
func Endpoint(cfg config.SynthesisConfig) (string, error) {
	if cfg.APIKey == "" {
		return "", ErrMissingAPIKey
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return "", fmt.Errorf("%w: parse cartesia url: %v", tts.ErrConfiguration, err)
	}
	q := u.Query()
	q.Set("api_key", cfg.APIKey)
	q.Set("cartesia_version", cfg.APIVersion)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// NewDialer validates cfg once and returns a dialer for tts.NewGenerator.
func NewDialer(cfg config.SynthesisConfig, log *slog.Logger) (tts.Dialer, error) {
	endpoint, err := Endpoint(cfg)
	if err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond
	return func(ctx context.Context) (tts.Connection, error) {
		return Dial(ctx, endpoint, timeout, log)
	}, nil
}

// Dial opens the websocket and starts routing responses.
func Dial(ctx context.Context, endpoint string, timeout time.Duration, log *slog.Logger) (*Conn, error) {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	dialCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	ws, _, err := websocket.Dial(dialCtx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	ws.SetReadLimit(readLimit)

	rctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:       ws,
		log:      log.With(slog.String("component", "cartesia")),
		ctx:      rctx,
		cancel:   cancel,
		contexts: make(map[string]*contextStream),
		gone:     make(chan struct{}),
	}
	go c.readLoop()
	c.log.Info("connected to cartesia")
	return c, nil
}

func (c *Conn) Open(ctx context.Context, req tts.Request) (tts.ResponseHandle, error) {
	if err := c.failure(); err != nil {
		return nil, err
	}
	stream := &contextStream{
		events: make(chan protocol.WebSocketResponse, 16),
		quit:   make(chan struct{}),
	}
	c.mu.Lock()
	if _, ok := c.contexts[req.ContextID]; ok {
		c.mu.Unlock()
		return nil, fmt.Errorf("context %s already open", req.ContextID)
	}
	c.contexts[req.ContextID] = stream
	c.mu.Unlock()

	if err := c.write(ctx, req.Message()); err != nil {
		c.release(req.ContextID, stream)
		return nil, err
	}
	return &handle{conn: c, id: req.ContextID, stream: stream}, nil
}

func (c *Conn) Continue(ctx context.Context, req tts.Request) error {
	if err := c.failure(); err != nil {
		return err
	}
	c.mu.Lock()
	_, ok := c.contexts[req.ContextID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("context %s is not open", req.ContextID)
	}
	return c.write(ctx, req.Message())
}

// Close ends the socket. Handles still iterating observe an error.
func (c *Conn) Close() error {
	closing := false
	c.failOnce.Do(func() {
		closing = true
		c.err = errClosed
		close(c.gone)
	})
	defer c.cancel()
	if !closing {
		// already failed or closed
		_ = c.ws.CloseNow()
		return nil
	}
	c.log.Info("closing cartesia connection")
	if err := c.ws.Close(websocket.StatusNormalClosure, ""); err != nil {
		c.log.Debug("websocket close", slog.String("error", err.Error()))
	}
	return nil
}

func (c *Conn) write(ctx context.Context, msg protocol.GenerationRequest) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := wsjson.Write(ctx, c.ws, msg); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

// Err reports the failure that ended the connection, or nil while it is open.
func (c *Conn) Err() error { return c.failure() }

func (c *Conn) failure() error {
	select {
	case <-c.gone:
		return c.err
	default:
		return nil
	}
}

func (c *Conn) fail(err error) {
	c.failOnce.Do(func() {
		c.log.Warn("cartesia connection lost", slog.String("error", err.Error()))
		c.err = err
		close(c.gone)
	})
}

func (c *Conn) release(id string, stream *contextStream) {
	c.mu.Lock()
	if c.contexts[id] == stream {
		delete(c.contexts, id)
	}
	c.mu.Unlock()
}

func (c *Conn) readLoop() {
	defer c.cancel()
	for {
		var resp protocol.WebSocketResponse
		if err := wsjson.Read(c.ctx, c.ws, &resp); err != nil {
			c.fail(fmt.Errorf("read response: %w", err))
			return
		}

		c.mu.Lock()
		stream, ok := c.contexts[resp.ContextID]
		c.mu.Unlock()
		if !ok {
			c.log.Debug("dropping response for unknown context", slog.String("context_id", resp.ContextID), slog.String("type", resp.Type))
			continue
		}

		select {
		case stream.events <- resp:
		case <-stream.quit:
		case <-c.ctx.Done():
			return
		}
		if resp.Done || resp.Type == protocol.ResponseTypeError {
			c.release(resp.ContextID, stream)
			close(stream.events)
		}
	}
}

type handle struct {
	conn   *Conn
	id     string
	stream *contextStream
}

func (h *handle) Events(ctx context.Context) iter.Seq2[protocol.WebSocketResponse, error] {
	return func(yield func(protocol.WebSocketResponse, error) bool) {
		defer func() {
			h.stream.abandon()
			h.conn.release(h.id, h.stream)
		}()
		for {
			select {
			case msg, ok := <-h.stream.events:
				if !ok {
					return
				}
				if !yield(msg, nil) {
					return
				}
			case <-h.conn.gone:
				if h.drain(yield) {
					return
				}
				yield(protocol.WebSocketResponse{}, h.conn.err)
				return
			case <-ctx.Done():
				yield(protocol.WebSocketResponse{}, ctx.Err())
				return
			}
		}
	}
}

// drain yields responses routed before the connection went away. It reports
// whether iteration is over: the context finished or the consumer stopped.
func (h *handle) drain(yield func(protocol.WebSocketResponse, error) bool) bool {
	for {
		select {
		case msg, ok := <-h.stream.events:
			if !ok || !yield(msg, nil) {
				return true
			}
		default:
			return false
		}
	}
}
