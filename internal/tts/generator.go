package tts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Generator turns text sources into audio streams over one shared connection.
// Each Generate call runs its own session with a fresh context id.
type Generator struct {
	dial     Dialer
	opts     Options
	minWords int
	log      *slog.Logger
	journal  Journal
	newID    func() string
	ins      *instruments

	mu   sync.Mutex
	conn Connection
}

type Option func(*Generator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// WithJournal records session lifecycle transitions.
func WithJournal(j Journal) Option {
	return func(g *Generator) { g.journal = j }
}

// WithMinWords sets the word threshold for opening a context.
func WithMinWords(n int) Option {
	return func(g *Generator) { g.minWords = n }
}

func WithSynthesisOptions(opts Options) Option {
	return func(g *Generator) { g.opts = opts }
}

// WithIDGenerator replaces the context id source. Ids must be unique.
func WithIDGenerator(fn func() string) Option {
	return func(g *Generator) {
		if fn != nil {
			g.newID = fn
		}
	}
}

func NewGenerator(dial Dialer, opts ...Option) (*Generator, error) {
	if dial == nil {
		return nil, fmt.Errorf("%w: dialer is required", ErrConfiguration)
	}
	g := &Generator{
		dial:     dial,
		minWords: DefaultMinWords,
		log:      slog.New(slog.DiscardHandler),
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.minWords < 0 {
		return nil, fmt.Errorf("%w: min words must be >= 0", ErrConfiguration)
	}
	g.log = g.log.With(slog.String("component", "tts-generator"))
	g.ins = newInstruments(g.log)
	return g, nil
}

// Stop closes the shared connection. It is safe to call at any time and more
// than once; the next Generate dials again.
func (g *Generator) Stop() error {
	g.mu.Lock()
	conn := g.conn
	g.conn = nil
	g.mu.Unlock()
	if conn == nil {
		return nil
	}
	g.log.Info("closing synthesis connection")
	return conn.Close()
}

func (g *Generator) connection(ctx context.Context) (Connection, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.conn != nil {
		lost := g.conn.Err()
		if lost == nil {
			return g.conn, nil
		}
		g.log.Warn("dropping failed synthesis connection", slogError(lost))
		_ = g.conn.Close()
		g.conn = nil
	}
	conn, err := g.dial(ctx)
	if err != nil {
		return nil, &ConnectionError{Err: err}
	}
	g.conn = conn
	return conn, nil
}

// Generate starts a session for src and returns its audio stream right away.
// The stream ends normally after the last audio chunk, or with the error
// that ended the session.
func (g *Generator) Generate(ctx context.Context, src TextSource) *Stream {
	id := g.newID()
	pr, pw := io.Pipe()
	ctx, span := tracer.Start(ctx, "tts.session", trace.WithAttributes(attribute.String("tts.context_id", id)))

	s := &session{
		id:        id,
		log:       g.log.With(slog.String("context_id", id)),
		handshake: NewHandshake(),
		w:         pw,
		stream:    &Stream{id: id, r: pr, done: make(chan struct{})},
		span:      span,
	}
	s.stream.state.Store(StateAccumulating)
	g.ins.sessionStarted(ctx)
	g.record(ctx, s, StateAccumulating, "")

	// A pending write never observes ctx on its own.
	unwatch := context.AfterFunc(ctx, func() { pw.CloseWithError(ctx.Err()) })

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return g.sendLoop(gctx, s, src) })
	group.Go(func() error { return g.receiveLoop(gctx, s) })
	go func() {
		g.finish(ctx, s, group)
		unwatch()
	}()

	return s.stream
}

type session struct {
	id        string
	log       *slog.Logger
	handshake *Handshake
	w         *io.PipeWriter
	stream    *Stream
	span      trace.Span
}

func (g *Generator) request(s *session, text string, cont bool) Request {
	return Request{ContextID: s.id, Transcript: text, Continue: cont, Options: g.opts}
}

// sendLoop feeds the source through the accumulator. Its own failures are
// logged only; they reach the reader solely through the handshake.
func (g *Generator) sendLoop(ctx context.Context, s *session, src TextSource) error {
	defer s.log.Debug("send loop finished")

	conn, err := g.connection(ctx)
	if err != nil {
		s.log.Error("synthesis connection unavailable", slogError(err))
		s.handshake.Fail(err)
		return nil
	}

	acc := NewAccumulator(g.minWords)
	for fragment, err := range src {
		if err != nil {
			s.log.Error("text source failed", slogError(err))
			g.record(ctx, s, "", "text source failed: "+err.Error())
			s.handshake.Fail(fmt.Errorf("read text: %w", err))
			return nil
		}
		if ctx.Err() != nil {
			s.handshake.Fail(ctx.Err())
			return nil
		}
		if err := g.apply(ctx, s, conn, acc.Offer(fragment)); err != nil {
			s.log.Error("send failed", slogError(err))
			return nil
		}
	}
	if err := g.apply(ctx, s, conn, acc.FlushOnClose()); err != nil {
		s.log.Error("send failed", slogError(err))
		return nil
	}
	if !acc.HandedOff() {
		s.handshake.Fail(ErrNoText)
	}
	return nil
}

func (g *Generator) apply(ctx context.Context, s *session, conn Connection, action Action) error {
	switch action.Kind {
	case ActionOpen:
		s.log.Info("opening synthesis context", slog.Int("chars", len(action.Text)))
		start := time.Now()
		handle, err := conn.Open(ctx, g.request(s, action.Text, false))
		if err != nil {
			herr := &HandshakeError{ContextID: s.id, Err: err}
			s.handshake.Fail(herr)
			return herr
		}
		g.ins.opened(ctx, float64(time.Since(start).Microseconds())/1000)
		s.stream.advance(StateOpened)
		g.record(ctx, s, StateOpened, "")
		s.handshake.Resolve(handle)
	case ActionContinue:
		if _, err := s.handshake.Await(ctx); err != nil {
			return err
		}
		s.log.Debug("continuing synthesis context", slog.Int("chars", len(action.Text)))
		if err := conn.Continue(ctx, g.request(s, action.Text, true)); err != nil {
			return fmt.Errorf("continue context %s: %w", s.id, err)
		}
	}
	return nil
}

// receiveLoop waits for the handshake and then drains the context's events
// into the stream. It is the only writer of the stream.
func (g *Generator) receiveLoop(ctx context.Context, s *session) error {
	defer s.log.Debug("receive loop finished")

	handle, err := s.handshake.Await(ctx)
	if err != nil {
		if errors.Is(err, ErrNoText) {
			s.w.Close()
			return nil
		}
		s.w.CloseWithError(err)
		return err
	}

	b := &bridge{
		contextID: s.id,
		w:         s.w,
		log:       s.log,
		onAudio:   func(n int) { g.ins.audioWritten(ctx, n) },
	}
	if err := b.run(ctx, handle.Events(ctx)); err != nil {
		s.log.Error("audio stream failed", slogError(err))
		s.w.CloseWithError(err)
		return err
	}
	s.w.Close()
	return nil
}

func (g *Generator) finish(ctx context.Context, s *session, group *errgroup.Group) {
	err := group.Wait()
	if err != nil {
		reason := failureReason(err)
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, reason)
		g.ins.sessionFailed(ctx, reason)
		s.stream.end(StateFailed, err)
		g.record(ctx, s, StateFailed, err.Error())
	} else {
		s.stream.end(StateClosed, nil)
		g.record(ctx, s, StateClosed, "")
	}
	s.log.Info("session ended", slog.String("state", string(s.stream.State())))
	s.span.End()
}

// record writes a lifecycle entry. An empty state logs a note without a transition.
func (g *Generator) record(ctx context.Context, s *session, state SessionState, detail string) {
	if g.journal == nil {
		return
	}
	name := string(state)
	if name == "" {
		name = "note"
	}
	if err := g.journal.Record(context.WithoutCancel(ctx), s.id, name, detail); err != nil {
		s.log.Warn("failed to record session event", slogError(err))
	}
}

func failureReason(err error) string {
	var (
		connErr  *ConnectionError
		hsErr    *HandshakeError
		protoErr *ProtocolError
		writeErr *WriteError
	)
	switch {
	case errors.As(err, &connErr):
		return "connection"
	case errors.As(err, &hsErr):
		return "handshake"
	case errors.As(err, &protoErr):
		return "protocol"
	case errors.As(err, &writeErr):
		return "write"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "source"
	}
}

// Stream is the audio side of a session.
type Stream struct {
	id    string
	r     *io.PipeReader
	state atomic.Value
	done  chan struct{}
	err   error
}

func (s *Stream) Read(p []byte) (int, error) { return s.r.Read(p) }

// Close abandons the stream; the session stops at its next write.
func (s *Stream) Close() error { return s.r.Close() }

// ID returns the session's context id.
func (s *Stream) ID() string { return s.id }

func (s *Stream) State() SessionState { return s.state.Load().(SessionState) }

// Done is closed when both session loops have ended.
func (s *Stream) Done() <-chan struct{} { return s.done }

// Err returns the error that ended the session, once Done is closed.
func (s *Stream) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Stream) advance(state SessionState) {
	if s.State().terminal() {
		return
	}
	s.state.Store(state)
}

func (s *Stream) end(state SessionState, err error) {
	s.err = err
	s.advance(state)
	close(s.done)
}
