package tts

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/loqalabs/loqa-tts/internal/bus"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/nats-io/nats.go"
)

// Service exposes a Generator on the bus. Text fragments arrive on
// tts.text keyed by session id; audio is published on tts.audio and a
// status on tts.done when the session ends.
type Service struct {
	cfg    config.ServiceConfig
	bus    *bus.Client
	gen    *Generator
	format protocol.OutputFormat
	sub    *nats.Subscription
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger

	mu       sync.Mutex
	sessions map[string]*busSession
}

type busSession struct {
	id     string
	target string
	text   chan string
	idle   *time.Timer

	mu     sync.Mutex
	closed bool
}

func NewService(parent context.Context, cfg config.ServiceConfig, busClient *bus.Client, gen *Generator, format protocol.OutputFormat, log *slog.Logger) *Service {
	ctx, cancel := context.WithCancel(parent)
	return &Service{
		cfg:      cfg,
		bus:      busClient,
		gen:      gen,
		format:   format,
		ctx:      ctx,
		cancel:   cancel,
		logger:   log.With(slog.String("component", "tts-service")),
		sessions: make(map[string]*busSession),
	}
}

func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	sub, err := s.bus.Conn().Subscribe(protocol.SubjectTTSText, s.handleFragment)
	if err != nil {
		return err
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	s.cancel()
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.mu.Lock()
	for _, sess := range s.sessions {
		sess.finish()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Service) Healthy() bool { return !s.cfg.Enabled || s.sub != nil }

func (s *Service) handleFragment(msg *nats.Msg) {
	var frag protocol.TextFragment
	if err := json.Unmarshal(msg.Data, &frag); err != nil {
		s.logger.Warn("failed to decode text fragment", slogError(err))
		return
	}
	if frag.SessionID == "" {
		s.logger.Warn("text fragment without session id")
		return
	}

	sess := s.session(frag)
	if sess == nil {
		return
	}
	if frag.Text != "" && !sess.push(s.ctx, frag.Text) {
		s.logger.Warn("dropping text for finished session", slog.String("session_id", frag.SessionID))
		return
	}
	if frag.Final {
		sess.finish()
		return
	}
	if idle := s.idleTimeout(); idle > 0 {
		sess.idle.Reset(idle)
	}
}

func (s *Service) idleTimeout() time.Duration {
	return time.Duration(s.cfg.IdleTimeoutMS) * time.Millisecond
}

// session returns the live session for the fragment, starting one if needed.
func (s *Service) session(frag protocol.TextFragment) *busSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx.Err() != nil {
		return nil
	}
	if sess, ok := s.sessions[frag.SessionID]; ok {
		return sess
	}
	sess := &busSession{
		id:     frag.SessionID,
		target: frag.Target,
		text:   make(chan string, 64),
	}
	sess.idle = time.AfterFunc(time.Hour, func() {
		s.logger.Info("session idle, ending text", slog.String("session_id", sess.id))
		sess.finish()
	})
	if idle := s.idleTimeout(); idle > 0 {
		sess.idle.Reset(idle)
	} else {
		sess.idle.Stop()
	}
	s.sessions[frag.SessionID] = sess

	stream := s.gen.Generate(s.ctx, TextFromChannel(s.ctx, sess.text))
	s.logger.Info("bus session started", slog.String("session_id", sess.id), slog.String("context_id", stream.ID()))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
			sess.finish()
		}()
		s.publish(sess, stream)
	}()
	return sess
}

// publish forwards the stream as ordered chunks followed by a final chunk
// and a status message.
func (s *Service) publish(sess *busSession, stream *Stream) {
	defer stream.Close()
	buf := make([]byte, s.cfg.ReadSize)
	sequence := 0
	var streamErr error
	for {
		n, err := io.ReadFull(stream, buf)
		if n > 0 {
			s.publishChunk(sess, sequence, buf[:n], false)
			sequence++
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			streamErr = err
			break
		}
	}
	if streamErr == nil {
		s.publishChunk(sess, sequence, nil, true)
	}

	status := protocol.TTSStatus{
		SessionID: sess.id,
		Target:    sess.target,
		Completed: streamErr == nil,
		Timestamp: time.Now().UTC(),
	}
	if streamErr != nil {
		s.logger.Warn("tts synthesis error", slog.String("session_id", sess.id), slogError(streamErr))
		status.Error = streamErr.Error()
	}
	data, err := json.Marshal(status)
	if err != nil {
		s.logger.Warn("failed to marshal tts status", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTTSDone, data); err != nil {
		s.logger.Warn("failed to publish tts status", slogError(err))
	}
}

func (s *Service) publishChunk(sess *busSession, sequence int, pcm []byte, final bool) {
	packet := protocol.AudioChunk{
		SessionID:  sess.id,
		Target:     sess.target,
		Sequence:   sequence,
		SampleRate: s.format.SampleRate,
		Encoding:   s.format.Encoding,
		PCM:        pcm,
		Final:      final,
	}
	data, err := protocol.EncodeAudioChunk(s.cfg.Codec, packet)
	if err != nil {
		s.logger.Warn("failed to marshal tts chunk", slogError(err))
		return
	}
	if err := s.bus.Conn().Publish(protocol.SubjectTTSAudio, data); err != nil {
		s.logger.Warn("failed to publish tts chunk", slogError(err))
	}
}

func (b *busSession) push(ctx context.Context, text string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.text <- text:
		return true
	case <-ctx.Done():
		return false
	}
}

func (b *busSession) finish() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.idle.Stop()
	close(b.text)
}
