package tts

import (
	"context"
	"iter"

	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/protocol"
)

// Options is the fixed generation configuration attached to every request of a session.
type Options struct {
	ModelID  string
	Voice    protocol.Voice
	Format   protocol.OutputFormat
	Language string
}

// OptionsFromConfig maps the synthesis config section onto generation options.
func OptionsFromConfig(cfg config.SynthesisConfig) Options {
	return Options{
		ModelID: cfg.ModelID,
		Voice:   protocol.Voice{Mode: cfg.Voice.Mode, ID: cfg.Voice.ID},
		Format: protocol.OutputFormat{
			Container:  cfg.Container,
			Encoding:   cfg.Encoding,
			SampleRate: cfg.SampleRate,
		},
		Language: cfg.Language,
	}
}

// Request is one open or continuation message for a context.
type Request struct {
	ContextID  string
	Transcript string
	Continue   bool
	Options    Options
}

// Message renders the request in wire form.
func (r Request) Message() protocol.GenerationRequest {
	return protocol.GenerationRequest{
		ModelID:      r.Options.ModelID,
		Transcript:   r.Transcript,
		Voice:        r.Options.Voice,
		OutputFormat: r.Options.Format,
		Language:     r.Options.Language,
		ContextID:    r.ContextID,
		Continue:     r.Continue,
	}
}

// ResponseHandle yields the events of one context. The sequence ends after a
// done event, when the server stops sending for the context, or with a
// non-nil error when the connection fails.
type ResponseHandle interface {
	Events(ctx context.Context) iter.Seq2[protocol.WebSocketResponse, error]
}

// Connection is a duplex link to a synthesis backend shared by sessions.
type Connection interface {
	// Open starts a context and returns its response handle.
	Open(ctx context.Context, req Request) (ResponseHandle, error)
	// Continue appends text to a context that was opened before.
	Continue(ctx context.Context, req Request) error
	// Err reports why the connection stopped working, or nil while it is usable.
	Err() error
	Close() error
}

// Dialer creates a Connection. Generators call it lazily.
type Dialer func(ctx context.Context) (Connection, error)

// TextSource yields text fragments in order. A non-nil error ends the sequence.
type TextSource = iter.Seq2[string, error]

// Journal persists session lifecycle transitions.
type Journal interface {
	Record(ctx context.Context, sessionID, state, detail string) error
}

type SessionState string

const (
	StateAccumulating SessionState = "accumulating"
	StateOpened       SessionState = "opened"
	StateClosed       SessionState = "closed"
	StateFailed       SessionState = "failed"
)

func (s SessionState) terminal() bool {
	return s == StateClosed || s == StateFailed
}
