package tts

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/protocol"
)

func TestMockConnectionSynthesizesSilence(t *testing.T) {
	opts := Options{Format: protocol.OutputFormat{Container: "raw", Encoding: "pcm_s16le", SampleRate: 1000}}
	g := newTestGenerator(t, NewMockDialer(200*time.Millisecond), WithSynthesisOptions(opts))

	stream := g.Generate(context.Background(), TextFromStrings("one two three four", " five six"))
	audio, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	// 100ms of 16-bit samples at 1kHz per word.
	if len(audio) != 6*100*2 {
		t.Fatalf("expected %d bytes, got %d", 6*100*2, len(audio))
	}
	for i, b := range audio {
		if b != 0 {
			t.Fatalf("expected silence, byte %d is %d", i, b)
		}
	}
}

func TestMockConnectionRejectsUnknownContext(t *testing.T) {
	conn := NewMockConnection(time.Second)
	defer conn.Close()
	if err := conn.Continue(context.Background(), Request{ContextID: "missing", Transcript: "x"}); err == nil {
		t.Fatalf("expected error for unknown context")
	}
}

func TestMockConnectionClosed(t *testing.T) {
	conn := NewMockConnection(time.Second)
	if err := conn.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	if _, err := conn.Open(context.Background(), Request{ContextID: "a", Transcript: "x"}); err == nil {
		t.Fatalf("expected open on a closed connection to fail")
	}
}

func liveContexts(m *MockConnection) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.contexts)
}

func TestMockConnectionReleasesAbandonedContext(t *testing.T) {
	// idle far beyond the test deadline, so only abandonment can end the context
	conn := NewMockConnection(10 * time.Second)
	opts := Options{Format: protocol.OutputFormat{Container: "raw", Encoding: "pcm_s16le", SampleRate: 1000}}
	g := newTestGenerator(t, func(ctx context.Context) (Connection, error) { return conn, nil }, WithSynthesisOptions(opts))

	stream := g.Generate(context.Background(), TextFromStrings("one two three four", " five six"))
	if _, err := io.ReadFull(stream, make([]byte, 10)); err != nil {
		t.Fatalf("partial read: %v", err)
	}
	if err := stream.Close(); err != nil {
		t.Fatalf("close stream: %v", err)
	}
	waitDone(t, stream)
	var writeErr *WriteError
	if !errors.As(stream.Err(), &writeErr) {
		t.Fatalf("expected WriteError, got %v", stream.Err())
	}

	deadline := time.Now().Add(2 * time.Second)
	for liveContexts(conn) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("abandoned context still registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
