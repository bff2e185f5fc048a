package tts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/loqalabs/loqa-tts/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeCall struct {
	kind string
	req  Request
}

// fakeConn replays a fixed event script for every opened context and records
// the order of open and continue calls.
type fakeConn struct {
	script []protocol.WebSocketResponse
	// hold keeps the event channel open after the script is exhausted.
	hold    bool
	openErr error
	contErr error

	mu     sync.Mutex
	calls  []fakeCall
	closes int
	lost   error
	gone   chan struct{}
}

func newFakeConn(script ...protocol.WebSocketResponse) *fakeConn {
	return &fakeConn{script: script, gone: make(chan struct{})}
}

func (f *fakeConn) Open(ctx context.Context, req Request) (ResponseHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{kind: "open", req: req})
	if f.openErr != nil {
		return nil, f.openErr
	}
	events := make(chan protocol.WebSocketResponse, len(f.script))
	for _, msg := range f.script {
		msg.ContextID = req.ContextID
		events <- msg
	}
	if !f.hold {
		close(events)
	}
	return &chanHandle{events: events, gone: f.gone, err: func() error { return errors.New("fake connection lost") }}, nil
}

func (f *fakeConn) Continue(ctx context.Context, req Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fakeCall{kind: "continue", req: req})
	return f.contErr
}

func (f *fakeConn) Err() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lost
}

// fail marks the connection as dropped by the server.
func (f *fakeConn) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lost = err
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeConn) recorded() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func (f *fakeConn) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closes
}

// countingDialer hands out conn and counts dials. The first `failures` dials
// are refused.
type countingDialer struct {
	conn     Connection
	failures int

	mu    sync.Mutex
	dials int
}

func (d *countingDialer) dial(ctx context.Context) (Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dials <= d.failures {
		return nil, fmt.Errorf("dial attempt %d refused", d.dials)
	}
	return d.conn, nil
}

func (d *countingDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type journalEntry struct {
	sessionID string
	state     string
	detail    string
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []journalEntry
}

func (j *memoryJournal) Record(ctx context.Context, sessionID, state, detail string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, journalEntry{sessionID: sessionID, state: state, detail: detail})
	return nil
}

func (j *memoryJournal) states() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, 0, len(j.entries))
	for _, e := range j.entries {
		out = append(out, e.state)
	}
	return out
}

func chunkEvent(audio string) protocol.WebSocketResponse {
	return protocol.WebSocketResponse{
		Type:       protocol.ResponseTypeChunk,
		Data:       base64.StdEncoding.EncodeToString([]byte(audio)),
		StatusCode: 206,
	}
}

func doneEvent() protocol.WebSocketResponse {
	return protocol.WebSocketResponse{Type: protocol.ResponseTypeDone, Done: true, StatusCode: 200}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("ctx-%d", n)
	}
}
