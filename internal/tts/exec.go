package tts

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"sync"

	"github.com/loqalabs/loqa-tts/internal/protocol"
	"github.com/mattn/go-shellwords"
)

var errExecClosed = errors.New("exec connection closed")

// maxExecLine bounds one JSON line of base64 audio from the command.
const maxExecLine = 16 << 20

// execConnection runs one process per context. Requests are written to its
// stdin as JSON lines; responses are read from stdout in the same shape as
// the websocket protocol.
type execConnection struct {
	cmd    []string
	log    *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	contexts map[string]*execContext
	closed   bool
}

type execContext struct {
	mu    sync.Mutex
	stdin io.WriteCloser
	enc   *json.Encoder
	ended chan struct{}
}

// NewExecDialer parses command once; each dial yields a connection that
// starts the command for every opened context.
func NewExecDialer(command string, log *slog.Logger) (Dialer, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("%w: parse tts command: %v", ErrConfiguration, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: tts command empty", ErrConfiguration)
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return func(ctx context.Context) (Connection, error) {
		cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		return &execConnection{
			cmd:      args,
			log:      log.With(slog.String("component", "tts-exec")),
			ctx:      cctx,
			cancel:   cancel,
			contexts: make(map[string]*execContext),
		}, nil
	}, nil
}

func (c *execConnection) Open(ctx context.Context, req Request) (ResponseHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errExecClosed
	}
	if _, ok := c.contexts[req.ContextID]; ok {
		return nil, fmt.Errorf("context %s already open", req.ContextID)
	}

	// cancelling cmdCtx kills the process
	cmdCtx, cancel := context.WithCancel(c.ctx)
	cmd := exec.CommandContext(cmdCtx, c.cmd[0], c.cmd[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start tts command: %w", err)
	}

	ec := &execContext{stdin: stdin, enc: json.NewEncoder(stdin), ended: make(chan struct{})}
	if err := ec.enc.Encode(req.Message()); err != nil {
		cancel()
		_ = cmd.Wait()
		return nil, fmt.Errorf("write request: %w", err)
	}
	c.contexts[req.ContextID] = ec

	events := make(chan protocol.WebSocketResponse)
	go c.read(cmdCtx, req.ContextID, cmd, stdout, ec, events)
	return &chanHandle{
		events:  events,
		gone:    c.ctx.Done(),
		err:     func() error { return errExecClosed },
		release: cancel,
	}, nil
}

func (c *execConnection) Continue(ctx context.Context, req Request) error {
	c.mu.Lock()
	ec, ok := c.contexts[req.ContextID]
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return errExecClosed
	}
	if !ok {
		return fmt.Errorf("context %s is not open", req.ContextID)
	}
	select {
	case <-ec.ended:
		return fmt.Errorf("context %s already finished", req.ContextID)
	default:
	}
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if err := ec.enc.Encode(req.Message()); err != nil {
		return fmt.Errorf("write request: %w", err)
	}
	return nil
}

func (c *execConnection) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errExecClosed
	}
	return nil
}

func (c *execConnection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.cancel()
	return nil
}

func (c *execConnection) read(ctx context.Context, contextID string, cmd *exec.Cmd, stdout io.Reader, ec *execContext, events chan<- protocol.WebSocketResponse) {
	defer close(events)
	defer func() {
		close(ec.ended)
		c.mu.Lock()
		delete(c.contexts, contextID)
		c.mu.Unlock()
	}()

	emit := func(msg protocol.WebSocketResponse) bool {
		select {
		case events <- msg:
			return true
		case <-ctx.Done():
			return false
		}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), maxExecLine)
	done := false
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp protocol.WebSocketResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			c.log.Warn("invalid response line", slog.String("context_id", contextID), slogError(err))
			emit(protocol.WebSocketResponse{Type: protocol.ResponseTypeError, ContextID: contextID, Error: "invalid response: " + err.Error(), Done: true})
			done = true
			break
		}
		if !emit(resp) {
			break
		}
		if resp.Done || resp.Type == protocol.ResponseTypeError {
			done = true
			break
		}
	}
	ec.mu.Lock()
	_ = ec.stdin.Close()
	ec.mu.Unlock()
	if done {
		// the command may still be flushing; it is not needed any more
		_, _ = io.Copy(io.Discard, stdout)
	}
	err := cmd.Wait()
	if scanErr := scanner.Err(); scanErr != nil && !done {
		emit(protocol.WebSocketResponse{Type: protocol.ResponseTypeError, ContextID: contextID, Error: scanErr.Error(), Done: true})
		return
	}
	if err != nil && !done && ctx.Err() == nil {
		emit(protocol.WebSocketResponse{Type: protocol.ResponseTypeError, ContextID: contextID, Error: fmt.Sprintf("tts command failed: %v", err), Done: true})
	}
}
