package tts

import (
	"context"
	"encoding/base64"
	"io"
	"iter"
	"log/slog"

	"github.com/loqalabs/loqa-tts/internal/protocol"
)

// bridge copies decoded audio from a context's events into the output writer.
type bridge struct {
	contextID string
	w         io.Writer
	log       *slog.Logger
	onAudio   func(n int)
}

// run consumes events until a done event, the end of the sequence or a
// failure. Each write returns before the next event is pulled, so a slow
// reader throttles consumption of the connection.
func (b *bridge) run(ctx context.Context, events iter.Seq2[protocol.WebSocketResponse, error]) error {
	frames := 0
	for msg, err := range events {
		if err != nil {
			return err
		}
		switch msg.Type {
		case protocol.ResponseTypeError:
			b.log.Error("synthesis error event", slog.String("error", msg.Error), slog.Int("status_code", msg.StatusCode))
			return &ProtocolError{ContextID: b.contextID, Message: msg.Error}
		case protocol.ResponseTypeChunk:
			audio, err := base64.StdEncoding.DecodeString(msg.Data)
			if err != nil {
				return &ProtocolError{ContextID: b.contextID, Message: "decode audio chunk", Err: err}
			}
			if len(audio) > 0 {
				if _, err := b.w.Write(audio); err != nil {
					return &WriteError{Err: err}
				}
				if b.onAudio != nil {
					b.onAudio(len(audio))
				}
			}
			frames++
			b.log.Debug("audio chunk written", slog.Int("bytes", len(audio)), slog.Float64("step_time", msg.StepTime))
		default:
			b.log.Debug("ignoring event", slog.String("type", msg.Type))
		}
		if msg.Done {
			b.log.Info("synthesis complete", slog.Int("frames", frames))
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	b.log.Warn("event sequence ended without done", slog.Int("frames", frames))
	return nil
}
