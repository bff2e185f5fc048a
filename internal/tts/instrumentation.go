package tts

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const scopeName = "github.com/loqalabs/loqa-tts/tts"

var tracer = otel.Tracer(scopeName)

type instruments struct {
	sessions    metric.Int64Counter
	failures    metric.Int64Counter
	audioBytes  metric.Int64Counter
	openLatency metric.Float64Histogram
}

func newInstruments(log *slog.Logger) *instruments {
	meter := otel.Meter(scopeName)
	ins := &instruments{}
	var err error
	if ins.sessions, err = meter.Int64Counter("loqa.tts.sessions", metric.WithDescription("Synthesis sessions started")); err != nil {
		log.Warn("failed to create sessions counter", slogError(err))
	}
	if ins.failures, err = meter.Int64Counter("loqa.tts.session_failures", metric.WithDescription("Synthesis sessions ended with an error")); err != nil {
		log.Warn("failed to create failures counter", slogError(err))
	}
	if ins.audioBytes, err = meter.Int64Counter("loqa.tts.audio_bytes", metric.WithDescription("Audio bytes delivered to readers"), metric.WithUnit("By")); err != nil {
		log.Warn("failed to create audio bytes counter", slogError(err))
	}
	if ins.openLatency, err = meter.Float64Histogram("loqa.tts.open_latency_ms", metric.WithDescription("Time to open a synthesis context"), metric.WithUnit("ms")); err != nil {
		log.Warn("failed to create open latency histogram", slogError(err))
	}
	return ins
}

func (i *instruments) sessionStarted(ctx context.Context) {
	if i.sessions != nil {
		i.sessions.Add(ctx, 1)
	}
}

func (i *instruments) sessionFailed(ctx context.Context, reason string) {
	if i.failures != nil {
		i.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
	}
}

func (i *instruments) audioWritten(ctx context.Context, n int) {
	if i.audioBytes != nil {
		i.audioBytes.Add(ctx, int64(n))
	}
}

func (i *instruments) opened(ctx context.Context, ms float64) {
	if i.openLatency != nil {
		i.openLatency.Record(ctx, ms)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
