package eventstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-tts/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func openStore(t *testing.T, cfg config.EventStoreConfig) *Store {
	t.Helper()
	if cfg.Path == "" {
		cfg.Path = filepath.Join(t.TempDir(), "journal.db")
	}
	es, err := Open(context.Background(), cfg, "loqa-tts-test", newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	return es
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, "loqa-tts-test", newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.Ensure(); err != nil {
		t.Fatalf("ensure failed: %v", err)
	}
	if err := es.Record(ctx, "ctx-1", "opened", ""); err != nil {
		t.Fatalf("record on ephemeral store: %v", err)
	}
	if _, err := es.Session(ctx, "ctx-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRecordLifecycle(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})

	for _, step := range []struct{ state, detail string }{
		{"accumulating", ""},
		{"opened", ""},
		{"note", "text source failed: eof"},
		{"closed", ""},
	} {
		if err := es.Record(ctx, "ctx-1", step.state, step.detail); err != nil {
			t.Fatalf("record %s: %v", step.state, err)
		}
	}

	sess, err := es.Session(ctx, "ctx-1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.State != "closed" || sess.Runtime != "loqa-tts-test" {
		t.Fatalf("unexpected session %+v", sess)
	}

	events, err := es.ListSessionEvents(ctx, "ctx-1", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 events, got %d", len(events))
	}
	if events[2].State != "note" || events[2].Detail != "text source failed: eof" {
		t.Fatalf("unexpected note %+v", events[2])
	}
}

func TestNoteDoesNotMoveState(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "session"})

	if err := es.Record(ctx, "ctx-1", "opened", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := es.Record(ctx, "ctx-1", "note", "slow reader"); err != nil {
		t.Fatalf("record note: %v", err)
	}
	sess, err := es.Session(ctx, "ctx-1")
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if sess.State != "opened" {
		t.Fatalf("expected opened, got %s", sess.State)
	}
}

func TestPruneByDaysAndSessions(t *testing.T) {
	ctx := context.Background()
	es := openStore(t, config.EventStoreConfig{RetentionMode: "persistent", RetentionDays: 1, MaxSessions: 1})

	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	if err := es.Record(ctx, "old-session", "closed", ""); err != nil {
		t.Fatalf("record: %v", err)
	}

	es.clock = func() time.Time { return time.Date(2025, 1, 3, 0, 0, 0, 0, time.UTC) }
	if err := es.Record(ctx, "new-session", "opened", ""); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := es.Prune(ctx); err != nil {
		t.Fatalf("prune: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "old-session", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected old session pruned")
	}
	if _, err := es.Session(ctx, "new-session"); err != nil {
		t.Fatalf("new session should survive: %v", err)
	}
}
