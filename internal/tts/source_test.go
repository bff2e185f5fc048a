package tts

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/iotest"
	"unicode/utf8"
)

func collect(t *testing.T, src TextSource) ([]string, error) {
	t.Helper()
	var out []string
	for fragment, err := range src {
		if err != nil {
			return out, err
		}
		out = append(out, fragment)
	}
	return out, nil
}

func TestTextFromReaderKeepsRunesWhole(t *testing.T) {
	text := "héllo wörld, ça va? 日本語"
	frags, err := collect(t, TextFromReader(iotest.OneByteReader(strings.NewReader(text)), 4))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for _, f := range frags {
		if !utf8.ValidString(f) {
			t.Fatalf("fragment %q splits a rune", f)
		}
	}
	if got := strings.Join(frags, ""); got != text {
		t.Fatalf("expected %q, got %q", text, got)
	}
}

func TestTextFromReaderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := collect(t, TextFromReader(iotest.ErrReader(boom), 16))
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
}

func TestTextFromChannel(t *testing.T) {
	ch := make(chan string, 2)
	ch <- "a"
	ch <- "b"
	close(ch)
	frags, err := collect(t, TextFromChannel(context.Background(), ch))
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if strings.Join(frags, ",") != "a,b" {
		t.Fatalf("unexpected fragments %v", frags)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := collect(t, TextFromChannel(ctx, make(chan string))); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}
