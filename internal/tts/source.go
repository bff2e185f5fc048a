package tts

import (
	"context"
	"errors"
	"io"
	"unicode/utf8"
)

// TextFromStrings yields the given fragments in order.
func TextFromStrings(fragments ...string) TextSource {
	return func(yield func(string, error) bool) {
		for _, f := range fragments {
			if !yield(f, nil) {
				return
			}
		}
	}
}

// TextFromReader yields the reader's content in chunks of at most size bytes.
// A multi-byte UTF-8 sequence is never split across fragments.
func TextFromReader(r io.Reader, size int) TextSource {
	if size < utf8.UTFMax {
		size = 4096
	}
	return func(yield func(string, error) bool) {
		buf := make([]byte, size)
		var pending []byte
		for {
			n, err := r.Read(buf)
			if n > 0 {
				data := append(pending, buf[:n]...)
				cut := completeRunes(data)
				pending = append([]byte(nil), data[cut:]...)
				if cut > 0 && !yield(string(data[:cut]), nil) {
					return
				}
			}
			if errors.Is(err, io.EOF) {
				if len(pending) > 0 {
					yield(string(pending), nil)
				}
				return
			}
			if err != nil {
				yield("", err)
				return
			}
		}
	}
}

// completeRunes returns the length of the longest prefix of data that does
// not end inside a UTF-8 sequence.
func completeRunes(data []byte) int {
	n := len(data)
	for i := n - 1; i >= 0 && i >= n-utf8.UTFMax; i-- {
		if utf8.RuneStart(data[i]) {
			if !utf8.FullRune(data[i:]) {
				return i
			}
			return n
		}
	}
	return n
}

// TextFromChannel yields fragments received on ch until it is closed. The
// sequence ends with ctx.Err() when ctx is cancelled first.
func TextFromChannel(ctx context.Context, ch <-chan string) TextSource {
	return func(yield func(string, error) bool) {
		for {
			select {
			case <-ctx.Done():
				yield("", ctx.Err())
				return
			case fragment, ok := <-ch:
				if !ok {
					return
				}
				if !yield(fragment, nil) {
					return
				}
			}
		}
	}
}
