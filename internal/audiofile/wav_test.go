package audiofile

import (
	"encoding/binary"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/wav"
)

func decode(t *testing.T, path string) *wav.Decoder {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open wav: %v", err)
	}
	t.Cleanup(func() { _ = f.Close() })
	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		t.Fatalf("invalid wav file")
	}
	return d
}

func TestWriteWAVFloat(t *testing.T) {
	samples := []float32{0, 0.5, -0.5, 1, -1}
	pcm := make([]byte, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(pcm[i*4:], math.Float32bits(s))
	}

	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteWAV(f, pcm, "pcm_f32le", 44100); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	_ = f.Close()

	d := decode(t, path)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if d.SampleRate != 44100 || d.BitDepth != 16 {
		t.Fatalf("unexpected header rate=%d depth=%d", d.SampleRate, d.BitDepth)
	}
	if len(buf.Data) != len(samples) {
		t.Fatalf("expected %d samples, got %d", len(samples), len(buf.Data))
	}
	if buf.Data[0] != 0 || buf.Data[1] <= 0 || buf.Data[2] >= 0 {
		t.Fatalf("unexpected samples %v", buf.Data)
	}
}

func TestWriteWAVInt16(t *testing.T) {
	pcm := make([]byte, 6)
	for i, v := range []int16{100, -100, 32767} {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := WriteWAV(f, pcm, "pcm_s16le", 16000); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	_ = f.Close()

	buf, err := decode(t, path).FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := []int{100, -100, 32767}
	for i := range want {
		if buf.Data[i] != want[i] {
			t.Fatalf("sample %d: expected %d, got %d", i, want[i], buf.Data[i])
		}
	}
}

func TestWriteWAVRejectsMisaligned(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := WriteWAV(f, []byte{1, 2, 3}, "pcm_f32le", 44100); err == nil {
		t.Fatalf("expected alignment error")
	}
	if err := WriteWAV(f, nil, "pcm_mulaw", 8000); !errors.Is(err, ErrUnsupportedEncoding) {
		t.Fatalf("expected ErrUnsupportedEncoding, got %v", err)
	}
}
