// Package audiofile stores raw synthesis output as WAV.
package audiofile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/transforms"
	"github.com/go-audio/wav"
)

// ErrUnsupportedEncoding is returned for encodings that cannot be written as PCM WAV.
var ErrUnsupportedEncoding = errors.New("unsupported encoding")

const bitDepth = 16

// WriteWAV encodes mono little-endian PCM as a 16-bit WAV file.
// Float samples are expected in [-1, 1].
func WriteWAV(w io.WriteSeeker, pcm []byte, encoding string, sampleRate int) error {
	if sampleRate <= 0 {
		return fmt.Errorf("invalid sample rate %d", sampleRate)
	}
	format := &audio.Format{NumChannels: 1, SampleRate: sampleRate}

	var buffer *audio.IntBuffer
	switch encoding {
	case "pcm_f32le":
		if len(pcm)%4 != 0 {
			return fmt.Errorf("pcm_f32le payload of %d bytes is not aligned", len(pcm))
		}
		floats := &audio.Float32Buffer{Format: format, Data: make([]float32, len(pcm)/4)}
		for i := range floats.Data {
			floats.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(pcm[i*4:]))
		}
		if err := transforms.PCMScaleF32(floats, bitDepth); err != nil {
			return fmt.Errorf("scale samples: %w", err)
		}
		buffer = floats.AsIntBuffer()
		for i, v := range buffer.Data {
			buffer.Data[i] = max(math.MinInt16, min(math.MaxInt16, v))
		}
	case "pcm_s16le":
		if len(pcm)%2 != 0 {
			return fmt.Errorf("pcm_s16le payload of %d bytes is not aligned", len(pcm))
		}
		buffer = &audio.IntBuffer{Format: format, SourceBitDepth: bitDepth, Data: make([]int, len(pcm)/2)}
		for i := range buffer.Data {
			buffer.Data[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedEncoding, encoding)
	}

	enc := wav.NewEncoder(w, sampleRate, bitDepth, 1, 1)
	if err := enc.Write(buffer); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close wav encoder: %w", err)
	}
	return nil
}
