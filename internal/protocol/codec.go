package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/tinylib/msgp/msgp"
)

var (
	_ msgp.Marshaler   = AudioChunk{}
	_ msgp.Unmarshaler = (*AudioChunk)(nil)
)

// MarshalMsg appends the MessagePack encoding of the chunk to b.
func (c AudioChunk) MarshalMsg(b []byte) ([]byte, error) {
	o := msgp.Require(b, c.Msgsize())
	o = msgp.AppendMapHeader(o, 7)
	o = msgp.AppendString(o, "session_id")
	o = msgp.AppendString(o, c.SessionID)
	o = msgp.AppendString(o, "target")
	o = msgp.AppendString(o, c.Target)
	o = msgp.AppendString(o, "sequence")
	o = msgp.AppendInt(o, c.Sequence)
	o = msgp.AppendString(o, "sample_rate")
	o = msgp.AppendInt(o, c.SampleRate)
	o = msgp.AppendString(o, "encoding")
	o = msgp.AppendString(o, c.Encoding)
	o = msgp.AppendString(o, "pcm")
	o = msgp.AppendBytes(o, c.PCM)
	o = msgp.AppendString(o, "final")
	o = msgp.AppendBool(o, c.Final)
	return o, nil
}

// UnmarshalMsg decodes a MessagePack map into the chunk. Unknown keys are skipped.
func (c *AudioChunk) UnmarshalMsg(bts []byte) (o []byte, err error) {
	var fields uint32
	fields, bts, err = msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, msgp.WrapError(err)
	}
	for ; fields > 0; fields-- {
		var key []byte
		key, bts, err = msgp.ReadMapKeyZC(bts)
		if err != nil {
			return bts, msgp.WrapError(err)
		}
		switch string(key) {
		case "session_id":
			c.SessionID, bts, err = msgp.ReadStringBytes(bts)
		case "target":
			c.Target, bts, err = msgp.ReadStringBytes(bts)
		case "sequence":
			c.Sequence, bts, err = msgp.ReadIntBytes(bts)
		case "sample_rate":
			c.SampleRate, bts, err = msgp.ReadIntBytes(bts)
		case "encoding":
			c.Encoding, bts, err = msgp.ReadStringBytes(bts)
		case "pcm":
			c.PCM, bts, err = msgp.ReadBytesBytes(bts, c.PCM[:0])
		case "final":
			c.Final, bts, err = msgp.ReadBoolBytes(bts)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, msgp.WrapError(err, string(key))
		}
	}
	return bts, nil
}

// Msgsize is an upper bound of the encoded size.
func (c AudioChunk) Msgsize() int {
	return 1 + 11 + msgp.StringPrefixSize + len(c.SessionID) +
		7 + msgp.StringPrefixSize + len(c.Target) +
		9 + msgp.IntSize +
		12 + msgp.IntSize +
		9 + msgp.StringPrefixSize + len(c.Encoding) +
		4 + msgp.BytesPrefixSize + len(c.PCM) +
		6 + msgp.BoolSize
}

// EncodeAudioChunk serializes a chunk with the named bus codec.
func EncodeAudioChunk(codec string, chunk AudioChunk) ([]byte, error) {
	switch codec {
	case CodecMsgpack:
		return chunk.MarshalMsg(nil)
	case CodecJSON, "":
		return json.Marshal(chunk)
	default:
		return nil, fmt.Errorf("unknown codec %q", codec)
	}
}

// DecodeAudioChunk is the inverse of EncodeAudioChunk.
func DecodeAudioChunk(codec string, data []byte) (AudioChunk, error) {
	var chunk AudioChunk
	switch codec {
	case CodecMsgpack:
		if _, err := chunk.UnmarshalMsg(data); err != nil {
			return chunk, fmt.Errorf("decode msgpack chunk: %w", err)
		}
	case CodecJSON, "":
		if err := json.Unmarshal(data, &chunk); err != nil {
			return chunk, fmt.Errorf("decode json chunk: %w", err)
		}
	default:
		return chunk, fmt.Errorf("unknown codec %q", codec)
	}
	return chunk, nil
}
