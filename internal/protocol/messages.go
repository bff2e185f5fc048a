package protocol

import "time"

// TextFragment carries a piece of text to be spoken for a bus session.
type TextFragment struct {
	SessionID string `json:"session_id"`
	Target    string `json:"target,omitempty"`
	Text      string `json:"text"`
	Final     bool   `json:"final"`
}

// AudioChunk represents synthesized audio streamed back on the bus.
type AudioChunk struct {
	SessionID  string `json:"session_id" msg:"session_id"`
	Target     string `json:"target,omitempty" msg:"target"`
	Sequence   int    `json:"sequence" msg:"sequence"`
	SampleRate int    `json:"sample_rate" msg:"sample_rate"`
	Encoding   string `json:"encoding" msg:"encoding"`
	PCM        []byte `json:"pcm" msg:"pcm"`
	Final      bool   `json:"final" msg:"final"`
}

// TTSStatus is published once per bus session when synthesis ends.
type TTSStatus struct {
	SessionID string    `json:"session_id"`
	Target    string    `json:"target,omitempty"`
	Completed bool      `json:"completed"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectTTSText  = "tts.text"
	SubjectTTSAudio = "tts.audio"
	SubjectTTSDone  = "tts.done"
)

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)
