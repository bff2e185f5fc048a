package protocol

// Cartesia websocket message shapes. Only the fields the bridge relies on are modelled.

const (
	ResponseTypeChunk      = "chunk"
	ResponseTypeDone       = "done"
	ResponseTypeError      = "error"
	ResponseTypeTimestamps = "timestamps"
	ResponseTypeFlushDone  = "flush_done"
)

// Voice selects the speaker, e.g. {Mode: "id", ID: "<uuid>"}.
type Voice struct {
	Mode string `json:"mode" yaml:"mode"`
	ID   string `json:"id" yaml:"id"`
}

// OutputFormat selects the audio container, sample encoding and rate.
type OutputFormat struct {
	Container  string `json:"container"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

// GenerationRequest is sent once to open a context and again for every continuation.
type GenerationRequest struct {
	ModelID      string       `json:"model_id"`
	Transcript   string       `json:"transcript"`
	Voice        Voice        `json:"voice"`
	OutputFormat OutputFormat `json:"output_format"`
	Language     string       `json:"language,omitempty"`
	ContextID    string       `json:"context_id"`
	Continue     bool         `json:"continue,omitempty"`
}

// WebSocketResponse is any message received for a context.
type WebSocketResponse struct {
	Type       string  `json:"type"`
	ContextID  string  `json:"context_id,omitempty"`
	Data       string  `json:"data,omitempty"`
	Done       bool    `json:"done"`
	StatusCode int     `json:"status_code,omitempty"`
	StepTime   float64 `json:"step_time,omitempty"`
	Error      string  `json:"error,omitempty"`
}
