package tts

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration is returned when a generator or connection cannot be built.
	ErrConfiguration = errors.New("tts: invalid configuration")
	// ErrNoText ends a session whose source produced no text. It never reaches readers.
	ErrNoText = errors.New("tts: no text to synthesize")
)

// ConnectionError reports that no connection to the backend could be made.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string { return fmt.Sprintf("synthesis connection: %v", e.Err) }
func (e *ConnectionError) Unwrap() error { return e.Err }

// HandshakeError reports a failed open message.
type HandshakeError struct {
	ContextID string
	Err       error
}

func (e *HandshakeError) Error() string {
	return fmt.Sprintf("open context %s: %v", e.ContextID, e.Err)
}
func (e *HandshakeError) Unwrap() error { return e.Err }

// ProtocolError carries an error reported by the backend, or a malformed event.
type ProtocolError struct {
	ContextID string
	Message   string
	Err       error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("context %s: %s: %v", e.ContextID, e.Message, e.Err)
	}
	return fmt.Sprintf("context %s: %s", e.ContextID, e.Message)
}
func (e *ProtocolError) Unwrap() error { return e.Err }

// WriteError reports that audio could not be delivered to the reader.
type WriteError struct {
	Err error
}

func (e *WriteError) Error() string { return fmt.Sprintf("write audio: %v", e.Err) }
func (e *WriteError) Unwrap() error { return e.Err }
