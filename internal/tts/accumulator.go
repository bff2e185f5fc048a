package tts

import "strings"

// DefaultMinWords is the number of words buffered before a context is opened.
const DefaultMinWords = 4

type ActionKind int

const (
	// ActionBuffer means nothing has to be sent.
	ActionBuffer ActionKind = iota
	// ActionOpen carries the seed text of a new context.
	ActionOpen
	// ActionContinue carries text for an opened context.
	ActionContinue
)

func (k ActionKind) String() string {
	switch k {
	case ActionOpen:
		return "open"
	case ActionContinue:
		return "continue"
	default:
		return "buffer"
	}
}

type Action struct {
	Kind ActionKind
	Text string
}

// Accumulator batches fragments until enough words are available to open a
// context, then passes every later fragment through as a continuation.
// It is not safe for concurrent use.
type Accumulator struct {
	minWords  int
	buf       strings.Builder
	handedOff bool
}

func NewAccumulator(minWords int) *Accumulator {
	if minWords <= 0 {
		minWords = DefaultMinWords
	}
	return &Accumulator{minWords: minWords}
}

// Offer feeds one fragment and reports what has to be sent.
func (a *Accumulator) Offer(fragment string) Action {
	if a.handedOff {
		if fragment == "" {
			return Action{Kind: ActionBuffer}
		}
		return Action{Kind: ActionContinue, Text: fragment}
	}
	a.buf.WriteString(fragment)
	if len(strings.Fields(a.buf.String())) >= a.minWords {
		return a.handOff()
	}
	return Action{Kind: ActionBuffer}
}

// FlushOnClose opens the context with whatever was buffered when the source ends
// below the word threshold. It never produces an end-of-text message.
func (a *Accumulator) FlushOnClose() Action {
	if a.handedOff || a.buf.Len() == 0 {
		return Action{Kind: ActionBuffer}
	}
	return a.handOff()
}

// HandedOff reports whether the seed text has been released.
func (a *Accumulator) HandedOff() bool { return a.handedOff }

func (a *Accumulator) handOff() Action {
	a.handedOff = true
	text := a.buf.String()
	a.buf.Reset()
	return Action{Kind: ActionOpen, Text: text}
}
