package tts

import "testing"

func TestAccumulatorOpensAtThreshold(t *testing.T) {
	acc := NewAccumulator(4)
	steps := []struct {
		in   string
		kind ActionKind
		text string
	}{
		{"Hello ", ActionBuffer, ""},
		{"there, ", ActionBuffer, ""},
		{"how are ", ActionOpen, "Hello there, how are "},
		{"you today?", ActionContinue, "you today?"},
		{"", ActionBuffer, ""},
		{" Fine.", ActionContinue, " Fine."},
	}
	for i, step := range steps {
		got := acc.Offer(step.in)
		if got.Kind != step.kind || got.Text != step.text {
			t.Fatalf("step %d (%q): expected %s %q, got %s %q", i, step.in, step.kind, step.text, got.Kind, got.Text)
		}
	}
	if !acc.HandedOff() {
		t.Fatalf("expected hand-off")
	}
	if got := acc.FlushOnClose(); got.Kind != ActionBuffer {
		t.Fatalf("flush after hand-off must be a no-op, got %s", got.Kind)
	}
}

func TestAccumulatorFlushBelowThreshold(t *testing.T) {
	acc := NewAccumulator(0)
	if got := acc.Offer("hi"); got.Kind != ActionBuffer {
		t.Fatalf("expected buffer, got %s", got.Kind)
	}
	got := acc.FlushOnClose()
	if got.Kind != ActionOpen || got.Text != "hi" {
		t.Fatalf("expected open with \"hi\", got %s %q", got.Kind, got.Text)
	}
	if again := acc.FlushOnClose(); again.Kind != ActionBuffer {
		t.Fatalf("second flush must be a no-op, got %s", again.Kind)
	}
}

func TestAccumulatorNothingBuffered(t *testing.T) {
	acc := NewAccumulator(4)
	acc.Offer("")
	if got := acc.FlushOnClose(); got.Kind != ActionBuffer {
		t.Fatalf("expected no action for empty input, got %s", got.Kind)
	}
	if acc.HandedOff() {
		t.Fatalf("empty input must not hand off")
	}
}

func TestAccumulatorWordsSplitAcrossFragments(t *testing.T) {
	acc := NewAccumulator(2)
	if got := acc.Offer("wo"); got.Kind != ActionBuffer {
		t.Fatalf("expected buffer, got %s", got.Kind)
	}
	if got := acc.Offer("rd"); got.Kind != ActionBuffer {
		t.Fatalf("a split word counts once, got %s", got.Kind)
	}
	got := acc.Offer(" two")
	if got.Kind != ActionOpen || got.Text != "word two" {
		t.Fatalf("expected open with \"word two\", got %s %q", got.Kind, got.Text)
	}
}
