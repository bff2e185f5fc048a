package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Bus.Servers[0] != "nats://localhost:4222" {
		t.Fatalf("expected default server, got %v", cfg.Bus.Servers)
	}
	if cfg.Synthesis.MinWords != 4 {
		t.Fatalf("expected default min words 4, got %d", cfg.Synthesis.MinWords)
	}
	if cfg.Synthesis.Encoding != "pcm_f32le" || cfg.Synthesis.SampleRate != 44100 {
		t.Fatalf("unexpected default output format %s/%d", cfg.Synthesis.Encoding, cfg.Synthesis.SampleRate)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LOQA_BUS_SERVERS", "nats://one:4222, nats://two:4222")
	t.Setenv("LOQA_BUS_USERNAME", "alice")
	t.Setenv("LOQA_BUS_PASSWORD", "secret")
	t.Setenv("LOQA_BUS_TLS_INSECURE", "true")
	t.Setenv("LOQA_BUS_CONNECT_TIMEOUT_MS", "5000")
	t.Setenv("LOQA_EVENT_STORE_PATH", "./tmp.db")
	t.Setenv("LOQA_EVENT_STORE_RETENTION_MODE", "persistent")
	t.Setenv("LOQA_SYNTHESIS_MODEL_ID", "sonic-2")
	t.Setenv("LOQA_SYNTHESIS_VOICE_ID", "voice-xyz")
	t.Setenv("LOQA_SYNTHESIS_MIN_WORDS", "6")
	t.Setenv("LOQA_SERVICE_CODEC", "msgpack")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Bus.Servers) != 2 {
		t.Fatalf("expected 2 servers, got %v", cfg.Bus.Servers)
	}
	if cfg.Bus.Username != "alice" || cfg.Bus.Password != "secret" {
		t.Fatalf("expected credentials override")
	}
	if !cfg.Bus.TLSInsecure {
		t.Fatal("expected tls insecure override true")
	}
	if cfg.Bus.ConnectTimeout != 5000 {
		t.Fatalf("expected timeout 5000, got %d", cfg.Bus.ConnectTimeout)
	}
	if cfg.EventStore.Path != "./tmp.db" {
		t.Fatalf("expected event store path override")
	}
	if cfg.EventStore.RetentionMode != "persistent" {
		t.Fatalf("expected event store retention mode override")
	}
	if cfg.Synthesis.ModelID != "sonic-2" || cfg.Synthesis.Voice.ID != "voice-xyz" {
		t.Fatalf("expected synthesis overrides, got %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.MinWords != 6 {
		t.Fatalf("expected min words override")
	}
	if cfg.Service.Codec != "msgpack" {
		t.Fatalf("expected codec override")
	}
}

func TestCartesiaKeyFallback(t *testing.T) {
	t.Setenv("CARTESIA_API_KEY", "from-env")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synthesis.APIKey != "from-env" {
		t.Fatalf("expected CARTESIA_API_KEY fallback, got %q", cfg.Synthesis.APIKey)
	}

	t.Setenv("LOQA_SYNTHESIS_API_KEY", "explicit")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synthesis.APIKey != "explicit" {
		t.Fatalf("expected explicit key to win, got %q", cfg.Synthesis.APIKey)
	}
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "loqa-tts.yaml")
	data := []byte(`
synthesis:
  mode: exec
  command: "python3 synth.py --fast"
  voice:
    mode: id
    id: custom-voice
  sample_rate: 24000
service:
  codec: msgpack
`)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Synthesis.Mode != "exec" || cfg.Synthesis.Command != "python3 synth.py --fast" {
		t.Fatalf("unexpected synthesis section %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.SampleRate != 24000 || cfg.Synthesis.Voice.ID != "custom-voice" {
		t.Fatalf("unexpected synthesis format %+v", cfg.Synthesis)
	}
	if cfg.Synthesis.ModelID != "sonic-english" {
		t.Fatalf("expected default model to survive partial yaml, got %q", cfg.Synthesis.ModelID)
	}
}

func TestValidateRejectsExecWithoutCommand(t *testing.T) {
	t.Setenv("LOQA_SYNTHESIS_MODE", "exec")
	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error")
	}
}
