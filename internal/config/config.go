package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type TelemetryConfig struct {
	LogLevel       string `yaml:"log_level"`
	OTLPEndpoint   string `yaml:"otlp_endpoint"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	PrometheusBind string `yaml:"prometheus_bind"`
	StdoutTraces   bool   `yaml:"stdout_traces"`
}

type HTTPConfig struct {
	Bind string `yaml:"bind"`
	Port int    `yaml:"port"`
}

type Config struct {
	RuntimeName string           `yaml:"runtime_name"`
	Environment string           `yaml:"environment"`
	HTTP        HTTPConfig       `yaml:"http"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Bus         BusConfig        `yaml:"bus"`
	EventStore  EventStoreConfig `yaml:"event_store"`
	Synthesis   SynthesisConfig  `yaml:"synthesis"`
	Service     ServiceConfig    `yaml:"service"`
}

type BusConfig struct {
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	StoreDir       string   `yaml:"store_dir"`
	Servers        []string `yaml:"servers"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	Token          string   `yaml:"token"`
	TLSInsecure    bool     `yaml:"tls_insecure"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type EventStoreConfig struct {
	Path          string `yaml:"path"`
	RetentionMode string `yaml:"retention_mode"`
	RetentionDays int    `yaml:"retention_days"`
	MaxSessions   int    `yaml:"max_sessions"`
	VacuumOnStart bool   `yaml:"vacuum_on_start"`
}

type VoiceConfig struct {
	Mode string `yaml:"mode"`
	ID   string `yaml:"id"`
}

// SynthesisConfig selects the remote synthesis backend and the fixed
// per-session generation settings.
type SynthesisConfig struct {
	Mode             string      `yaml:"mode"` // cartesia, exec, mock
	URL              string      `yaml:"url"`
	APIKey           string      `yaml:"api_key"`
	APIVersion       string      `yaml:"api_version"`
	Command          string      `yaml:"command"`
	ModelID          string      `yaml:"model_id"`
	Voice            VoiceConfig `yaml:"voice"`
	Container        string      `yaml:"container"`
	Encoding         string      `yaml:"encoding"`
	SampleRate       int         `yaml:"sample_rate"`
	Language         string      `yaml:"language"`
	MinWords         int         `yaml:"min_words"`
	ConnectTimeoutMS int         `yaml:"connect_timeout_ms"`
}

// ServiceConfig controls the bus-facing speech service.
type ServiceConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Codec         string `yaml:"codec"` // json, msgpack
	ReadSize      int    `yaml:"read_size"`
	IdleTimeoutMS int    `yaml:"idle_timeout_ms"`
}

func Default() Config {
	return Config{
		RuntimeName: "loqa-tts",
		Environment: "development",
		HTTP: HTTPConfig{
			Bind: "0.0.0.0",
			Port: 8081,
		},
		Telemetry: TelemetryConfig{
			LogLevel:       "info",
			OTLPEndpoint:   "",
			OTLPInsecure:   true,
			PrometheusBind: ":9092",
		},
		Bus: BusConfig{
			Embedded:       true,
			Port:           4222,
			StoreDir:       "./data/nats",
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		EventStore: EventStoreConfig{
			Path:          "./data/loqa-tts.db",
			RetentionMode: "session",
			RetentionDays: 30,
			MaxSessions:   10000,
		},
		Synthesis: SynthesisConfig{
			Mode:       "cartesia",
			URL:        "wss://api.cartesia.ai/tts/websocket",
			APIVersion: "2024-06-10",
			ModelID:    "sonic-english",
			Voice: VoiceConfig{
				Mode: "id",
				ID:   "a0e99841-438c-4a64-b679-ae501e7d6091",
			},
			Container:        "raw",
			Encoding:         "pcm_f32le",
			SampleRate:       44100,
			MinWords:         4,
			ConnectTimeoutMS: 10000,
		},
		Service: ServiceConfig{
			Enabled:       true,
			Codec:         "json",
			ReadSize:      8192,
			IdleTimeoutMS: 30000,
		},
	}
}

func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, fmt.Errorf("config file not found: %w", err)
			}
			return cfg, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.RuntimeName, "LOQA_RUNTIME_NAME")
	overrideString(&cfg.Environment, "LOQA_RUNTIME_ENVIRONMENT")
	overrideString(&cfg.HTTP.Bind, "LOQA_HTTP_BIND")
	overrideInt(&cfg.HTTP.Port, "LOQA_HTTP_PORT")
	overrideString(&cfg.Telemetry.LogLevel, "LOQA_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "LOQA_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "LOQA_TELEMETRY_OTLP_INSECURE")
	overrideString(&cfg.Telemetry.PrometheusBind, "LOQA_TELEMETRY_PROMETHEUS_BIND")
	overrideBool(&cfg.Telemetry.StdoutTraces, "LOQA_TELEMETRY_STDOUT_TRACES")
	overrideBool(&cfg.Bus.Embedded, "LOQA_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "LOQA_BUS_PORT")
	overrideString(&cfg.Bus.StoreDir, "LOQA_BUS_STORE_DIR")
	overrideStringSlice(&cfg.Bus.Servers, "LOQA_BUS_SERVERS")
	overrideString(&cfg.Bus.Username, "LOQA_BUS_USERNAME")
	overrideString(&cfg.Bus.Password, "LOQA_BUS_PASSWORD")
	overrideString(&cfg.Bus.Token, "LOQA_BUS_TOKEN")
	overrideBool(&cfg.Bus.TLSInsecure, "LOQA_BUS_TLS_INSECURE")
	overrideInt(&cfg.Bus.ConnectTimeout, "LOQA_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.EventStore.Path, "LOQA_EVENT_STORE_PATH")
	overrideString(&cfg.EventStore.RetentionMode, "LOQA_EVENT_STORE_RETENTION_MODE")
	overrideInt(&cfg.EventStore.RetentionDays, "LOQA_EVENT_STORE_RETENTION_DAYS")
	overrideInt(&cfg.EventStore.MaxSessions, "LOQA_EVENT_STORE_MAX_SESSIONS")
	overrideBool(&cfg.EventStore.VacuumOnStart, "LOQA_EVENT_STORE_VACUUM_ON_START")
	overrideString(&cfg.Synthesis.Mode, "LOQA_SYNTHESIS_MODE")
	overrideString(&cfg.Synthesis.URL, "LOQA_SYNTHESIS_URL")
	overrideString(&cfg.Synthesis.APIKey, "LOQA_SYNTHESIS_API_KEY")
	if cfg.Synthesis.APIKey == "" {
		overrideString(&cfg.Synthesis.APIKey, "CARTESIA_API_KEY")
	}
	overrideString(&cfg.Synthesis.APIVersion, "LOQA_SYNTHESIS_API_VERSION")
	overrideString(&cfg.Synthesis.Command, "LOQA_SYNTHESIS_COMMAND")
	overrideString(&cfg.Synthesis.ModelID, "LOQA_SYNTHESIS_MODEL_ID")
	overrideString(&cfg.Synthesis.Voice.Mode, "LOQA_SYNTHESIS_VOICE_MODE")
	overrideString(&cfg.Synthesis.Voice.ID, "LOQA_SYNTHESIS_VOICE_ID")
	overrideString(&cfg.Synthesis.Container, "LOQA_SYNTHESIS_CONTAINER")
	overrideString(&cfg.Synthesis.Encoding, "LOQA_SYNTHESIS_ENCODING")
	overrideInt(&cfg.Synthesis.SampleRate, "LOQA_SYNTHESIS_SAMPLE_RATE")
	overrideString(&cfg.Synthesis.Language, "LOQA_SYNTHESIS_LANGUAGE")
	overrideInt(&cfg.Synthesis.MinWords, "LOQA_SYNTHESIS_MIN_WORDS")
	overrideInt(&cfg.Synthesis.ConnectTimeoutMS, "LOQA_SYNTHESIS_CONNECT_TIMEOUT_MS")
	overrideBool(&cfg.Service.Enabled, "LOQA_SERVICE_ENABLED")
	overrideString(&cfg.Service.Codec, "LOQA_SERVICE_CODEC")
	overrideInt(&cfg.Service.ReadSize, "LOQA_SERVICE_READ_SIZE")
	overrideInt(&cfg.Service.IdleTimeoutMS, "LOQA_SERVICE_IDLE_TIMEOUT_MS")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.RuntimeName == "" {
		return errors.New("runtime_name must not be empty")
	}
	if cfg.HTTP.Port <= 0 || cfg.HTTP.Port > 65535 {
		return errors.New("http.port must be between 1 and 65535")
	}
	if cfg.Bus.Embedded {
		if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
			return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
		}
	} else {
		if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	if cfg.EventStore.Path == "" {
		return errors.New("event_store.path must not be empty")
	}
	switch cfg.EventStore.RetentionMode {
	case "ephemeral", "session", "persistent":
		// ok
	default:
		return errors.New("event_store.retention_mode must be one of ephemeral|session|persistent")
	}
	if cfg.EventStore.RetentionDays < 0 {
		return errors.New("event_store.retention_days must be >= 0")
	}
	if cfg.Telemetry.PrometheusBind == "" {
		return errors.New("telemetry.prometheus_bind must not be empty")
	}
	if err := ValidateSynthesis(cfg.Synthesis); err != nil {
		return err
	}
	if cfg.Service.Enabled {
		switch cfg.Service.Codec {
		case "json", "msgpack":
		default:
			return errors.New("service.codec must be one of json|msgpack")
		}
		if cfg.Service.ReadSize <= 0 {
			return errors.New("service.read_size must be positive")
		}
		if cfg.Service.IdleTimeoutMS < 0 {
			return errors.New("service.idle_timeout_ms must be >= 0")
		}
	}
	return nil
}

// ValidateSynthesis checks the synthesis section on its own; the CLI uses it
// without the rest of the runtime configuration.
func ValidateSynthesis(cfg SynthesisConfig) error {
	switch cfg.Mode {
	case "cartesia", "exec", "mock":
	default:
		return errors.New("synthesis.mode must be one of cartesia|exec|mock")
	}
	if cfg.Mode == "cartesia" && cfg.URL == "" {
		return errors.New("synthesis.url must be set when mode=cartesia")
	}
	if cfg.Mode == "exec" && cfg.Command == "" {
		return errors.New("synthesis.command must be set when mode=exec")
	}
	if cfg.ModelID == "" {
		return errors.New("synthesis.model_id must not be empty")
	}
	if cfg.Voice.Mode == "" || cfg.Voice.ID == "" {
		return errors.New("synthesis.voice.mode and synthesis.voice.id must be set")
	}
	if cfg.Container == "" || cfg.Encoding == "" {
		return errors.New("synthesis.container and synthesis.encoding must be set")
	}
	if cfg.SampleRate <= 0 {
		return errors.New("synthesis.sample_rate must be positive")
	}
	if cfg.MinWords < 0 {
		return errors.New("synthesis.min_words must be >= 0")
	}
	return nil
}
