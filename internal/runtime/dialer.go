package runtime

import (
	"fmt"
	"log/slog"

	"github.com/loqalabs/loqa-tts/internal/cartesia"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/tts"
)

// NewDialer picks the synthesis backend named by cfg.Mode.
func NewDialer(cfg config.SynthesisConfig, log *slog.Logger) (tts.Dialer, error) {
	switch cfg.Mode {
	case "cartesia":
		return cartesia.NewDialer(cfg, log)
	case "exec":
		return tts.NewExecDialer(cfg.Command, log)
	case "mock":
		return tts.NewMockDialer(0), nil
	default:
		return nil, fmt.Errorf("%w: unsupported synthesis mode %q", tts.ErrConfiguration, cfg.Mode)
	}
}
