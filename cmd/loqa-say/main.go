// Command loqa-say streams text to the synthesis backend and writes the
// audio to a file or stdout.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/loqalabs/loqa-tts/internal/audiofile"
	"github.com/loqalabs/loqa-tts/internal/config"
	"github.com/loqalabs/loqa-tts/internal/runtime"
	"github.com/loqalabs/loqa-tts/internal/tts"
	"golang.org/x/time/rate"
)

func main() {
	var (
		configPath     string
		text           string
		input          string
		output         string
		mode           string
		wordsPerSecond float64
		verbose        bool
	)
	flag.StringVar(&configPath, "config", "", "Optional configuration file")
	flag.StringVar(&text, "text", "", "Text to speak; overrides -in")
	flag.StringVar(&input, "in", "-", "Text file to speak, - for stdin")
	flag.StringVar(&output, "out", "-", "Output file, - for stdout; a .wav suffix writes a WAV file")
	flag.StringVar(&mode, "mode", "", "Synthesis mode override (cartesia, exec, mock)")
	flag.Float64Var(&wordsPerSecond, "wps", 0, "Feed at most this many words per second, 0 for no limit")
	flag.BoolVar(&verbose, "v", false, "Verbose logging")
	flag.Parse()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Warn("failed to load .env", slog.String("error", err.Error()))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, logger, configPath, mode, text, input, output, wordsPerSecond); err != nil {
		logger.Error("synthesis failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, configPath, mode, text, input, output string, wordsPerSecond float64) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if mode != "" {
		cfg.Synthesis.Mode = mode
		if err := config.ValidateSynthesis(cfg.Synthesis); err != nil {
			return err
		}
	}

	dial, err := runtime.NewDialer(cfg.Synthesis, logger)
	if err != nil {
		return err
	}
	gen, err := tts.NewGenerator(dial,
		tts.WithLogger(logger),
		tts.WithMinWords(cfg.Synthesis.MinWords),
		tts.WithSynthesisOptions(tts.OptionsFromConfig(cfg.Synthesis)),
	)
	if err != nil {
		return err
	}
	defer gen.Stop()

	var src tts.TextSource
	switch {
	case text != "":
		src = tts.TextFromStrings(text)
	case input == "-":
		src = tts.TextFromReader(os.Stdin, 1024)
	default:
		f, err := os.Open(input)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		src = tts.TextFromReader(f, 1024)
	}
	if wordsPerSecond > 0 {
		src = paced(ctx, src, rate.NewLimiter(rate.Limit(wordsPerSecond), 1))
	}

	stream := gen.Generate(ctx, src)
	defer stream.Close()

	if output == "-" {
		if _, err := io.Copy(os.Stdout, stream); err != nil {
			return err
		}
		return nil
	}

	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(output), ".wav") {
		pcm, err := io.ReadAll(stream)
		if err != nil {
			return err
		}
		if err := audiofile.WriteWAV(f, pcm, cfg.Synthesis.Encoding, cfg.Synthesis.SampleRate); err != nil {
			return err
		}
	} else if _, err := io.Copy(f, stream); err != nil {
		return err
	}
	logger.Info("audio written", slog.String("path", output), slog.String("context_id", stream.ID()))
	return f.Close()
}

// paced re-emits src one word at a time, waiting on limiter before each.
func paced(ctx context.Context, src tts.TextSource, limiter *rate.Limiter) tts.TextSource {
	return func(yield func(string, error) bool) {
		for fragment, err := range src {
			if err != nil {
				yield("", err)
				return
			}
			for _, word := range strings.SplitAfter(fragment, " ") {
				if word == "" {
					continue
				}
				if err := limiter.Wait(ctx); err != nil {
					yield("", err)
					return
				}
				if !yield(word, nil) {
					return
				}
			}
		}
	}
}
