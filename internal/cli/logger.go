package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/ovoronkov/reelcut/internal/config"
)

// setup loads config with the shared overrides and builds the root logger.
func setup(over config.Overrides) (*config.Config, zerolog.Logger, error) {
	cfg, err := config.Load(over)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("config: %w", err)
	}
	return cfg, newLogger(cfg.LogLevel), nil
}

// newLogger writes human-readable logs when stderr is a terminal and JSON
// otherwise. Logs go to stderr so table output on stdout stays pipeable.
func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var out io.Writer = os.Stderr
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	}
	return zerolog.New(out).With().Timestamp().Logger().Level(lvl)
}
