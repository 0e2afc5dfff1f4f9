package log

import (
	"os"

	"arbbot/internal/config"

	"github.com/rs/zerolog"
)

type Logger = zerolog.Logger

// NewLogger builds the process-wide root logger. Every component derives its
// own child via With() so log lines always carry a component field.
func NewLogger(cfg config.Config) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	l := zerolog.New(os.Stderr).With().Timestamp().Str("service", "arbbot").Logger()
	if cfg.Logging.Pretty {
		l = l.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	return l
}
