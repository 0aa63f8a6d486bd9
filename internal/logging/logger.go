package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/shamimkhan539/PressBox-sub006/internal/config"
)

// NewLogger creates the root structured logger. Components derive child
// loggers from it with `.With().Str("component", ...)`.
func NewLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
