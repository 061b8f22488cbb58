package utils

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger creates a new configured logger
func NewLogger(level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		logLevel = zerolog.InfoLevel
	}

	return zerolog.New(os.Stdout).
		Level(logLevel).
		With().
		Timestamp().
		Logger()
}
