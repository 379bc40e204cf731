package logger

import (
	"convmem/src/model"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger is silent until InitLogger runs, so library callers and tests stay quiet.
var Logger = zerolog.Nop()

// InitLogger initializes the global logger with the provided configuration
func InitLogger(config model.LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(config.Level))
	if err != nil {
		return fmt.Errorf("invalid log level '%s': %w", config.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	switch strings.ToLower(config.TimeFormat) {
	case "unix":
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	case "iso8601":
		zerolog.TimeFieldFormat = "2006-01-02T15:04:05.000Z07:00"
	default:
		zerolog.TimeFieldFormat = time.RFC3339
	}

	output, err := openOutput(config)
	if err != nil {
		return err
	}

	if strings.ToLower(config.Format) == "console" {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	Logger = zerolog.New(output).With().
		Timestamp().
		Caller().
		Logger()

	// Also set the global zerolog logger for compatibility
	log.Logger = Logger

	Logger.Info().
		Str("level", config.Level).
		Str("format", config.Format).
		Str("output", config.Output).
		Msg("Logger initialized successfully")

	return nil
}

func openOutput(config model.LogConfig) (io.Writer, error) {
	switch strings.ToLower(config.Output) {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if err := os.MkdirAll(filepath.Dir(config.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create logs directory: %w", err)
		}
		file, err := os.OpenFile(config.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file '%s': %w", config.FilePath, err)
		}
		return file, nil
	default:
		return os.Stdout, nil
	}
}

// SetOutput replaces the logger writer. Used by tests that assert on log lines.
func SetOutput(w io.Writer) {
	Logger = zerolog.New(w).With().Timestamp().Logger()
}

// GetLogger returns the configured logger instance
func GetLogger() *zerolog.Logger {
	return &Logger
}

// Component returns a child logger tagged with the component name.
func Component(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}

// Convenience methods for common logging patterns
func Info() *zerolog.Event {
	return Logger.Info()
}

func Debug() *zerolog.Event {
	return Logger.Debug()
}

func Warn() *zerolog.Event {
	return Logger.Warn()
}

func Error() *zerolog.Event {
	return Logger.Error()
}

func Fatal() *zerolog.Event {
	return Logger.Fatal()
}
