package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"

	"github.com/rs/zerolog"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var current atomic.Pointer[zerolog.Logger]

func init() {
	l := newLogger(os.Stdout, "text").Level(zerolog.InfoLevel)
	current.Store(&l)
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// ParseLevel converts a level name (case-insensitive) into a Level.
// Unknown names map to LevelInfo.
func ParseLevel(level string) Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return LevelDebug
	case "WARN":
		return LevelWarn
	case "ERROR":
		return LevelError
	default:
		return LevelInfo
	}
}

func newLogger(w io.Writer, format string) zerolog.Logger {
	if format == "json" {
		return zerolog.New(w).With().Timestamp().Logger()
	}
	console := zerolog.ConsoleWriter{
		Out:        w,
		NoColor:    true,
		TimeFormat: "2006-01-02 15:04:05",
	}
	return zerolog.New(console).With().Timestamp().Logger()
}

// SetLevel changes the minimum level of the active logger.
func SetLevel(level string) {
	l := current.Load().Level(ParseLevel(level).zerolog())
	current.Store(&l)
}

// Configure replaces the active logger.
//
// Parameters:
//   - level: DEBUG, INFO, WARN or ERROR
//   - format: "text" (console lines) or "json"
//   - output: "stdout", "stderr" or a file path opened in append mode
func Configure(level, format, output string) error {
	var w io.Writer
	switch strings.ToLower(output) {
	case "", "stdout":
		w = os.Stdout
	case "stderr":
		w = os.Stderr
	default:
		f, err := os.OpenFile(output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open log output %s: %w", output, err)
		}
		w = f
	}

	l := newLogger(w, strings.ToLower(format)).Level(ParseLevel(level).zerolog())
	current.Store(&l)
	return nil
}

// SetOutput redirects the active logger, keeping its level. Used by tests.
func SetOutput(w io.Writer, format string) {
	prev := current.Load()
	l := newLogger(w, format).Level(prev.GetLevel())
	current.Store(&l)
}

func log(level Level, format string, v ...any) {
	l := current.Load()
	l.WithLevel(level.zerolog()).Msgf(format, v...)
}

func Debug(format string, v ...any) {
	log(LevelDebug, format, v...)
}

func Info(format string, v ...any) {
	log(LevelInfo, format, v...)
}

func Warn(format string, v ...any) {
	log(LevelWarn, format, v...)
}

func Error(format string, v ...any) {
	log(LevelError, format, v...)
}
