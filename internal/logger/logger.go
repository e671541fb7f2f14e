package logger

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// output is shared by every logger derived from Logger, including component
	// loggers created before Initialize, so they follow its writer changes.
	output = &switchWriter{w: os.Stderr}

	// Global logger instance. Writes to stderr until Initialize configures the console writer.
	Logger = zerolog.New(output).With().Timestamp().Logger()
)

// switchWriter forwards to a writer that Initialize can replace at runtime.
type switchWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *switchWriter) set(w io.Writer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w = w
}

func (s *switchWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *switchWriter) WriteLevel(level zerolog.Level, p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if lw, ok := s.w.(zerolog.LevelWriter); ok {
		return lw.WriteLevel(level, p)
	}
	return s.w.Write(p)
}

// Initialize sets up the global logger with appropriate configuration.
// Every extra writer receives the same events as JSON, in addition to the console.
func Initialize(logLevel string, extra ...io.Writer) {
	// Set time format to be more human-readable
	zerolog.TimeFieldFormat = time.RFC3339

	consoleWriter := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    false,
	}

	var w io.Writer = consoleWriter
	if len(extra) > 0 {
		w = zerolog.MultiLevelWriter(append([]io.Writer{consoleWriter}, extra...)...)
	}
	output.set(w)

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(logLevel))

	// Replace standard log with zerolog
	log.Logger = Logger
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(logLevel string) zerolog.Level {
	switch logLevel {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// GetForComponent returns a logger with a component field for better filtering.
// It is safe to call before Initialize: the writer is resolved on every event.
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter opens path for appending, for use as an extra writer in Initialize.
func FileWriter(path string) (io.WriteCloser, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
}
