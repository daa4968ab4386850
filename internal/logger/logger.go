package logger

import (
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// sink lets component loggers created at package init follow Initialize.
var sink = &swapWriter{w: zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02 15:04:05"}}

var (
	// Global logger instance
	Logger = zerolog.New(sink).
		With().
		Timestamp().
		Logger()
)

type swapWriter struct {
	mu sync.RWMutex
	w  io.Writer
}

func (s *swapWriter) Write(p []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.w.Write(p)
}

func (s *swapWriter) set(w io.Writer) {
	s.mu.Lock()
	s.w = w
	s.mu.Unlock()
}

// Options controls logger output.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // console or json
	File   string // optional path, tee'd alongside stdout
}

// Initialize sets up the global logger with appropriate configuration.
// It returns a closer for the optional log file.
func Initialize(opts Options) (io.Closer, error) {
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: "2006-01-02 15:04:05",
	}
	if strings.EqualFold(opts.Format, "json") {
		output = os.Stdout
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		file, err := FileWriter(opts.File)
		if err != nil {
			return nil, err
		}
		output = zerolog.MultiLevelWriter(output, file)
		closer = file
	}

	sink.set(output)
	Logger = zerolog.New(sink).
		With().
		Timestamp().
		Caller().
		Logger()

	zerolog.SetGlobalLevel(ParseLevel(opts.Level))

	// Replace standard log with zerolog
	log.Logger = Logger
	return closer, nil
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// GetForComponent returns a logger with a component field for better filtering
func GetForComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// FileWriter opens a log file in append mode.
func FileWriter(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
