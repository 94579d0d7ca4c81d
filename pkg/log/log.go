// Package log provides structured logging for the storage substrate using
// zerolog, mirroring the JSON-structured, component-scoped logging the
// rest of the fleet uses.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger
func Init(cfg Config) {
	// Set log level
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &Logger
}

// WithComponent creates a child logger scoped to a component name, e.g.
// "blobstore", "indexedlog", "segmented".
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithRepoID creates a child logger scoped to a repo id.
func WithRepoID(repoID int32) zerolog.Logger {
	return Logger.With().Int32("repo_id", repoID).Logger()
}

// WithVertex creates a child logger scoped to a commit-graph vertex,
// typically a hex-encoded bonsai changeset id.
func WithVertex(vertex string) zerolog.Logger {
	return Logger.With().Str("vertex", vertex).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}

func init() {
	// Sensible default so packages that log before Init is called (tests,
	// library consumers embedding this module) still get readable output.
	Init(Config{Level: InfoLevel, JSONOutput: false, Output: os.Stderr})
}
