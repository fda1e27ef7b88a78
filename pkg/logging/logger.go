// Package logging configures the structured loggers handed to the parser,
// compiler and layer builders. Components receive a *slog.Logger explicitly;
// there is no package-level logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// Level is the minimum severity that is written.
type Level int

const (
	// LevelDebug traces individual changes and matches.
	LevelDebug Level = iota
	// LevelInfo reports progress: documents parsed, notices compiled.
	LevelInfo
	// LevelWarn reports recoverable anomalies in source data, such as
	// conflicting changes or unresolvable citation ranges.
	LevelWarn
	// LevelError reports failures the pipeline works around, such as a
	// synthesised placeholder for a missing parent.
	LevelError
)

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

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel converts a level name ("debug", "info", "warn", "error").
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// Config controls logger construction.
type Config struct {
	Level Level
	// JSON forces JSON output. When false, JSON is still used if Output is
	// not a terminal and ForceText is unset.
	JSON      bool
	ForceText bool
	// Output defaults to os.Stderr.
	Output io.Writer
	// Service is attached to every record when non-empty.
	Service string
}

// New builds a logger from config.
func New(config Config) *slog.Logger {
	output := config.Output
	if output == nil {
		output = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}

	var handler slog.Handler
	if config.JSON || (!config.ForceText && !isTerminal(output)) {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}
	return slog.New(handler)
}

// Default is an info-level logger on stderr.
func Default() *slog.Logger {
	return New(Config{Level: LevelInfo, Service: "regparser"})
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

func isTerminal(output io.Writer) bool {
	file, ok := output.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(file.Fd()) || isatty.IsCygwinTerminal(file.Fd())
}
