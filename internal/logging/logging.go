// Package logging configures apex/log for the treewalk binaries.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/apex/log"
	"github.com/apex/log/handlers/cli"
	"github.com/apex/log/handlers/discard"
	"github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
)

// Formats accepted by New.
const (
	FormatText    = "text"
	FormatJSON    = "json"
	FormatCLI     = "cli"
	FormatDiscard = "discard"
)

// New builds a logger writing to w (stderr when nil) in the given format and level.
func New(level, format string, w io.Writer) (*log.Logger, error) {
	if w == nil {
		w = os.Stderr
	}
	lvl := log.InfoLevel
	if strings.TrimSpace(level) != "" {
		parsed, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		lvl = parsed
	}
	var handler log.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", FormatText:
		handler = text.New(w)
	case FormatJSON:
		handler = json.New(w)
	case FormatCLI:
		handler = cli.New(w)
	case FormatDiscard:
		handler = discard.New()
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
	return &log.Logger{Handler: handler, Level: lvl}, nil
}

// Setup builds a logger like New and installs it as the package-level apex logger.
func Setup(level, format string, w io.Writer) (*log.Logger, error) {
	logger, err := New(level, format, w)
	if err != nil {
		return nil, err
	}
	log.Log = logger
	return logger, nil
}

// Discard returns a logger that drops every entry.
func Discard() log.Interface {
	return &log.Logger{Handler: discard.New(), Level: log.FatalLevel}
}

// OrDefault returns l, or the package-level apex logger when l is nil.
func OrDefault(l log.Interface) log.Interface {
	if l == nil {
		return log.Log
	}
	return l
}
