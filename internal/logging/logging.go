// Package logging sets up ftr's loggers on top of charmbracelet/log.
//
// Everything goes to stderr; stdout carries command output and, for
// `ftr simulate`, the event stream itself.
//
//	logging.Setup(verbose, quiet, jsonFormat) // once, from the root command
//	logger := logging.New("reporter")
//	logger.Debug("item started", "name", name)
//
// Setup must run before New: child loggers copy the default logger's level
// and formatter when they are created.
package logging

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
)

const (
	LevelDebug = log.DebugLevel
	LevelInfo  = log.InfoLevel
	LevelWarn  = log.WarnLevel
	LevelError = log.ErrorLevel
)

// Setup configures the default logger. quiet wins over verbose.
func Setup(verbose, quiet, jsonFormat bool) {
	level := log.InfoLevel
	if verbose {
		level = log.DebugLevel
	}
	if quiet {
		level = log.ErrorLevel
	}

	log.SetLevel(level)
	log.SetOutput(os.Stderr)

	if jsonFormat {
		log.SetFormatter(log.JSONFormatter)
	} else {
		log.SetFormatter(log.TextFormatter)
	}
}

// New returns a logger prefixed with component.
func New(component string) *log.Logger {
	return log.WithPrefix(component)
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// SetOutput redirects the default logger, mostly for tests.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}
