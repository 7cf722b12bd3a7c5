// Package logger provides a configurable logger shared across raito components.
//
// The root logger uses github.com/rs/zerolog with a console writer on stderr.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

var logger zerolog.Logger

func init() {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	logger = zerolog.New(output).With().Timestamp().Logger()

	if strings.HasSuffix(os.Args[0], ".test") {
		logger = zerolog.Nop()
	}
}

// SetOutput changes the output of the global logger
func SetOutput(w io.Writer) {
	logger = logger.Output(w)
}

// SetLevel sets the global minimum level from its string name. Unknown names
// leave the level unchanged.
func SetLevel(level string) {
	if lvl, err := zerolog.ParseLevel(strings.ToLower(level)); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
}

// Disable disables logging
func Disable() {
	logger = zerolog.Nop()
}

// Logger returns the root logger
func Logger() zerolog.Logger {
	return logger
}

// With returns a sublogger tagged with the given component name
func With(component string) zerolog.Logger {
	return logger.With().Str("component", component).Logger()
}
