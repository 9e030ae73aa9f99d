// Package log builds the process logger. Components receive a
// logrus.FieldLogger and never construct their own.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configures New.
type Options struct {
	// Env selects the formatter: "prod" logs JSON, anything else text.
	Env string
	// Level is a logrus level name. Empty means info in prod, debug otherwise.
	Level string
	// Verbose forces debug regardless of Level.
	Verbose bool
	// Out defaults to stderr.
	Out io.Writer
}

// New returns a logger with the redaction hook installed.
func New(opts Options) (*logrus.Logger, error) {
	l := logrus.New()
	l.Out = opts.Out
	if l.Out == nil {
		l.Out = os.Stderr
	}

	if opts.Env == "prod" {
		l.Formatter = &logrus.JSONFormatter{}
		l.Level = logrus.InfoLevel
	} else {
		l.Formatter = &logrus.TextFormatter{FullTimestamp: true}
		l.Level = logrus.DebugLevel
	}

	if lvl := strings.TrimSpace(opts.Level); lvl != "" {
		parsed, err := logrus.ParseLevel(lvl)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		l.Level = parsed
	}
	if opts.Verbose {
		l.Level = logrus.DebugLevel
	}

	l.AddHook(RedactHook{})
	return l, nil
}

// Discard returns a logger that writes nowhere, for tests and library
// callers that do not care.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.Out = io.Discard
	return l
}
