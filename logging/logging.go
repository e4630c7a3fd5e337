// Package logging builds the logrus logger shared by the pipeline.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

type Options struct {
	Level  string
	Format string // text|json, empty picks text on a terminal and json otherwise
	Output io.Writer
}

func New(opts Options) (*logrus.Logger, error) {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)

	switch format := strings.ToLower(strings.TrimSpace(opts.Format)); format {
	case "":
		if isTerminal(out) {
			l.SetFormatter(textFormatter())
		} else {
			l.SetFormatter(&logrus.JSONFormatter{})
		}
	case "text", "console":
		l.SetFormatter(textFormatter())
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, fmt.Errorf("log format: unsupported value %q", opts.Format)
	}
	return l, nil
}

func ParseLevel(level string) (logrus.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return logrus.InfoLevel, nil
	case "dpanic", "panic", "fatal":
		return logrus.ErrorLevel, nil
	}
	l, err := logrus.ParseLevel(level)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log level: %w", err)
	}
	return l, nil
}

func textFormatter() *logrus.TextFormatter {
	return &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "2006-01-02 15:04:05"}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
