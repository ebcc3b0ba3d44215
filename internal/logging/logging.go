package logging

import (
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

var base = logrus.StandardLogger()

// Options control the process-wide logger.
type Options struct {
	Level  string // panic, fatal, error, warn, info, debug, trace
	JSON   bool
	Output io.Writer
}

// Configure applies opts to the shared logger.
func Configure(opts Options) error {
	if opts.Level != "" {
		lvl, err := logrus.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return err
		}
		base.SetLevel(lvl)
	}
	if opts.JSON {
		base.SetFormatter(&logrus.JSONFormatter{})
	} else {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if opts.Output != nil {
		base.SetOutput(opts.Output)
	}
	return nil
}

// Logger returns the shared logger.
func Logger() *logrus.Logger { return base }

// For returns an entry tagged with the component name.
func For(component string) *logrus.Entry {
	return base.WithField("component", component)
}

// Or returns l when non-nil, otherwise the shared entry for component.
func Or(l *logrus.Entry, component string) *logrus.Entry {
	if l != nil {
		return l
	}
	return For(component)
}

// OperationFields builds the standard fields for an operation outcome.
func OperationFields(operation, status string, extra ...logrus.Fields) logrus.Fields {
	fields := logrus.Fields{
		"operation": operation,
		"status":    status,
	}
	for _, e := range extra {
		for k, v := range e {
			fields[k] = v
		}
	}
	return fields
}

// SizeFields records the length of a sensitive value under name without
// exposing any of its bytes.
func SizeFields(name string, data []byte) logrus.Fields {
	return logrus.Fields{name + "_size": len(data)}
}
