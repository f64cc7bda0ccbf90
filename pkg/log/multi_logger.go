package log

import (
	"io"

	"go.uber.org/multierr"
)

// MultiLogger fans each event out to several loggers in order, typically a
// FileLogger for the capture and a SlogAdapter for the console.
type MultiLogger struct {
	loggers []Logger
}

// NewMultiLogger returns a MultiLogger over loggers. Nil entries and
// NoopLoggers are dropped.
func NewMultiLogger(loggers ...Logger) *MultiLogger {
	m := &MultiLogger{}
	for _, l := range loggers {
		switch l.(type) {
		case nil, NoopLogger, *NoopLogger:
			continue
		}
		m.loggers = append(m.loggers, l)
	}
	return m
}

// Len returns the number of loggers events are delivered to.
func (m *MultiLogger) Len() int {
	return len(m.loggers)
}

// Log delivers event to every logger.
func (m *MultiLogger) Log(event Event) {
	for _, l := range m.loggers {
		l.Log(event)
	}
}

// Close closes every logger that implements io.Closer. All loggers are
// closed even if one fails; the errors are combined.
func (m *MultiLogger) Close() error {
	var err error
	for _, l := range m.loggers {
		if c, ok := l.(io.Closer); ok {
			err = multierr.Append(err, c.Close())
		}
	}
	return err
}

var (
	_ Logger    = (*MultiLogger)(nil)
	_ io.Closer = (*MultiLogger)(nil)
)
