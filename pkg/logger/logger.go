// Package logger configures the structured JSON logger every service writes to.
package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus entry that already carries the service field.
type Logger struct {
	*logrus.Entry
}

// New creates a JSON logger for serviceName. The level comes from LOG_LEVEL.
func New(serviceName string) *Logger {
	return NewWithOutput(serviceName, os.Stdout)
}

func NewWithOutput(serviceName string, out io.Writer) *Logger {
	log := logrus.New()

	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(out)
	log.SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))

	return &Logger{Entry: log.WithField("service", serviceName)}
}

// ParseLevel maps LOG_LEVEL values to logrus levels, defaulting to info.
func ParseLevel(level string) logrus.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func (l *Logger) WithTraceID(traceID string) *logrus.Entry {
	if traceID == "" {
		return l.Entry
	}
	return l.WithField("trace_id", traceID)
}

func (l *Logger) WithUserID(userID int64) *logrus.Entry {
	return l.WithField("user_id", userID)
}

// Nop returns a logger that discards everything, for tests.
func Nop() *Logger {
	return NewWithOutput("test", io.Discard)
}
