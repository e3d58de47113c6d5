package util

import (
	"context"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

type contextKey string

// RequestIDKey carries the request id of a logical call in a context
const RequestIDKey contextKey = "requestID"

// WithRequestID returns a context whose log entries carry requestID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// InitLog parses and sets log-level input. A logPath other than "" or "console" enables file output with rotation.
func InitLog(logLevel string, logPath string) error {
	level, err := log.ParseLevel(logLevel)
	if err != nil {
		log.Errorf("Failed parsing log-level %s: %s", logLevel, err)
		return err
	}

	var output io.Writer = os.Stderr
	if logPath != "" && logPath != "console" {
		output = &lumberjack.Logger{
			// Log file absolute path, os agnostic
			Filename:   filepath.ToSlash(logPath),
			MaxSize:    5, // MB
			MaxBackups: 10,
			MaxAge:     30, // days
			Compress:   true,
		}
	}

	log.SetOutput(output)
	log.SetFormatter(&CustomFormatter{})
	log.SetLevel(level)
	return nil
}

// CustomFormatter adds the request id of the entry context to the fields
type CustomFormatter struct {
	log.TextFormatter
}

func (f *CustomFormatter) Format(entry *log.Entry) ([]byte, error) {
	if entry.Context == nil {
		return f.TextFormatter.Format(entry)
	}

	if reqID, ok := entry.Context.Value(RequestIDKey).(string); ok {
		entry.Data["request_id"] = reqID
	}
	return f.TextFormatter.Format(entry)
}
