package logger

import (
	"log"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapWriter is an io.Writer that forwards each line to a zap logger.
type ZapWriter struct {
	logger *zap.Logger
	level  zapcore.Level
	source string
}

func NewZapWriter(logger *zap.Logger, level zapcore.Level, source string) *ZapWriter {
	return &ZapWriter{logger: logger.WithOptions(zap.AddCallerSkip(2)), level: level, source: source}
}

func (w *ZapWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	var fields []zap.Field
	if w.source != "" {
		fields = append(fields, zap.String("source", w.source))
	}
	if ce := w.logger.Check(w.level, msg); ce != nil {
		ce.Write(fields...)
	}
	return len(p), nil
}

// StdLogger returns a *log.Logger for APIs such as http.Server.ErrorLog.
func StdLogger(logger *zap.Logger, level zapcore.Level, source string) *log.Logger {
	return log.New(NewZapWriter(logger, level, source), "", 0)
}
