// Package log provides structured logging with run context.
//
// Two logger variants are available:
//   - Logger: Non-sugared zap.Logger for the harness and storage paths (structured fields)
//   - SugaredLogger: Printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/pithecene-io/ordo/types"
)

// Logger provides structured logging with run context.
// Every entry carries run_id and project; strategy loggers add strategy.
type Logger struct {
	zap    *zap.Logger
	fields []zap.Field
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a new logger with run context.
// Output defaults to os.Stderr.
func NewLogger(runMeta *types.RunMeta) *Logger {
	return newLoggerWithWriter(runMeta, os.Stderr)
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func newCore(w io.Writer) zapcore.Core {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
}

// WithOutput returns a new logger with a different output writer.
// Context fields already attached are kept.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return build(w, l.fields)
}

// With returns a logger scoped to one strategy.
func (l *Logger) With(strategy string) *Logger {
	fields := append(append([]zap.Field(nil), l.fields...), zap.String("strategy", strategy))
	return &Logger{zap: l.zap.With(fields[len(fields)-1]), fields: fields}
}

func build(w io.Writer, fields []zap.Field) *Logger {
	return &Logger{zap: zap.New(newCore(w)).With(fields...), fields: fields}
}

func newLoggerWithWriter(runMeta *types.RunMeta, w io.Writer) *Logger {
	contextFields := []zap.Field{
		zap.String("run_id", runMeta.RunID),
	}
	if runMeta.Project != "" {
		contextFields = append(contextFields, zap.String("project", runMeta.Project))
	}
	return build(w, contextFields)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Debugf logs a debug message with printf-style formatting.
func (s *SugaredLogger) Debugf(template string, args ...any) {
	s.sugar.Debugf(template, args...)
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}

// With returns a SugaredLogger with additional context fields.
func (s *SugaredLogger) With(args ...any) *SugaredLogger {
	return &SugaredLogger{sugar: s.sugar.With(args...)}
}
