package internal

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents different logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// ParseLogLevel maps ERROR|WARN|INFO|DEBUG|TRACE to a level; unknown values
// fall back to INFO
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LogLevelError
	case "WARN":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

// Sink collects the user-facing messages of one run. It is created per run,
// drained by whoever reports on the run, and dropped with it.
type Sink struct {
	mu       sync.Mutex
	messages []string
}

// NewSink creates an empty sink
func NewSink() *Sink {
	return &Sink{}
}

// Append records a message
func (s *Sink) Append(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages = append(s.messages, msg)
}

// Collect returns and clears the buffered messages
func (s *Sink) Collect() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.messages
	s.messages = nil
	if out == nil {
		out = []string{}
	}
	return out
}

// Len returns the number of buffered messages
func (s *Sink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// Logger provides leveled logging
type Logger struct {
	level LogLevel
	zl    *zap.SugaredLogger
	sink  *Sink
}

// NewLogger creates a new logger with the specified level
func NewLogger(level LogLevel) *Logger {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel(level))
	cfg.Sampling = nil
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	zl, err := cfg.Build()
	if err != nil {
		zl = zap.NewNop()
	}
	return &Logger{level: level, zl: zl.Sugar()}
}

// NewNopLogger discards output; sink capture still works
func NewNopLogger() *Logger {
	return &Logger{level: LogLevelTrace, zl: zap.NewNop().Sugar()}
}

// NewLoggerWithCore builds a logger on an existing zap core, mostly for tests
func NewLoggerWithCore(level LogLevel, core zapcore.Core) *Logger {
	return &Logger{level: level, zl: zap.New(core).Sugar()}
}

// NewDefaultLogger creates a logger based on LOG_LEVEL environment variable
func NewDefaultLogger() *Logger {
	return NewLogger(ParseLogLevel(os.Getenv("LOG_LEVEL")))
}

func zapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LogLevelError:
		return zapcore.ErrorLevel
	case LogLevelWarn:
		return zapcore.WarnLevel
	case LogLevelInfo:
		return zapcore.InfoLevel
	default:
		// zap has no trace level; trace lines are written at debug
		return zapcore.DebugLevel
	}
}

// Named returns a logger tagged with a component name
func (l *Logger) Named(component string) *Logger {
	return &Logger{level: l.level, zl: l.zl.Named(component), sink: l.sink}
}

// WithSink returns a logger that also records Info, Warn and Error
// messages into s
func (l *Logger) WithSink(s *Sink) *Logger {
	return &Logger{level: l.level, zl: l.zl, sink: s}
}

// Sync flushes buffered output
func (l *Logger) Sync() {
	_ = l.zl.Sync()
}

func (l *Logger) capture(format string, args []interface{}) {
	if l.sink != nil {
		l.sink.Append(fmt.Sprintf(format, args...))
	}
}

// Error logs error messages
func (l *Logger) Error(format string, args ...interface{}) {
	if l.level >= LogLevelError {
		l.zl.Errorf(format, args...)
		l.capture(format, args)
	}
}

// Warn logs warning messages
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.level >= LogLevelWarn {
		l.zl.Warnf(format, args...)
		l.capture(format, args)
	}
}

// Info logs info messages
func (l *Logger) Info(format string, args ...interface{}) {
	if l.level >= LogLevelInfo {
		l.zl.Infof(format, args...)
		l.capture(format, args)
	}
}

// Debug logs debug messages
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.level >= LogLevelDebug {
		l.zl.Debugf(format, args...)
	}
}

// Trace logs trace messages
func (l *Logger) Trace(format string, args ...interface{}) {
	if l.level >= LogLevelTrace {
		l.zl.Debugf("[TRACE] "+format, args...)
	}
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() LogLevel {
	return l.level
}
