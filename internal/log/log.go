// Package log provides structured logging for lockit.
// Logging is off by default (null logger). The CLI switches it on with
// --verbose or --log-file. Passphrases and key material must never be passed
// as field values.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level represents the logging level.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a case-insensitive level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// Field is a key-value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Int64(key string, value int64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

// Err creates an "error" field. A nil error yields a nil value.
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

// Path creates a "path" field.
func Path(p string) Field {
	return Field{Key: "path", Value: p}
}

// Mode creates a "mode" field from anything with a String method.
func Mode(m fmt.Stringer) Field {
	return Field{Key: "mode", Value: m.String()}
}

// Logger is the interface for structured logging.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type nullLogger struct{}

func (n *nullLogger) Debug(msg string, fields ...Field) {}
func (n *nullLogger) Info(msg string, fields ...Field)  {}
func (n *nullLogger) Warn(msg string, fields ...Field)  {}
func (n *nullLogger) Error(msg string, fields ...Field) {}
func (n *nullLogger) With(fields ...Field) Logger       { return n }

// textLogger writes logfmt-style lines to an io.Writer. Children created by
// With share the parent's writer and mutex.
type textLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  Level
	fields []Field
}

// NewTextLogger creates a logger writing lines at or above level to out.
func NewTextLogger(out io.Writer, level Level) Logger {
	return &textLogger{mu: &sync.Mutex{}, out: out, level: level}
}

func (s *textLogger) log(level Level, msg string, fields []Field) {
	if level < s.level {
		return
	}

	var b strings.Builder
	b.WriteString(time.Now().Format("2006-01-02 15:04:05.000"))
	b.WriteByte(' ')
	b.WriteString(level.String())
	b.WriteByte(' ')
	b.WriteString(msg)
	for _, f := range s.fields {
		writeField(&b, f)
	}
	for _, f := range fields {
		writeField(&b, f)
	}
	b.WriteByte('\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = io.WriteString(s.out, b.String())
}

func writeField(b *strings.Builder, f Field) {
	v := fmt.Sprint(f.Value)
	if strings.ContainsAny(v, " \t\"=") {
		v = fmt.Sprintf("%q", v)
	}
	fmt.Fprintf(b, " %s=%s", f.Key, v)
}

func (s *textLogger) Debug(msg string, fields ...Field) { s.log(LevelDebug, msg, fields) }
func (s *textLogger) Info(msg string, fields ...Field)  { s.log(LevelInfo, msg, fields) }
func (s *textLogger) Warn(msg string, fields ...Field)  { s.log(LevelWarn, msg, fields) }
func (s *textLogger) Error(msg string, fields ...Field) { s.log(LevelError, msg, fields) }

func (s *textLogger) With(fields ...Field) Logger {
	merged := make([]Field, 0, len(s.fields)+len(fields))
	merged = append(merged, s.fields...)
	merged = append(merged, fields...)
	return &textLogger{mu: s.mu, out: s.out, level: s.level, fields: merged}
}

var (
	defaultLogger Logger = &nullLogger{}
	loggerMu      sync.RWMutex
)

// SetLogger replaces the package-level logger. nil disables logging.
func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if l == nil {
		defaultLogger = &nullLogger{}
	} else {
		defaultLogger = l
	}
}

// L returns the current package-level logger.
func L() Logger {
	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return defaultLogger
}

// ToStderr enables logging to stderr at the given level.
func ToStderr(level Level) {
	SetLogger(NewTextLogger(os.Stderr, level))
}

// ToFile enables logging to a file opened for append. The caller closes
// the returned file when done.
func ToFile(path string, level Level) (io.Closer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	SetLogger(NewTextLogger(f, level))
	return f, nil
}

func Debug(msg string, fields ...Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...Field) { L().Error(msg, fields...) }
