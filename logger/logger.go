package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

// Level is a log severity. It is zerolog's level type, so levels order the
// same way zerolog does.
type Level = zerolog.Level

const (
	LevelDebug = zerolog.DebugLevel
	LevelInfo  = zerolog.InfoLevel
	LevelWarn  = zerolog.WarnLevel
	LevelError = zerolog.ErrorLevel
	LevelFatal = zerolog.FatalLevel
)

// Format selects console or JSON output.
type Format int

const (
	FormatNormal Format = iota
	FormatJSON
)

// ParseLevel converts a level name to a Level. "warning" and "trace" are
// accepted as aliases. Anything unknown is LevelInfo.
func ParseLevel(s string) Level {
	switch name := strings.ToLower(strings.TrimSpace(s)); name {
	case "warning":
		return LevelWarn
	case "trace":
		return LevelDebug
	default:
		lvl, err := zerolog.ParseLevel(name)
		if err != nil || lvl < LevelDebug || lvl > LevelFatal {
			return LevelInfo
		}
		return lvl
	}
}

// ParseFormat converts a string to a Format. Anything but "json" is FormatNormal.
func ParseFormat(s string) Format {
	if strings.EqualFold(strings.TrimSpace(s), "json") {
		return FormatJSON
	}
	return FormatNormal
}

// KV is an ordered key-value pair for structured event logging.
type KV struct {
	Key   string
	Value string
}

// sink is the output configuration shared by a logger and all of its children.
type sink struct {
	mu     sync.Mutex
	level  Level
	format Format
	stdout io.Writer
	stderr io.Writer
	file   io.Writer // nil if no log file
}

// Logger provides leveled, dual-output logging on top of zerolog.
//
// Without a log file:
//   - DEBUG/INFO messages → stdout
//   - WARN/ERROR/FATAL messages → stderr
//   - Event messages → stdout
//
// With a log file:
//   - All messages (at or above level) → file
//   - Event messages additionally → stdout
//   - WARN/ERROR/FATAL additionally → stderr
//
// Child loggers created with With share the parent's outputs and carry
// extra context fields (e.g. file, target) on every line.
type Logger struct {
	s      *sink
	fields []KV
}

// New creates a Logger at the given level with no file output.
func New(level Level) *Logger {
	return &Logger{s: &sink{level: level, stdout: os.Stdout, stderr: os.Stderr}}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{s: &sink{level: zerolog.Disabled, stdout: io.Discard, stderr: io.Discard}}
}

// SetFormat sets the output format (normal or JSON).
func (l *Logger) SetFormat(f Format) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.format = f
}

// SetOutput replaces the console writers. Mostly useful in tests.
func (l *Logger) SetOutput(stdout, stderr io.Writer) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.stdout = stdout
	l.s.stderr = stderr
}

// SetFile sets the log file writer. Pass nil to disable file logging.
func (l *Logger) SetFile(w io.Writer) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()
	l.s.file = w
}

// With returns a child logger that adds key=value to every message.
func (l *Logger) With(key, value string) *Logger {
	fields := make([]KV, len(l.fields), len(l.fields)+1)
	copy(fields, l.fields)
	return &Logger{s: l.s, fields: append(fields, KV{Key: key, Value: value})}
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(format string, args ...any) { l.emit(LevelDebug, format, args...) }

// Info logs at INFO level.
func (l *Logger) Info(format string, args ...any) { l.emit(LevelInfo, format, args...) }

// Warn logs at WARN level.
func (l *Logger) Warn(format string, args ...any) { l.emit(LevelWarn, format, args...) }

// Error logs at ERROR level.
func (l *Logger) Error(format string, args ...any) { l.emit(LevelError, format, args...) }

// Event emits a structured lifecycle event with ordered key-value pairs.
// Events always emit regardless of log level.
//
// Normal format: 2006/01/02 15:04:05 ??? channel=foo event="RECORDING START" target=/tmp/foo
// JSON format:   {"event":"RECORDING START","channel":"foo","target":"/tmp/foo","time":"..."}
func (l *Logger) Event(event string, kvs ...KV) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	writers := []io.Writer{l.s.stdout}
	if l.s.file != nil {
		writers = append(writers, l.s.file)
	}

	e := l.build(writers).Log().Str("event", event)
	for _, kv := range kvs {
		e = e.Str(kv.Key, kv.Value)
	}
	e.Send()
}

// Writer returns an io.Writer that logs each line at the given level.
// Useful for capturing subprocess output (e.g. ffmpeg stderr).
func (l *Logger) Writer(level Level) io.Writer {
	return &writerAdapter{logger: l, level: level}
}

func (l *Logger) emit(level Level, format string, args ...any) {
	l.s.mu.Lock()
	defer l.s.mu.Unlock()

	if level < l.s.level {
		return
	}

	var writers []io.Writer
	switch {
	case l.s.file != nil && level >= LevelWarn:
		writers = []io.Writer{l.s.file, l.s.stderr}
	case l.s.file != nil:
		writers = []io.Writer{l.s.file}
	case level >= LevelWarn:
		writers = []io.Writer{l.s.stderr}
	default:
		writers = []io.Writer{l.s.stdout}
	}

	l.build(writers).WithLevel(level).Msg(fmt.Sprintf(format, args...))
}

// build creates a zerolog.Logger writing to ws in the configured format,
// carrying the context fields. Must be called with l.s.mu held.
func (l *Logger) build(ws []io.Writer) *zerolog.Logger {
	if l.s.format == FormatNormal {
		for i, w := range ws {
			ws[i] = zerolog.ConsoleWriter{Out: w, NoColor: true, TimeFormat: "2006/01/02 15:04:05"}
		}
	}

	var out io.Writer = ws[0]
	if len(ws) > 1 {
		out = zerolog.MultiLevelWriter(ws...)
	}

	c := zerolog.New(out).With().Timestamp()
	for _, kv := range l.fields {
		c = c.Str(kv.Key, kv.Value)
	}
	zl := c.Logger()
	return &zl
}

type writerAdapter struct {
	logger *Logger
	level  Level
}

func (w *writerAdapter) Write(p []byte) (int, error) {
	for _, line := range strings.Split(string(p), "\n") {
		line = strings.TrimRight(line, "\r")
		if line != "" {
			w.logger.emit(w.level, "%s", line)
		}
	}
	return len(p), nil
}
