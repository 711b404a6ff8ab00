package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents log level
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	FATAL
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}

func (l Level) String() string {
	if l < DEBUG || l > FATAL {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLevel maps a --log-level value to a Level. Unknown values mean INFO.
func ParseLevel(s string) Level {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "WARNING" {
		return WARN
	}
	for i, name := range levelNames {
		if name == s {
			return Level(i)
		}
	}
	return INFO
}

// Fields are structured key/values attached to an entry
type Fields map[string]interface{}

// Entry is one line of JSON log output
type Entry struct {
	Time    string `json:"time"`
	Level   string `json:"level"`
	Message string `json:"msg"`
	Fields  Fields `json:"fields,omitempty"`
}

// Logger writes levelled build logs, as text or JSON lines.
// Tool output never goes through the Logger; the runner forwards it verbatim.
type Logger struct {
	level      Level
	jsonFormat bool
	fields     Fields
	now        func() time.Time

	// shared between a logger and its WithField children
	sink *sink
}

type sink struct {
	mu      sync.Mutex
	out     io.Writer
	console io.Writer
	file    *os.File
}

// NewLogger creates a logger writing to stderr
func NewLogger(level Level, jsonFormat bool) *Logger {
	return &Logger{
		level:      level,
		jsonFormat: jsonFormat,
		fields:     Fields{},
		now:        time.Now,
		sink:       &sink{out: os.Stderr, console: os.Stderr},
	}
}

// Discard returns a logger that drops everything
func Discard() *Logger {
	l := NewLogger(FATAL+1, false)
	l.sink.out = io.Discard
	return l
}

// NewFileLogger creates a logger that appends to <stateDir>/logs/pyship.log
// and mirrors every line to console. ./logs is used when the state dir
// cannot be written.
func NewFileLogger(stateDir string, level Level, jsonFormat bool, console io.Writer) (*Logger, error) {
	dir := filepath.Join(stateDir, "logs")
	if err := ensureWritable(dir); err != nil {
		dir = "logs"
		if err := ensureWritable(dir); err != nil {
			return nil, fmt.Errorf("no writable log directory: %w", err)
		}
	}

	path := filepath.Join(dir, "pyship.log")
	f, err := openAppend(path)
	if err != nil {
		return nil, err
	}

	l := NewLogger(level, jsonFormat)
	l.sink = &sink{out: io.MultiWriter(f, console), console: console, file: f}
	l.Debug("logger initialized", Fields{"path": path})
	return l, nil
}

// SetOutput replaces every destination with w
func (l *Logger) SetOutput(w io.Writer) {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	l.sink.out = w
}

// Path returns the log file path, or "" when logging to a stream only
func (l *Logger) Path() string {
	if l.sink.file == nil {
		return ""
	}
	return l.sink.file.Name()
}

func (l *Logger) log(level Level, message string, fields Fields) {
	if level < l.level {
		return
	}

	merged := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}

	var line string
	if l.jsonFormat {
		data, err := json.Marshal(Entry{
			Time:    l.now().UTC().Format(time.RFC3339),
			Level:   level.String(),
			Message: message,
			Fields:  merged,
		})
		if err != nil {
			data, _ = json.Marshal(Entry{Level: level.String(), Message: message})
		}
		line = string(data)
	} else {
		line = fmt.Sprintf("[%s] %s: %s", l.now().Format("2006-01-02 15:04:05"), level, message)
		if len(merged) > 0 {
			line += " " + formatFields(merged)
		}
	}

	l.sink.mu.Lock()
	fmt.Fprintln(l.sink.out, line)
	l.sink.mu.Unlock()

	if level == FATAL {
		os.Exit(1)
	}
}

// formatFields renders fields as sorted key=value pairs
func formatFields(fields Fields) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%v", k, fields[k])
	}
	return b.String()
}

func first(fields []Fields) Fields {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

func (l *Logger) Debug(message string, fields ...Fields) { l.log(DEBUG, message, first(fields)) }
func (l *Logger) Info(message string, fields ...Fields) { l.log(INFO, message, first(fields)) }
func (l *Logger) Warn(message string, fields ...Fields) { l.log(WARN, message, first(fields)) }
func (l *Logger) Error(message string, fields ...Fields) { l.log(ERROR, message, first(fields)) }

// Fatal logs and exits with status 1
func (l *Logger) Fatal(message string, fields ...Fields) { l.log(FATAL, message, first(fields)) }

// WithField returns a child logger carrying an extra field.
// The child shares the parent's destinations.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	child := *l
	child.fields = make(Fields, len(l.fields)+1)
	for k, v := range l.fields {
		child.fields[k] = v
	}
	child.fields[key] = value
	return &child
}

// Close closes the log file if opened
func (l *Logger) Close() error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()
	if l.sink.file == nil {
		return nil
	}
	err := l.sink.file.Close()
	l.sink.file = nil
	l.sink.out = l.sink.console
	return err
}

// RotateIfNeeded moves pyship.log to pyship.log.1 once it grows past
// maxSize bytes. Only one old file is kept.
func (l *Logger) RotateIfNeeded(maxSize int64) error {
	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	f := l.sink.file
	if f == nil {
		return nil
	}
	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() <= maxSize {
		return nil
	}

	path := f.Name()
	f.Close()
	if err := os.Rename(path, path+".1"); err != nil {
		return err
	}
	nf, err := openAppend(path)
	if err != nil {
		l.sink.file = nil
		l.sink.out = l.sink.console
		return err
	}
	l.sink.file = nf
	l.sink.out = io.MultiWriter(nf, l.sink.console)
	return nil
}

func openAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	return f, nil
}

func ensureWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	probe.Close()
	return os.Remove(probe.Name())
}
