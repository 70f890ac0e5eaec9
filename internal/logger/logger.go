// Package logger provides a leveled, structured JSON logger. Output goes to
// stderr: when repochat runs as an MCP server, stdout carries the protocol.
// Values under key names that look secret (API keys, tokens) are redacted.
package logger

import (
	"encoding/json"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is a log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

// ParseLevel maps a level name to a Level, defaulting to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(name) {
	case "debug":
		return LevelDebug
	case "warn":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes one JSON object per record.
type Logger struct {
	mu     sync.Mutex
	out    io.Writer
	level  Level
	fields map[string]any
}

// New creates a logger writing to stderr at the given level.
func New(level Level) *Logger {
	return &Logger{out: os.Stderr, level: level, fields: map[string]any{}}
}

// NewWithOutput creates a logger writing to w. Used in tests.
func NewWithOutput(w io.Writer, level Level) *Logger {
	return &Logger{out: w, level: level, fields: map[string]any{}}
}

// With returns a child logger carrying additional fixed fields.
func (l *Logger) With(kv ...any) *Logger {
	child := &Logger{out: l.out, level: l.level, fields: make(map[string]any, len(l.fields))}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for k, v := range pairs(kv) {
		child.fields[k] = v
	}
	return child
}

func (l *Logger) Debug(msg string, kv ...any) { l.write(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.write(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.write(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.write(LevelError, msg, kv) }

func (l *Logger) write(level Level, msg string, kv []any) {
	if level < l.level {
		return
	}
	rec := make(map[string]any, 3+len(l.fields)+len(kv)/2)
	rec["ts"] = time.Now().UTC().Format(time.RFC3339)
	rec["level"] = levelNames[level]
	rec["msg"] = msg
	for k, v := range l.fields {
		rec[k] = v
	}
	for k, v := range pairs(kv) {
		rec[k] = v
	}
	redactSecrets(rec)

	b, err := json.Marshal(rec)
	if err != nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(append(b, '\n'))
}

func pairs(kv []any) map[string]any {
	m := make(map[string]any, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			continue
		}
		m[k] = kv[i+1]
	}
	return m
}

var secretKeyParts = []string{"key", "token", "secret", "password", "authorization"}

// redactSecrets masks values whose key names suggest credentials.
func redactSecrets(rec map[string]any) {
	for k, v := range rec {
		s, ok := v.(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(k)
		for _, part := range secretKeyParts {
			if strings.Contains(lower, part) {
				rec[k] = redact(s)
				break
			}
		}
	}
}

func redact(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "***" + s[len(s)-4:]
}
