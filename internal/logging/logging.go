// Package logging provides the leveled, structured logger used by every
// component of the service. Output is either one JSON object per line or a
// plain "[level] time msg k=v" line for local development.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// Level represents the severity of a log entry
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Fields carries structured key/value context for one entry.
type Fields map[string]interface{}

// Logger writes structured log entries.
type Logger struct {
	mu         sync.Mutex
	output     io.Writer
	minLevel   Level
	enableJSON bool
}

// Entry is the JSON shape of a single log line.
type Entry struct {
	Level     Level                  `json:"level"`
	Time      string                 `json:"time"`
	Message   string                 `json:"msg"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Caller    string                 `json:"caller,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// New builds a logger. Unknown levels fall back to info; format "json"
// selects JSON lines, anything else plain text.
func New(w io.Writer, level, format string) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{
		output:     w,
		minLevel:   ParseLevel(level),
		enableJSON: strings.EqualFold(format, "json"),
	}
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *Logger {
	return New(io.Discard, string(LevelError), "text")
}

// ParseLevel maps a configuration string to a Level.
func ParseLevel(s string) Level {
	switch Level(strings.ToLower(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug
	case LevelWarn:
		return LevelWarn
	case LevelError:
		return LevelError
	default:
		return LevelInfo
	}
}

func (l *Logger) shouldLog(level Level) bool {
	return levelRank[level] >= levelRank[l.minLevel]
}

// getCaller returns the file and line number of the caller
func getCaller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}
	return fmt.Sprintf("%s:%d", file, line)
}

func (l *Logger) log(ctx context.Context, level Level, msg string, fields Fields, err error) {
	if l == nil || !l.shouldLog(level) {
		return
	}

	entry := Entry{
		Level:     level,
		Time:      time.Now().UTC().Format(time.RFC3339),
		Message:   msg,
		Fields:    fields,
		Caller:    getCaller(3),
		RequestID: RequestIDFromContext(ctx),
	}
	if err != nil {
		entry.Error = err.Error()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.enableJSON {
		data, mErr := json.Marshal(entry)
		if mErr != nil {
			fmt.Fprintf(l.output, `{"level":"error","msg":"log marshal failed","error":%q}`+"\n", mErr.Error())
			return
		}
		fmt.Fprintln(l.output, string(data))
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s %s", entry.Level, entry.Time, entry.Message)
	if entry.RequestID != "" {
		fmt.Fprintf(&b, " rid=%s", entry.RequestID)
	}
	// stable field order keeps text logs greppable
	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	if entry.Error != "" {
		fmt.Fprintf(&b, " error=%q", entry.Error)
	}
	fmt.Fprintln(l.output, b.String())
}

// Debug logs a debug message
func (l *Logger) Debug(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, LevelDebug, msg, fields, nil)
}

// Info logs an info message
func (l *Logger) Info(ctx context.Context, msg string, fields Fields) {
	l.log(ctx, LevelInfo, msg, fields, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(ctx context.Context, msg string, fields Fields, err error) {
	l.log(ctx, LevelWarn, msg, fields, err)
}

// Error logs an error message
func (l *Logger) Error(ctx context.Context, msg string, fields Fields, err error) {
	l.log(ctx, LevelError, msg, fields, err)
}
