package logging

import (
	"io"
	"os"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	LevelError = 1
	LevelWarn  = 2
	LevelInfo  = 3
	LevelDebug = 4
	LevelTrace = 5
)

type StructuredLogger interface {
	Trace(event string, data interface{})
	Debug(event string, data interface{})
	Info(event string, data interface{})
	Warn(event string, data interface{})
	Error(event string, data interface{})
}

type logMessage struct {
	Time  string      `json:"time"`
	Level string      `json:"level"`
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// JSONLogger writes one JSON object per line. Write errors are dropped: the
// sink may be a pipe whose reader has already exited.
type JSONLogger struct {
	mu        sync.Mutex
	out       io.Writer
	verbosity int
}

func NewJSONLogger(verbosity int, out io.Writer) *JSONLogger {
	if out == nil {
		out = os.Stderr
	}

	return &JSONLogger{
		out:       out,
		verbosity: verbosity,
	}
}

// NewFileWriter returns a size-rotated log file.
func NewFileWriter(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    64,
		MaxBackups: 3,
		MaxAge:     14,
	}
}

func (l *JSONLogger) print(level string, event string, data interface{}) {
	line, err := json.Marshal(logMessage{
		Time:  time.Now().Format(time.RFC3339Nano),
		Level: level,
		Event: event,
		Data:  data,
	})
	if err != nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	_, _ = l.out.Write(append(line, '\n'))
}

func (l *JSONLogger) Trace(event string, data interface{}) {
	if l.verbosity >= LevelTrace {
		l.print("TRACE", event, data)
	}
}

func (l *JSONLogger) Debug(event string, data interface{}) {
	if l.verbosity >= LevelDebug {
		l.print("DEBUG", event, data)
	}
}

func (l *JSONLogger) Info(event string, data interface{}) {
	if l.verbosity >= LevelInfo {
		l.print("INFO", event, data)
	}
}

func (l *JSONLogger) Warn(event string, data interface{}) {
	if l.verbosity >= LevelWarn {
		l.print("WARN", event, data)
	}
}

func (l *JSONLogger) Error(event string, data interface{}) {
	if l.verbosity >= LevelError {
		l.print("ERROR", event, data)
	}
}
