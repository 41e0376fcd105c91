// Package logx provides the allocator's structured diagnostic logging and
// its fatal-error sink. Every allocator fatal path (OS mapping exhaustion,
// envelope corruption, unmap failure) routes through Fatal.
package logx

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level is the severity of a log line.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

var levelNames = map[Level]string{
	DebugLevel: "DEBUG",
	InfoLevel:  "INFO",
	WarnLevel:  "WARN",
	ErrorLevel: "ERROR",
	FatalLevel: "FATAL",
}

// Logger is a minimal, mutex-protected structured logger.
type Logger struct {
	mu         sync.Mutex
	level      Level
	component  string
	output     io.Writer
	timeFormat string
}

// Config configures a Logger instance.
type Config struct {
	Level      Level
	Component  string
	Output     io.Writer
	TimeFormat string
}

// New creates a Logger from the given configuration.
func New(cfg Config) *Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = "15:04:05.000"
	}
	return &Logger{
		level:      cfg.Level,
		component:  cfg.Component,
		output:     cfg.Output,
		timeFormat: cfg.TimeFormat,
	}
}

// Default builds a Logger with sensible defaults for the given component.
func Default(component string) *Logger {
	return New(Config{Level: InfoLevel, Component: component, Output: os.Stderr})
}

// Field is a key/value pair attached to a log line.
type Field struct {
	Key   string
	Value any
}

func String(key, value string) Field { return Field{Key: key, Value: value} }
func Int(key string, value int) Field { return Field{Key: key, Value: value} }
func Uint64(key string, value uint64) Field { return Field{Key: key, Value: value} }
func Err(err error) Field { return Field{Key: "error", Value: err} }

func (f Field) format() string {
	switch v := f.Value.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (l *Logger) log(level Level, msg string, fields ...Field) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	var b strings.Builder
	b.WriteString("[")
	b.WriteString(time.Now().Format(l.timeFormat))
	b.WriteString("] [")
	b.WriteString(fmt.Sprintf("%-5s", levelNames[level]))
	b.WriteString("] ")
	if l.component != "" {
		b.WriteString("[")
		b.WriteString(l.component)
		b.WriteString("] ")
	}
	b.WriteString(msg)
	for _, f := range fields {
		b.WriteString(" ")
		b.WriteString(f.Key)
		b.WriteString("=")
		b.WriteString(f.format())
	}
	b.WriteString("\n")

	l.output.Write([]byte(b.String()))
}

func (l *Logger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields...) }
func (l *Logger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields...) }
func (l *Logger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields...) }
func (l *Logger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields...) }

// Fatal logs tag as the message at fatal severity, with the given fields,
// and terminates the process. Every allocator path that has lost track of its own bookkeeping
// (a failed OS mapping, a corrupt envelope, a failed unmap) ends here. It
// never returns.
func (l *Logger) Fatal(tag string, fields ...Field) {
	l.log(FatalLevel, tag, fields...)
	os.Exit(1)
}

var global = Default("emalloc")

// SetGlobal replaces the package-level logger used by Fatal/Debug/Info/Warn.
func SetGlobal(l *Logger) { global = l }

func Debug(msg string, fields ...Field) { global.Debug(msg, fields...) }
func Info(msg string, fields ...Field)  { global.Info(msg, fields...) }
func Warn(msg string, fields ...Field)  { global.Warn(msg, fields...) }
func Error(msg string, fields ...Field) { global.Error(msg, fields...) }

// Fatal logs at the package-level logger and terminates the process.
func Fatal(tag string, fields ...Field) { global.Fatal(tag, fields...) }
