package echoc

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// LogLevel represents the severity of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelWarn
	LevelError
	LevelFatal
)

// LogCategory identifies the subsystem emitting a message.
type LogCategory string

const (
	CatNone      LogCategory = ""
	CatLexer     LogCategory = "lexer"
	CatParser    LogCategory = "parser"
	CatScope     LogCategory = "scope"
	CatEval      LogCategory = "eval"
	CatCoroutine LogCategory = "coroutine"
	CatGather    LogCategory = "gather"
	CatTimer     LogCategory = "timer"
	CatModule    LogCategory = "module"
	CatGC        LogCategory = "gc"
)

// Logger is EchoC's categorized diagnostic logger. It is modeled directly on
// the teacher's Logger (debug-category gating, always-visible error/fatal,
// position-aware formatting) but speaks EchoC's error Kind vocabulary instead
// of PawScript's command categories, and can additionally fan structured
// events out to zerolog when a sink is configured.
type Logger struct {
	enabled           bool
	enabledCategories map[LogCategory]bool
	out               io.Writer
	errOut            io.Writer
	sink              *zerolog.Logger
}

// NewLogger creates a logger writing to stdout/stderr.
func NewLogger(enabled bool) *Logger {
	return NewLoggerWithWriters(enabled, os.Stdout, os.Stderr)
}

// NewLoggerWithWriters creates a logger with explicit output streams, for
// embedding or tests.
func NewLoggerWithWriters(enabled bool, out, errOut io.Writer) *Logger {
	return &Logger{
		enabled:           enabled,
		enabledCategories: make(map[LogCategory]bool),
		out:               out,
		errOut:            errOut,
	}
}

// AttachStructuredSink wires a zerolog.Logger that receives every message
// this Logger emits as a structured event, in addition to the plain text
// output. Used when Config.StructuredLog is set (see config.go).
func (l *Logger) AttachStructuredSink(sink *zerolog.Logger) {
	l.sink = sink
}

func (l *Logger) SetEnabled(enabled bool) { l.enabled = enabled }

func (l *Logger) EnableCategory(cat LogCategory) { l.enabledCategories[cat] = true }

func (l *Logger) DisableCategory(cat LogCategory) { delete(l.enabledCategories, cat) }

func (l *Logger) IsCategoryEnabled(cat LogCategory) bool { return l.enabledCategories[cat] }

func (l *Logger) shouldLog(level LogLevel, cat LogCategory) bool {
	switch level {
	case LevelFatal, LevelError:
		return true
	case LevelWarn:
		return l.enabled || l.enabledCategories[cat]
	case LevelDebug:
		return l.enabled && (cat == CatNone || l.enabledCategories[cat])
	default:
		return false
	}
}

// Log is the unified logging entry point. pos may be nil.
func (l *Logger) Log(level LogLevel, cat LogCategory, message string, pos *Position) {
	if !l.shouldLog(level, cat) {
		return
	}

	var prefix string
	switch level {
	case LevelDebug:
		prefix = "[DEBUG]"
		if cat != CatNone {
			prefix = fmt.Sprintf("[DEBUG:%s]", cat)
		}
	case LevelWarn:
		prefix = "[EchoC WARN]"
	case LevelError, LevelFatal:
		prefix = "[EchoC ERROR]"
	}

	output := fmt.Sprintf("%s %s", prefix, message)
	if pos != nil {
		filename := pos.Filename
		if filename == "" {
			filename = "<unknown>"
		}
		output += fmt.Sprintf("\n  at line %d, col %d in %s", pos.Line, pos.Col, filename)
	}

	if level == LevelDebug {
		_, _ = fmt.Fprintln(l.out, output)
	} else {
		_, _ = fmt.Fprintln(l.errOut, output)
	}

	if l.sink != nil {
		ev := l.sink.WithLevel(zerologLevel(level)).Str("category", string(cat))
		if pos != nil {
			ev = ev.Str("file", pos.Filename).Int("line", pos.Line).Int("col", pos.Col)
		}
		ev.Msg(message)
	}
}

func zerologLevel(level LogLevel) zerolog.Level {
	switch level {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.FatalLevel
	}
}

func (l *Logger) Debug(format string, args ...interface{}) {
	l.Log(LevelDebug, CatNone, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) DebugCat(cat LogCategory, format string, args ...interface{}) {
	l.Log(LevelDebug, cat, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Warn(format string, args ...interface{}) {
	l.Log(LevelWarn, CatNone, fmt.Sprintf(format, args...), nil)
}

func (l *Logger) Error(format string, args ...interface{}) {
	l.Log(LevelError, CatNone, fmt.Sprintf(format, args...), nil)
}

// ErrorWithPosition logs a fully formatted EchoError using its own Kind and
// position; used at the top level when an uncaught error reaches the driver.
func (l *Logger) ErrorWithPosition(err *EchoError) {
	l.Log(LevelError, CatNone, err.Error(), nil)
}
