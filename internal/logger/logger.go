package logger

import (
	"io"
	"os"
	"strings"
	"syscall"
	"time"

	"codeberg.org/hydrocam/hydrocam/internal/errors"
	"github.com/rs/zerolog"
)

const defaultFilePerm = 0o644

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
	With().Timestamp().Logger()

type LogLevel int8

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

type LogEvent struct {
	*zerolog.Event
}

func (e *LogEvent) Msg(msg string) {
	e.Event.Msg(msg)
}

func (e *LogEvent) Send() {
	e.Event.Send()
}

// Options controls where and how much the process logs.
type Options struct {
	Level     string
	IsService bool
	// File, when set, receives JSON lines in addition to the console.
	File string
}

// Init initializes the global logger. The returned closer releases the log
// file, if any, and is always non-nil.
func Init(opts Options) (io.Closer, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nopCloser{}, err
	}

	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	if opts.IsService {
		console.TimeFormat = ""
		console.FormatTimestamp = func(_ interface{}) string {
			return ""
		}
	}

	var (
		out    io.Writer = console
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, defaultFilePerm)
		if err != nil {
			return closer, errors.New().Wrap(errors.ErrInitFailed, err)
		}
		out = zerolog.MultiLevelWriter(console, f)
		closer = f
	}

	log = zerolog.New(out).With().Timestamp().Logger()
	SetLogLevel(level)

	return closer, nil
}

// ParseLevel maps a configured level name to a LogLevel.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return DebugLevel, nil
	case "info", "":
		return InfoLevel, nil
	case "warning", "warn":
		return WarnLevel, nil
	case "error":
		return ErrorLevel, nil
	default:
		return InfoLevel, errors.New().WithData(errors.ErrInvalidLogLevel, level)
	}
}

// SetLogLevel sets the global log level
func SetLogLevel(level LogLevel) {
	zerolog.SetGlobalLevel(zerolog.Level(level))
}

// IsService checks if the application is running as a service
func IsService() bool {
	if _, err := os.Stdin.Stat(); err != nil {
		return true
	}
	if os.Getenv("SERVICE_NAME") != "" || os.Getenv("INVOCATION_ID") != "" {
		return true
	}
	if os.Getppid() == 1 {
		return true
	}

	return syscall.Getpgrp() == syscall.Getpid()
}

// Debug logs a debug message
func Debug() *LogEvent {
	return &LogEvent{log.Debug()}
}

// Info logs an info message
func Info() *LogEvent {
	return &LogEvent{log.Info()}
}

// Warn logs a warning message
func Warn() *LogEvent {
	return &LogEvent{log.Warn()}
}

// Error logs an error message
func Error() *LogEvent {
	return &LogEvent{log.Error()}
}

// ErrorWithCode logs an error with its error code attached
func ErrorWithCode(err error) *LogEvent {
	return withCode(log.Error(), err)
}

// Fatal logs a fatal message and exits the program
func Fatal() *LogEvent {
	return &LogEvent{log.Fatal()}
}

// FatalWithCode logs a fatal message with a specific error code and exits the program
func FatalWithCode(err error) *LogEvent {
	return withCode(log.Fatal(), err)
}

func withCode(e *zerolog.Event, err error) *LogEvent {
	return &LogEvent{e.
		Str("error_code", string(errors.CodeOf(err))).
		Err(err)}
}

// Default returns a Logger backed by the global logger.
func Default() Logger {
	return componentLogger{}
}

// New returns a Logger writing to w, independent of the global logger.
func New(w io.Writer) Logger {
	l := zerolog.New(w).With().Timestamp().Logger()
	return componentLogger{l: &l}
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	l := zerolog.Nop()
	return componentLogger{l: &l}
}

type componentLogger struct {
	// nil means the global logger, resolved at call time so Init can
	// replace it after components were constructed.
	l *zerolog.Logger
}

func (c componentLogger) base() *zerolog.Logger {
	if c.l == nil {
		return &log
	}
	return c.l
}

func (c componentLogger) Debug() *LogEvent { return &LogEvent{c.base().Debug()} }
func (c componentLogger) Info() *LogEvent  { return &LogEvent{c.base().Info()} }
func (c componentLogger) Warn() *LogEvent  { return &LogEvent{c.base().Warn()} }
func (c componentLogger) Error() *LogEvent { return &LogEvent{c.base().Error()} }

func (c componentLogger) ErrorWithCode(err error) *LogEvent {
	return withCode(c.base().Error(), err)
}

func (c componentLogger) With(component string) Logger {
	l := c.base().With().Str("component", component).Logger()
	return componentLogger{l: &l}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
