/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ssgreg/logf"
	"github.com/ssgreg/logftext"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Field is a typed key-value pair attached to a log record.
type Field = logf.Field

// CloseFunc flushes buffered records and stops the background writer.
type CloseFunc logf.ChannelWriterCloseFunc

// Field constructors.
var (
	Error    = logf.Error
	String   = logf.String
	Strings  = logf.Strings
	Int      = logf.Int
	Int64    = logf.Int64
	Duration = logf.Duration
	Bool     = logf.Bool
)

// DurationIn returns a "duration" field expressed as a whole number of units.
func DurationIn(val, unit time.Duration) Field {
	return Int64("duration", val.Nanoseconds()/unit.Nanoseconds())
}

// Policy tags a record with the rate limiting policy it relates to.
func Policy(name string) Field {
	return String("policy", name)
}

// ClientKey tags a record with the identifier a limit was counted against.
func ClientKey(key string) Field {
	return String("client_key", key)
}

// FieldLogger writes structured records.
type FieldLogger interface {
	With(fs ...Field) FieldLogger

	Debug(msg string, fs ...Field)
	Info(msg string, fs ...Field)
	Warn(msg string, fs ...Field)
	Error(msg string, fs ...Field)

	// Log writes a record at a level chosen at runtime, e.g. from configuration.
	Log(level Level, msg string, fs ...Field)
}

// LogfAdapter implements FieldLogger on top of logf.Logger.
type LogfAdapter struct {
	Logger *logf.Logger
}

// NewDisabledLogger returns a logger that drops everything.
func NewDisabledLogger() FieldLogger {
	return &LogfAdapter{logf.NewDisabledLogger()}
}

// NewLogger builds a logger from the configuration. Records are encoded and written in
// a background goroutine; the returned CloseFunc must be called before exit to flush them.
func NewLogger(cfg *Config) (FieldLogger, CloseFunc) {
	w, closeFn := logf.NewChannelWriter(logf.ChannelWriterConfig{
		Appender:          newAppender(cfg, openOutput(cfg)),
		EnableSyncOnError: true,
	})
	l := logf.NewLogger(logfLevel(cfg.Level), w).With(logf.Int("pid", os.Getpid()))
	if cfg.AddCaller {
		// Skip the adapter frame.
		l = l.WithCaller().WithCallerSkip(1)
	}
	return &LogfAdapter{l}, CloseFunc(closeFn)
}

// With returns a logger that adds fs to every record.
func (l *LogfAdapter) With(fs ...Field) FieldLogger {
	return &LogfAdapter{l.Logger.With(fs...)}
}

// Debug implements FieldLogger.
func (l *LogfAdapter) Debug(msg string, fs ...Field) { l.Logger.Debug(msg, fs...) }

// Info implements FieldLogger.
func (l *LogfAdapter) Info(msg string, fs ...Field) { l.Logger.Info(msg, fs...) }

// Warn implements FieldLogger.
func (l *LogfAdapter) Warn(msg string, fs ...Field) { l.Logger.Warn(msg, fs...) }

// Error implements FieldLogger.
func (l *LogfAdapter) Error(msg string, fs ...Field) { l.Logger.Error(msg, fs...) }

// Log implements FieldLogger.
func (l *LogfAdapter) Log(level Level, msg string, fs ...Field) {
	l.Logger.AtLevel(logfLevel(level), func(logFn logf.LogFunc) {
		logFn(msg, fs...)
	})
}

func logfLevel(level Level) logf.Level {
	switch level {
	case LevelError:
		return logf.LevelError
	case LevelWarn:
		return logf.LevelWarn
	case LevelDebug:
		return logf.LevelDebug
	default:
		return logf.LevelInfo
	}
}

func openOutput(cfg *Config) io.Writer {
	switch cfg.Output {
	case OutputStderr:
		return os.Stderr
	case OutputFile:
		rot := cfg.File.Rotation
		return &lumberjack.Logger{
			Filename:   expandFilePath(cfg.File.Path, time.Now()),
			MaxSize:    int(rot.MaxSize / (1 << 20)), // lumberjack counts megabytes
			MaxBackups: rot.MaxBackups,
			MaxAge:     rot.MaxAgeDays,
			Compress:   rot.Compress,
			LocalTime:  rot.LocalTimeInNames,
		}
	default:
		return os.Stdout
	}
}

func newAppender(cfg *Config, w io.Writer) logf.Appender {
	var encodeErr logf.ErrorEncoder
	if cfg.Error.NoVerbose || cfg.Error.VerboseSuffix != "" {
		encodeErr = logf.NewErrorEncoder(logf.ErrorEncoderConfig{
			NoVerboseField:     cfg.Error.NoVerbose,
			VerboseFieldSuffix: cfg.Error.VerboseSuffix,
		})
	}

	if cfg.Format == FormatText {
		noColor := cfg.NoColor
		return logftext.NewAppender(w, logftext.EncoderConfig{
			NoColor:     &noColor,
			EncodeTime:  logf.RFC3339NanoTimeEncoder,
			EncodeError: encodeErr,
		})
	}
	return logf.NewWriteAppender(w, logf.NewJSONEncoder(logf.JSONEncoderConfig{
		FieldKeyTime: "time",
		EncodeTime:   logf.RFC3339NanoTimeEncoder,
		EncodeError:  encodeErr,
	}))
}

// expandFilePath substitutes {{pid}} and {{starttime}} so several instances can share a directory.
func expandFilePath(path string, start time.Time) string {
	return strings.NewReplacer(
		"{{pid}}", strconv.Itoa(os.Getpid()),
		"{{starttime}}", start.Format("200601021504"),
	).Replace(path)
}
