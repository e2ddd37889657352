/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package log

// PrefixedLogger prepends a fixed text to every message, e.g. the name of a subsystem.
type PrefixedLogger struct {
	delegate FieldLogger
	prefix   string
}

// NewPrefixedLogger wraps delegate so that all messages start with prefix.
func NewPrefixedLogger(delegate FieldLogger, prefix string) FieldLogger {
	return &PrefixedLogger{delegate: delegate, prefix: prefix}
}

// With implements FieldLogger. The prefix is kept.
func (l *PrefixedLogger) With(fs ...Field) FieldLogger {
	return &PrefixedLogger{delegate: l.delegate.With(fs...), prefix: l.prefix}
}

// Debug implements FieldLogger.
func (l *PrefixedLogger) Debug(msg string, fs ...Field) { l.Log(LevelDebug, msg, fs...) }

// Info implements FieldLogger.
func (l *PrefixedLogger) Info(msg string, fs ...Field) { l.Log(LevelInfo, msg, fs...) }

// Warn implements FieldLogger.
func (l *PrefixedLogger) Warn(msg string, fs ...Field) { l.Log(LevelWarn, msg, fs...) }

// Error implements FieldLogger.
func (l *PrefixedLogger) Error(msg string, fs ...Field) { l.Log(LevelError, msg, fs...) }

// Log implements FieldLogger.
func (l *PrefixedLogger) Log(level Level, msg string, fs ...Field) {
	l.delegate.Log(level, l.prefix+msg, fs...)
}
