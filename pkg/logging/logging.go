// Package logging provides the small structured-logging interface shared by
// the gateway and device packages.
package logging

import (
	"fmt"
	"log/slog"
)

// Logger is the logging interface used throughout the gateway and device
// packages. Components take a Logger in their constructor rather than
// calling slog package-level functions directly, so tests can inject a
// silent or capturing implementation.
type Logger interface {
	ErrorPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
	Errorf(format string, args ...any) error
}

type defaultLogger struct {
	prefix string
}

// Default returns a slog-backed Logger that prefixes every line with prefix
// (e.g. "gateway: ", "device: ").
func Default(prefix string) Logger {
	return defaultLogger{prefix: prefix}
}

func (d defaultLogger) ErrorPrintf(format string, args ...any) {
	slog.Error(d.prefix + fmt.Sprintf(format, args...))
}

func (d defaultLogger) WarnPrintf(format string, args ...any) {
	slog.Warn(d.prefix + fmt.Sprintf(format, args...))
}

func (d defaultLogger) InfoPrintf(format string, args ...any) {
	slog.Info(d.prefix + fmt.Sprintf(format, args...))
}

func (d defaultLogger) DebugPrintf(format string, args ...any) {
	slog.Debug(d.prefix + fmt.Sprintf(format, args...))
}

func (d defaultLogger) Errorf(format string, args ...any) error {
	return fmt.Errorf(d.prefix+format, args...)
}

// Slog wraps an existing *slog.Logger, applying prefix to every message.
func Slog(l *slog.Logger, prefix string) Logger {
	return &slogLogger{Logger: l, prefix: prefix}
}

type slogLogger struct {
	*slog.Logger
	prefix string
}

func (s *slogLogger) ErrorPrintf(format string, args ...any) {
	s.Logger.Error(s.prefix + fmt.Sprintf(format, args...))
}

func (s *slogLogger) WarnPrintf(format string, args ...any) {
	s.Logger.Warn(s.prefix + fmt.Sprintf(format, args...))
}

func (s *slogLogger) InfoPrintf(format string, args ...any) {
	s.Logger.Info(s.prefix + fmt.Sprintf(format, args...))
}

func (s *slogLogger) DebugPrintf(format string, args ...any) {
	s.Logger.Debug(s.prefix + fmt.Sprintf(format, args...))
}

func (s *slogLogger) Errorf(format string, args ...any) error {
	return fmt.Errorf(s.prefix+format, args...)
}

// Noop returns a Logger that discards everything, useful in tests that don't
// want log noise but still need a non-nil Logger.
func Noop() Logger {
	return noopLogger{}
}

type noopLogger struct{}

func (noopLogger) ErrorPrintf(string, ...any)   {}
func (noopLogger) WarnPrintf(string, ...any)    {}
func (noopLogger) InfoPrintf(string, ...any)    {}
func (noopLogger) DebugPrintf(string, ...any)   {}
func (noopLogger) Errorf(format string, args ...any) error {
	return fmt.Errorf(format, args...)
}
