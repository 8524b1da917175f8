package log

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync/atomic"
	"time"
)

// BaseLogger implements Logger with a formatter, outputs and hooks. Child loggers share the
// parent's level.
type BaseLogger struct {
	level     *atomic.Int32
	fields    Fields
	formatter Formatter
	outputs   []Output
	hooks     []Hook
}

func (l *BaseLogger) enabled(level Level) bool {
	return level >= l.GetLevel()
}

// Debug logs a message at the debug level with fields.
func (l *BaseLogger) Debug(msg string, fields ...Field) {
	if l.enabled(DebugLevel) {
		l.logWithFields(DebugLevel, msg, fields)
	}
}

// Info logs a message at the info level with fields.
func (l *BaseLogger) Info(msg string, fields ...Field) {
	if l.enabled(InfoLevel) {
		l.logWithFields(InfoLevel, msg, fields)
	}
}

// Warn logs a message at the warn level with fields.
func (l *BaseLogger) Warn(msg string, fields ...Field) {
	if l.enabled(WarnLevel) {
		l.logWithFields(WarnLevel, msg, fields)
	}
}

// Error logs a message at the error level with fields.
func (l *BaseLogger) Error(msg string, fields ...Field) {
	if l.enabled(ErrorLevel) {
		l.logWithFields(ErrorLevel, msg, fields)
	}
}

// Fatal logs a message at the fatal level with fields and then exits.
func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.logWithFields(FatalLevel, msg, fields)
	os.Exit(1)
}

// With returns a child logger with the fields added.
func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}

	child := &BaseLogger{
		level:     l.level,
		formatter: l.formatter,
		outputs:   l.outputs,
		hooks:     l.hooks,
		fields:    make(Fields, len(l.fields)+len(fields)),
	}
	for k, v := range l.fields {
		child.fields[k] = v
	}
	for _, field := range fields {
		child.fields[field.Key] = field.Value
	}
	return child
}

// WithError returns a new logger with the error added as a field.
func (l *BaseLogger) WithError(err error) Logger {
	if err == nil {
		return l
	}
	return l.With(Err(err))
}

// WithContext returns a new logger with fields from the context.
func (l *BaseLogger) WithContext(ctx context.Context) Logger {
	return l.With(ContextFields(ctx)...)
}

// WithComponent returns a new logger with the component field added.
func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

// SetLevel sets the minimum log level for this logger and every logger derived from it.
func (l *BaseLogger) SetLevel(level Level) {
	l.level.Store(int32(level))
}

// GetLevel returns the current minimum log level.
func (l *BaseLogger) GetLevel() Level {
	return Level(l.level.Load())
}

// Outputs returns the configured log outputs.
func (l *BaseLogger) Outputs() []Output {
	return l.outputs
}

// Close closes every output.
func (l *BaseLogger) Close() error {
	var errs []error
	for _, o := range l.outputs {
		if err := o.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *BaseLogger) logWithFields(level Level, msg string, fields []Field) {
	entryFields := make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		entryFields[k] = v
	}
	for _, field := range fields {
		entryFields[field.Key] = field.Value
	}
	l.writeEntry(level, msg, entryFields)
}

func (l *BaseLogger) writeEntry(level Level, msg string, fields Fields) {
	caller := "unknown"
	if _, file, line, ok := runtime.Caller(3); ok {
		parts := strings.Split(file, "/")
		if len(parts) > 2 {
			file = strings.Join(parts[len(parts)-2:], "/")
		}
		caller = fmt.Sprintf("%s:%d", file, line)
	}

	entry := &Entry{
		Level:     level,
		Message:   msg,
		Fields:    fields,
		Timestamp: time.Now(),
		Caller:    caller,
	}

	for _, hook := range l.hooks {
		if !hookFires(hook, level) {
			continue
		}
		if err := hook.Fire(entry); err != nil {
			if errors.Is(err, ErrEntrySampled) {
				return
			}
			fmt.Fprintf(os.Stderr, "Error firing hook: %v\n", err)
		}
	}

	formatted, err := l.formatter.Format(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error formatting log entry: %v\n", err)
		return
	}

	for _, output := range l.outputs {
		if err := output.Write(entry, formatted); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing to log output: %v\n", err)
		}
	}
}

func hookFires(hook Hook, level Level) bool {
	for _, l := range hook.Levels() {
		if l == level {
			return true
		}
	}
	return false
}
