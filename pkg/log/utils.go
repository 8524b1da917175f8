package log

import (
	"io"
	stdlog "log"
	"strings"
)

// ToStdLogger adapts a Logger to a standard library *log.Logger at the given level, for
// http.Server.ErrorLog and similar hooks.
func ToStdLogger(logger Logger, level Level) *stdlog.Logger {
	return stdlog.New(StdLogWriter(logger, level), "", 0)
}

// StdLogWriter creates an io.Writer that logs each write as one entry at the given level.
func StdLogWriter(logger Logger, level Level) io.Writer {
	return &leveledLogAdapter{logger: logger, level: level}
}

type leveledLogAdapter struct {
	logger Logger
	level  Level
}

func (a *leveledLogAdapter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")

	switch a.level {
	case DebugLevel:
		a.logger.Debug(msg)
	case WarnLevel:
		a.logger.Warn(msg)
	case ErrorLevel, FatalLevel:
		// Fatal would exit the process.
		a.logger.Error(msg)
	default:
		a.logger.Info(msg)
	}
	return len(p), nil
}
