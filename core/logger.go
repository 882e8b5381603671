package core

import (
	"slices"

	"github.com/hupe1980/agentflow/logging"
)

// loggerAdapter gives RunContext and ToolContext their LogDebug/LogInfo/...
// helpers. Scope attributes (node path, loop iteration) are appended to every
// entry; setting an attribute again replaces its value.
type loggerAdapter struct {
	logger logging.Logger
	attrs  []any
}

func newLoggerAdapter(l logging.Logger) *loggerAdapter {
	if l == nil {
		l = logging.NoOpLogger{}
	}
	return &loggerAdapter{logger: l}
}

// with returns a copy carrying key=value.
func (l *loggerAdapter) with(key string, value any) *loggerAdapter {
	attrs := slices.Clone(l.attrs)
	for i := 0; i+1 < len(attrs); i += 2 {
		if attrs[i] == key {
			attrs[i+1] = value
			return &loggerAdapter{logger: l.logger, attrs: attrs}
		}
	}
	return &loggerAdapter{logger: l.logger, attrs: append(attrs, key, value)}
}

// Logger returns a logger carrying the scope attributes.
func (l *loggerAdapter) Logger() logging.Logger {
	if len(l.attrs) == 0 {
		return l.logger
	}
	return logging.With(l.logger, l.attrs...)
}

func (l *loggerAdapter) args(args []any) []any {
	if len(l.attrs) == 0 {
		return args
	}
	return append(slices.Clip(args), l.attrs...)
}

// LogDebug logs a debug message.
func (l *loggerAdapter) LogDebug(msg string, args ...any) { l.logger.Debug(msg, l.args(args)...) }

// LogInfo logs an info message.
func (l *loggerAdapter) LogInfo(msg string, args ...any) { l.logger.Info(msg, l.args(args)...) }

// LogWarn logs a warning message.
func (l *loggerAdapter) LogWarn(msg string, args ...any) { l.logger.Warn(msg, l.args(args)...) }

// LogError logs an error message.
func (l *loggerAdapter) LogError(msg string, args ...any) { l.logger.Error(msg, l.args(args)...) }
