package log

import (
	"context"
	"log/slog"
	"os"
)

func (l *BaseLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	l.slog.LogAttrs(context.Background(), toSlogLevel(level), msg, attrsOf(fields)...)
}

func (l *BaseLogger) Debug(msg string, fields ...Field) { l.log(DebugLevel, msg, fields) }
func (l *BaseLogger) Info(msg string, fields ...Field)  { l.log(InfoLevel, msg, fields) }
func (l *BaseLogger) Warn(msg string, fields ...Field)  { l.log(WarnLevel, msg, fields) }
func (l *BaseLogger) Error(msg string, fields ...Field) { l.log(ErrorLevel, msg, fields) }

func (l *BaseLogger) Fatal(msg string, fields ...Field) {
	l.log(FatalLevel, msg, fields)
	os.Exit(1)
}

func (l *BaseLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	nl := *l
	nl.fields = make(Fields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		nl.fields[k] = v
	}
	attrs := make([]any, 0, len(fields))
	for _, f := range fields {
		nl.fields[f.Key] = f.Value
		attrs = append(attrs, slog.Any(f.Key, f.Value))
	}
	nl.slog = l.slog.With(attrs...)
	return &nl
}

func (l *BaseLogger) WithComponent(component string) Logger {
	return l.With(Component(component))
}

// SetLevel changes the level of this logger only; derived loggers keep the
// level they were created with.
func (l *BaseLogger) SetLevel(level Level) { l.level = level }

func (l *BaseLogger) GetLevel() Level { return l.level }

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() Logger {
	return NewLogger(WithLevel(FatalLevel+1), WithOutput(NullOutput{}))
}
