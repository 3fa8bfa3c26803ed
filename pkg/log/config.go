package log

import (
	"fmt"
	"io"
	stdlog "log"
	"log/slog"
	"strings"
)

// Config declares how to build a logger.
type Config struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // text|json
	// Outputs lists "console", "null" or "file:<path>". Empty means console.
	Outputs    []string `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Redact     []string `json:"redact,omitempty" yaml:"redact,omitempty"`
	SampleInit int      `json:"sampleInitial,omitempty" yaml:"sampleInitial,omitempty"`
	SampleThen int      `json:"sampleThereafter,omitempty" yaml:"sampleThereafter,omitempty"`
}

// ApplyConfig builds a logger from cfg.
func ApplyConfig(cfg *Config) (Logger, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	opts := []LoggerOption{WithLevel(level)}
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		opts = append(opts, WithFormatter(&TextFormatter{}))
	case "json":
		opts = append(opts, WithFormatter(&JSONFormatter{}))
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
	for _, o := range cfg.Outputs {
		switch {
		case o == "console":
			opts = append(opts, WithOutput(NewConsoleOutput()))
		case o == "null":
			opts = append(opts, WithOutput(&NullOutput{}))
		case strings.HasPrefix(o, "file:"):
			fo, err := NewFileOutput(strings.TrimPrefix(o, "file:"))
			if err != nil {
				return nil, fmt.Errorf("log output %q: %w", o, err)
			}
			opts = append(opts, WithOutput(fo))
		default:
			return nil, fmt.Errorf("unknown log output %q", o)
		}
	}
	l := NewLogger(opts...).(*BaseLogger)
	if len(cfg.Redact) > 0 || cfg.SampleThen > 0 {
		ho := handlerOptions{sampler: newSampler(cfg.SampleInit, cfg.SampleThen)}
		if len(cfg.Redact) > 0 {
			ho.redact = make(map[string]struct{}, len(cfg.Redact))
			for _, k := range cfg.Redact {
				ho.redact[k] = struct{}{}
			}
		}
		l.slog = slog.New(newBridgeHandler(l, ho))
	}
	return l, nil
}

// stdWriter adapts a Logger to io.Writer for the standard library logger.
type stdWriter struct {
	logger Logger
	level  Level
}

func (w *stdWriter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")
	switch w.level {
	case DebugLevel:
		w.logger.Debug(msg)
	case WarnLevel:
		w.logger.Warn(msg)
	case ErrorLevel, FatalLevel:
		w.logger.Error(msg)
	default:
		w.logger.Info(msg)
	}
	return len(p), nil
}

// ToStdLogger returns a *log.Logger that writes through l at the given level.
func ToStdLogger(l Logger, level Level) *stdlog.Logger {
	return stdlog.New(&stdWriter{logger: l, level: level}, "", 0)
}

// RedirectStdLog routes the standard library's global logger through l and
// returns a function restoring the previous writer.
func RedirectStdLog(l Logger) func() {
	prevOut := stdlog.Writer()
	prevFlags := stdlog.Flags()
	prevPrefix := stdlog.Prefix()
	stdlog.SetOutput(&stdWriter{logger: l, level: InfoLevel})
	stdlog.SetFlags(0)
	stdlog.SetPrefix("")
	return func() {
		stdlog.SetOutput(prevOut)
		stdlog.SetFlags(prevFlags)
		stdlog.SetPrefix(prevPrefix)
	}
}

var _ io.Writer = (*stdWriter)(nil)
