package log

import (
	"context"
	"log/slog"
	"runtime"
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const redacted = "[REDACTED]"

type handlerOptions struct {
	redact  map[string]struct{}
	sampler *sampler
}

// bridgeHandler is the slog.Handler behind BaseLogger. It turns records into
// Entries for the logger's formatter and outputs.
type bridgeHandler struct {
	logger *BaseLogger
	attrs  []slog.Attr
	opts   handlerOptions
}

func newBridgeHandler(logger *BaseLogger, opts handlerOptions) *bridgeHandler {
	return &bridgeHandler{logger: logger, opts: opts}
}

func (h *bridgeHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.level <= fromSlogLevel(level)
}

func (h *bridgeHandler) Handle(_ context.Context, r slog.Record) error {
	if h.opts.sampler != nil && !h.opts.sampler.allow(r.Level, r.Message) {
		return nil
	}
	fields := make(Fields, len(h.attrs)+r.NumAttrs())
	put := func(a slog.Attr) bool {
		if _, ok := h.opts.redact[a.Key]; ok {
			fields[a.Key] = redacted
			return true
		}
		fields[a.Key] = a.Value.Any()
		return true
	}
	for _, a := range h.attrs {
		put(a)
	}
	r.Attrs(put)

	entry := &Entry{
		Level:     fromSlogLevel(r.Level),
		Message:   r.Message,
		Fields:    fields,
		Timestamp: r.Time,
		Caller:    callerOf(r.PC),
	}
	formatted, err := h.logger.formatter.Format(entry)
	if err != nil {
		return err
	}
	for _, out := range h.logger.outputs {
		_ = out.Write(entry, formatted)
	}
	return nil
}

func (h *bridgeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	nh := *h
	nh.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return &nh
}

// WithGroup is accepted but groups are flattened.
func (h *bridgeHandler) WithGroup(string) slog.Handler { return h }

func callerOf(pc uintptr) string {
	if pc == 0 {
		// BaseLogger.log -> Info -> caller
		if _, file, line, ok := runtime.Caller(5); ok {
			return file + ":" + strconv.Itoa(line)
		}
		return ""
	}
	frame, _ := runtime.CallersFrames([]uintptr{pc}).Next()
	if frame.File == "" {
		return ""
	}
	return frame.File + ":" + strconv.Itoa(frame.Line)
}

// sampler lets the first `initial` entries with the same level and message
// through, then every `thereafter`-th one. Append retry storms are the usual
// reason to enable it.
type sampler struct {
	mu         sync.Mutex
	initial    uint64
	thereafter uint64
	counts     map[uint64]uint64
}

func newSampler(initial, thereafter int) *sampler {
	if thereafter <= 0 {
		return nil
	}
	if initial < 0 {
		initial = 0
	}
	return &sampler{
		initial:    uint64(initial),
		thereafter: uint64(thereafter),
		counts:     make(map[uint64]uint64),
	}
}

func (s *sampler) allow(level slog.Level, message string) bool {
	d := xxhash.New()
	_, _ = d.WriteString(level.String())
	_, _ = d.WriteString(message)
	key := d.Sum64()

	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.counts[key]
	s.counts[key] = n + 1
	if n < s.initial {
		return true
	}
	return (n-s.initial)%s.thereafter == 0
}

func toSlogLevel(level Level) slog.Level {
	switch level {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel, FatalLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func fromSlogLevel(level slog.Level) Level {
	switch {
	case level < slog.LevelInfo:
		return DebugLevel
	case level < slog.LevelWarn:
		return InfoLevel
	case level < slog.LevelError:
		return WarnLevel
	default:
		return ErrorLevel
	}
}

func attrsOf(fields []Field) []slog.Attr {
	if len(fields) == 0 {
		return nil
	}
	attrs := make([]slog.Attr, len(fields))
	for i, f := range fields {
		attrs[i] = slog.Any(f.Key, f.Value)
	}
	return attrs
}
