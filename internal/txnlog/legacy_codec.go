package txnlog

import (
	"fmt"
	"strconv"
	"strings"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
)

// Legacy queue files hold one transaction per line in one of two forms:
//
//	1700000000000|2|obj/1|content                    (pipe form, backslash escapes)
//	txn:a=2&at=1700000000001&oid=obj/1&ts=...&de=... (header form, %XX escapes)
//
// Header form keys: a (action), oid, ts, de, at, kv.<name> (attributes
// affected) and md.<name> (transaction metadata).

func decodeLegacyLine(line string) (Record, error) {
	if strings.HasPrefix(line, "t") {
		return decodeHeaderLine(line)
	}
	return decodePipeLine(line)
}

func decodePipeLine(line string) (Record, error) {
	fields := strings.SplitN(line, "|", 5)
	if len(fields) < 4 {
		return Record{}, fmt.Errorf("want 4 fields, got %d", len(fields))
	}
	ts, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Record{}, fmt.Errorf("timestamp: %w", err)
	}
	kind, err := parseLegacyAction(fields[1])
	if err != nil {
		return Record{}, err
	}
	return Record{
		Kind:      kind,
		Timestamp: ts,
		ObjectID:  unbackslash(fields[2]),
		ElementID: unbackslash(fields[3]),
	}, nil
}

func decodeHeaderLine(line string) (Record, error) {
	colon := strings.IndexByte(line, ':')
	if colon < 0 {
		return Record{}, fmt.Errorf("header line without message type")
	}
	var (
		rec       Record
		sawAction bool
		kv        []string
		kvVals    = map[string]string{}
	)
	for _, item := range strings.Split(line[colon+1:], "&") {
		if item == "" {
			continue
		}
		name, value, _ := strings.Cut(item, "=")
		name, value = unescapePercent(name), unescapePercent(value)
		switch {
		case name == "a":
			k, err := parseLegacyAction(value)
			if err != nil {
				return Record{}, err
			}
			rec.Kind, sawAction = k, true
		case name == "oid":
			rec.ObjectID = value
		case name == "de":
			rec.ElementID = value
		case name == "ts":
			ts, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Record{}, fmt.Errorf("ts: %w", err)
			}
			rec.Timestamp = ts
		case name == "at":
			at, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return Record{}, fmt.Errorf("at: %w", err)
			}
			rec.ActualTime = at
		case strings.HasPrefix(name, "kv."):
			k := name[len("kv."):]
			if _, dup := kvVals[k]; !dup {
				kv = append(kv, k)
			}
			kvVals[k] = value
		case strings.HasPrefix(name, "md."):
			if rec.Metadata == nil {
				rec.Metadata = map[string]string{}
			}
			rec.Metadata[name[len("md."):]] = value
		}
	}
	if !sawAction {
		return Record{}, fmt.Errorf("header line without action")
	}
	if len(kv) > 0 {
		if rec.Kind == KindDeleteAttributes {
			rec.Keys = kv
		} else {
			rec.Attributes = kvVals
		}
	}
	return rec, nil
}

func parseLegacyAction(s string) (Kind, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || !Kind(n).Valid() {
		return 0, fmt.Errorf("unknown action %q", s)
	}
	return Kind(n), nil
}

func unbackslash(s string) string {
	if strings.IndexByte(s, '\\') < 0 {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case 't':
			b.WriteByte('\t')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func unescapePercent(s string) string {
	if strings.IndexByte(s, '%') < 0 {
		return s
	}
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) {
			if v, err := strconv.ParseUint(s[i+1:i+3], 16, 8); err == nil {
				out = append(out, byte(v))
				i += 2
				continue
			}
		}
		out = append(out, s[i])
	}
	return string(out)
}

func legacyCorruption(path string, offset int64, err error) error {
	return doerrors.CorruptionDetected(fmt.Sprintf("legacy queue %s: bad record at offset %d", path, offset), err).
		WithDetail("file", path).
		WithDetail("offset", offset)
}
