package id

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"math"
	"sync"
	"time"
)

// ID is 16 bytes big-endian: [8 bytes unix ms][8 bytes sequence]. Byte order
// is generation order.
type ID [16]byte

func (i ID) Bytes() []byte { return bytes.Clone(i[:]) }

// String is the 32-character lowercase hex form.
func (i ID) String() string { return hex.EncodeToString(i[:]) }

func (i ID) IsZero() bool { return i == ID{} }

// Time is the millisecond timestamp embedded in the ID.
func (i ID) Time() time.Time { return time.UnixMilli(int64(i.ms())) }

func (i ID) ms() uint64  { return binary.BigEndian.Uint64(i[0:8]) }
func (i ID) seq() uint64 { return binary.BigEndian.Uint64(i[8:16]) }

func (i ID) Compare(other ID) int { return bytes.Compare(i[:], other[:]) }

func (i ID) MarshalText() ([]byte, error) { return []byte(i.String()), nil }

// UnmarshalText parses the hex form. Empty input yields the zero ID, which
// is what records written before IDs existed decode to.
func (i *ID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*i = ID{}
		return nil
	}
	v, err := ParseHex(string(b))
	if err != nil {
		return err
	}
	*i = v
	return nil
}

func ParseHex(s string) (ID, error) {
	var out ID
	if len(s) != 2*len(out) {
		return out, fmt.Errorf("id: want 32 hex chars, got %d", len(s))
	}
	if _, err := hex.Decode(out[:], []byte(s)); err != nil {
		return ID{}, fmt.Errorf("id: %w", err)
	}
	return out, nil
}

func FromBytes(b []byte) (ID, error) {
	var out ID
	if len(b) != len(out) {
		return out, fmt.Errorf("id: want 16 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func makeID(ms int64, seq uint64) ID {
	var id ID
	binary.BigEndian.PutUint64(id[0:8], uint64(ms))
	binary.BigEndian.PutUint64(id[8:16], seq)
	return id
}

// Generator issues strictly increasing IDs. It never goes backwards, even when
// the wall clock does or when seeded from IDs persisted by an earlier process.
type Generator struct {
	mu    sync.Mutex
	clock func() int64
	last  int64
	seq   uint64
}

func NewGenerator() *Generator {
	return &Generator{clock: func() int64 { return time.Now().UnixMilli() }}
}

// Observe raises the generator's floor so the next ID sorts after seen.
// Queues call it on open with the ID of their last stored record.
func (g *Generator) Observe(seen ID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	ms, seq := int64(seen.ms()), seen.seq()
	if ms > g.last || (ms == g.last && seq > g.seq) {
		g.last, g.seq = ms, seq
	}
}

// Next returns a new ID. On sequence overflow within one millisecond it waits
// for the clock to move on.
func (g *Generator) Next() ID {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.clock()
	switch {
	case ms > g.last:
		g.seq = 0
	case g.seq < math.MaxUint64:
		ms = g.last
		g.seq++
	default:
		for ms <= g.last {
			time.Sleep(time.Millisecond / 8)
			ms = g.clock()
		}
		g.seq = 0
	}
	g.last = ms
	return makeID(ms, g.seq)
}
