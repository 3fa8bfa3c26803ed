package txnlog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"strings"

	doerrors "github.com/EUDAT-DTR/DTR-sub001/internal/errors"
	"github.com/EUDAT-DTR/DTR-sub001/pkg/id"
)

// Kind is the mutation a record describes. The numeric values match the
// action codes written by legacy queue files.
type Kind uint8

const (
	KindCreateObject     Kind = 0
	KindDeleteObject     Kind = 1
	KindStoreElement     Kind = 2
	KindDeleteElement    Kind = 3
	KindComment          Kind = 4
	KindSetAttributes    Kind = 5
	KindDeleteAttributes Kind = 6
	KindLoggedAction     Kind = 7
)

var kindNames = [...]string{
	KindCreateObject:     "CREATE_OBJECT",
	KindDeleteObject:     "DELETE_OBJECT",
	KindStoreElement:     "STORE_ELEMENT",
	KindDeleteElement:    "DELETE_ELEMENT",
	KindComment:          "COMMENT",
	KindSetAttributes:    "SET_ATTRIBUTES",
	KindDeleteAttributes: "DELETE_ATTRIBUTES",
	KindLoggedAction:     "LOGGED_ACTION",
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool { return int(k) < len(kindNames) }

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
	return kindNames[k]
}

// ParseKind accepts the names returned by String, case-insensitively.
func ParseKind(s string) (Kind, error) {
	for i, n := range kindNames {
		if strings.EqualFold(n, s) {
			return Kind(i), nil
		}
	}
	return 0, doerrors.InvalidArgument("unknown record kind " + s)
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Record is one logged mutation. Seq is assigned by the queue on append and
// never changes afterwards.
type Record struct {
	Seq       uint64 `json:"seq"`
	ID        id.ID  `json:"id"`
	Kind      Kind   `json:"kind"`
	ObjectID  string `json:"objectId"`
	ElementID string `json:"elementId,omitempty"`
	// Timestamp is the caller's mutation time in epoch milliseconds. It is
	// informational; Seq is the ordering authority.
	Timestamp int64 `json:"ts"`
	// ActualTime is the wall clock when the record was appended.
	ActualTime int64             `json:"actualTime,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Keys       []string          `json:"keys,omitempty"`
	PayloadRef string            `json:"payloadRef,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Stored value: varint headerLen | header | payload | crc32c(header|payload)
// header:  kind(1) | ts(8) | actualTime(8) | id(16)
// payload: JSON of recordBody

const headerLen = 1 + 8 + 8 + 16

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

type recordBody struct {
	ObjectID   string            `json:"o"`
	ElementID  string            `json:"e,omitempty"`
	Attributes map[string]string `json:"a,omitempty"`
	Keys       []string          `json:"k,omitempty"`
	PayloadRef string            `json:"p,omitempty"`
	Metadata   map[string]string `json:"m,omitempty"`
}

func encodeRecord(r Record) ([]byte, error) {
	var hdr [headerLen]byte
	hdr[0] = byte(r.Kind)
	binary.BigEndian.PutUint64(hdr[1:9], uint64(r.Timestamp))
	binary.BigEndian.PutUint64(hdr[9:17], uint64(r.ActualTime))
	copy(hdr[17:], r.ID[:])
	payload, err := json.Marshal(recordBody{
		ObjectID:   r.ObjectID,
		ElementID:  r.ElementID,
		Attributes: r.Attributes,
		Keys:       r.Keys,
		PayloadRef: r.PayloadRef,
		Metadata:   r.Metadata,
	})
	if err != nil {
		return nil, doerrors.InvalidArgument("encode record: " + err.Error())
	}
	return encodeFrame(hdr[:], payload), nil
}

func decodeRecord(seq uint64, b []byte) (Record, error) {
	hdr, payload, ok := decodeFrame(b)
	if !ok || len(hdr) != headerLen {
		return Record{}, doerrors.CorruptionDetected(fmt.Sprintf("record %d: bad frame", seq), nil).WithDetail("seq", seq)
	}
	r := Record{
		Seq:        seq,
		Kind:       Kind(hdr[0]),
		Timestamp:  int64(binary.BigEndian.Uint64(hdr[1:9])),
		ActualTime: int64(binary.BigEndian.Uint64(hdr[9:17])),
	}
	copy(r.ID[:], hdr[17:])
	if !r.Kind.Valid() {
		return Record{}, doerrors.CorruptionDetected(fmt.Sprintf("record %d: unknown kind %d", seq, hdr[0]), nil).WithDetail("seq", seq)
	}
	var body recordBody
	if err := json.Unmarshal(payload, &body); err != nil {
		return Record{}, doerrors.CorruptionDetected(fmt.Sprintf("record %d: bad payload", seq), err).WithDetail("seq", seq)
	}
	r.ObjectID = body.ObjectID
	r.ElementID = body.ElementID
	r.Attributes = body.Attributes
	r.Keys = body.Keys
	r.PayloadRef = body.PayloadRef
	r.Metadata = body.Metadata
	return r, nil
}

func encodeFrame(header, payload []byte) []byte {
	out := make([]byte, 0, binary.MaxVarintLen64+len(header)+len(payload)+4)
	out = binary.AppendUvarint(out, uint64(len(header)))
	out = append(out, header...)
	out = append(out, payload...)
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	return binary.BigEndian.AppendUint32(out, crc)
}

func decodeFrame(b []byte) (header, payload []byte, ok bool) {
	if len(b) < 1+4 {
		return nil, nil, false
	}
	hlen, n := binary.Uvarint(b)
	if n <= 0 || uint64(len(b)) < uint64(n)+hlen+4 {
		return nil, nil, false
	}
	header = b[n : n+int(hlen)]
	payload = b[n+int(hlen) : len(b)-4]
	crc := crc32.Update(0, castagnoli, header)
	crc = crc32.Update(crc, castagnoli, payload)
	if crc != binary.BigEndian.Uint32(b[len(b)-4:]) {
		return nil, nil, false
	}
	return header, payload, true
}
