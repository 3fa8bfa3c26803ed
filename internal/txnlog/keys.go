package txnlog

import (
	"encoding/binary"
)

// Keyspace of the embedded queue store.
//
// Layout (byte-wise, lexicographically sortable):
// - txn/m                 next sequence to assign (be8)
// - txn/e/{seq_be8}       entries
// - txn/c/{consumer}      durable consumer cursors (be8)

var (
	metaKey      = []byte("txn/m")
	entryPrefix  = []byte("txn/e/")
	cursorPrefix = []byte("txn/c/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

// keyEntry builds the entry key with a big-endian sequence for proper ordering.
func keyEntry(seq uint64) []byte {
	k := make([]byte, 0, len(entryPrefix)+8)
	k = append(k, entryPrefix...)
	return appendBE8(k, seq)
}

// seqFromEntryKey extracts the sequence from an entry key.
func seqFromEntryKey(k []byte) (uint64, bool) {
	if len(k) != len(entryPrefix)+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(k[len(entryPrefix):]), true
}

func keyCursor(consumer string) []byte {
	k := make([]byte, 0, len(cursorPrefix)+len(consumer))
	k = append(k, cursorPrefix...)
	return append(k, consumer...)
}
