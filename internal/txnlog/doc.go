// Package txnlog implements the repository's durable transaction log.
//
// # Overview
//
// Every logged mutation becomes a Record with a 0-based, gapless sequence.
// Two queue implementations exist:
//   - EmbeddedQueue, the active queue, persisted in Pebble under <dir>/db
//   - LegacyQueue, a frozen read-only view over older <n>.q files
//
// When a transaction directory still holds legacy files, Open places the
// legacy queue in front of the embedded one as a ConcatenatedQueue. Legacy
// records keep their sequences and embedded record s is presented as
// legacyLen+s. Appends always go to the embedded queue.
//
// Embedded keyspace:
//   - txn/m                 next sequence (be8)
//   - txn/e/{seq_be8}       entries
//   - txn/c/{consumer}      durable consumer cursors (be8)
//
// Entries are stored as: uvarint headerLen | header | payload | crc32c(header|payload).
//
// API surface (internal)
//
//	q, _ := Open(dir, Options{Logger: logger})
//	seq, _ := q.Append(ctx, Record{Kind: KindStoreElement, ObjectID: "o", ElementID: "e"})
//
//	// Tailing read; Next blocks on an active queue, io.EOF on a frozen one
//	sc := q.ReadFrom(seq)
//	rec, _ := sc.Next(ctx)
//
//	// Cursors (idempotent, no regression)
//	if cs, ok := Cursors(q); ok {
//		_ = cs.CommitCursor("replica-a", rec.Seq+1)
//	}
//
//	// Offline: fold legacy files into one embedded queue
//	_, _ = Migrate(ctx, dir, Options{}, nil)
package txnlog
