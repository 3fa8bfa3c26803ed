// Package id generates the 128-bit identifiers stamped on transaction
// records.
//
// An ID is [8 bytes unix ms][8 bytes sequence], big-endian, so byte order is
// generation order. The sequence number a queue assigns says where a record
// sits in one repository's log; the ID lets a replica recognise the same
// record after it has been copied elsewhere, for example by an offline
// migration.
//
//	g := id.NewGenerator()
//	g.Observe(lastStored)  // resume after the last persisted ID
//	s := g.Next().String() // 32 hex chars
package id
