// Package storagelog is the mutation facade of the repository. Every
// mutation runs against a Backend first; when the caller asks for it, a
// txnlog.Record describing the applied change is appended afterwards.
//
// Each operation has two call shapes, a boolean one and one taking Metadata,
// and both reduce to a Txn:
//
//	sl.SetAttributes(ctx, "obj", "", attrs, true, 0)
//	sl.SetAttributesWithMetadata(ctx, "obj", "", attrs, storagelog.Metadata{"user": "u"}, 0)
//
// A mutation that fails appends nothing. A mutation that succeeds but cannot
// be logged returns a ReplicationLoggingFailure error.
package storagelog
