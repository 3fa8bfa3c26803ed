// Package pebblestore wraps Pebble with a fixed fsync policy, batch commits
// that honour an already-canceled context, prefix scans and a metrics hook.
// The embedded transaction queue and the object store each own one DB.
//
//	db, err := pebblestore.Open(pebblestore.Options{
//	    DataDir: dir,
//	    Fsync:   pebblestore.FsyncModeAlways,
//	})
//	if err != nil { /* handle */ }
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set(key, val, nil)
//	err = db.CommitBatch(ctx, b)
//	b.Close()
//
//	k, v, ok, _ := db.LastWithPrefix([]byte("e/"))
package pebblestore
