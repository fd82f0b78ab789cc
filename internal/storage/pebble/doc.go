// Package pebblestore wraps a Pebble database with a sync policy, prefix
// scans and an optional Observer for read and commit latencies.
//
//	db, err := pebblestore.Open(pebblestore.Options{Dir: "./data"})
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	b := db.NewBatch()
//	_ = b.Set([]byte("k"), []byte("v"), nil)
//	err = db.Commit(ctx, b)
//	b.Close()
package pebblestore
