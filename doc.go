// Package stowr implements a local file-management engine that replaces
// selected files on a user's filesystem with compressed, deduplicated,
// optionally delta-encoded copies held inside an internal store, and
// restores them on demand.
//
// A file whose content lives inside the store rather than at its original
// path is said to be in the "owe" state: the engine owes the content back
// to that path. Stowr is embeddable: a host application supplies a
// [Config] and drives an [Engine] through store/owe/rename/move/delete
// operations.
//
// # Key components
//
//   - Engine: the storage manager, the single entry point a host uses.
//   - Index: persists the mapping from logical path to stored-object
//     descriptor, behind two interchangeable backends (index/document,
//     index/sqlite).
//   - objectstore.Store: durably holds compressed blobs on disk, addressed
//     by content hash, with reference counting.
//   - codec: compression under Gzip, Zstd or Lz4.
//   - delta: similarity estimation and diff/patch between file revisions.
//
// # Example usage
//
//	cfg := stowr.DefaultConfig()
//	cfg.StoragePath = "./stowr_store"
//	engine, err := stowr.Open(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	if err := engine.StoreFile(ctx, "report.pdf", false); err != nil {
//	    log.Fatal(err)
//	}
//	// ... later ...
//	if err := engine.OweFile(ctx, "report.pdf"); err != nil {
//	    log.Fatal(err)
//	}
package stowr
