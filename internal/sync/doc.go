// Package sync reconciles a live store subtree with an in-memory tree snapshot.
//
// # Overview
//
// Two operations move data between the store and package tree:
//
//	live store ── Read ──→ *tree.Node        (backup path)
//	*tree.Node ── Apply ─→ live store        (restore path)
//
// Read walks a key and produces a fresh snapshot. Values keep the store's
// enumeration order so that a stable store produces byte-identical documents
// run after run.
//
// Apply writes a snapshot onto a key in one of two modes:
//
//   - merge (strict=false): add and overwrite only; nothing is ever deleted
//   - strict (strict=true): add and overwrite, then delete every value and
//     every subkey tree that the snapshot does not name
//
// At each level all sets and all recursion into subkeys happen before any
// deletion, so a failure while adding never leaves legitimate entries deleted.
//
// # Handles
//
// Every child handle opened during Read or Apply is released with defer
// before control returns to the caller, on success and on error alike.
//
// # Errors
//
// Any single failure aborts the whole operation for that subtree and is
// returned wrapped with the key path. There is no partial-success
// bookkeeping; callers retry the whole operation.
//
// # Usage
//
//	syncer := sync.New(nil)
//
//	snapshot, err := syncer.Read(root)
//	if err != nil {
//	    return err
//	}
//
//	stats, err := syncer.Apply(snapshot, otherRoot, true)
package sync
