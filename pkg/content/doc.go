// Package content defines the content repository model that holds operate on:
// nodes (records and containers), holds, and the transactional store the
// hold-membership engine mutates.
//
// # Nodes
//
// Every node is classified once into a Kind:
//
//   - record: a leaf item that can be frozen
//   - container: a folder-like item whose direct children may be frozen
//   - other: anything else; never a valid bulk target
//
// A node is frozen when at least one hold holds it directly (HeldBy > 0) or
// when its parent container is directly held (Inherited). Containers carry a
// lazily created HeldChildren counter that tracks how many direct children
// are currently frozen.
//
// # Transactions
//
// All hold-membership mutations go through Store.RunInTransaction. The
// membership change and the counter updates it causes either commit together
// or not at all:
//
//	err := store.RunInTransaction(ctx, func(tx content.Tx) error {
//	    added, err := tx.AddHeld(ctx, hold, item)
//	    if err != nil {
//	        return err
//	    }
//	    ...
//	})
//
// Implementations live in the storage subpackage (memory and SQLite).
package content
