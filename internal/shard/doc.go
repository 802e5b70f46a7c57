// Package shard implements the per-shard runtime: an in-memory key-value
// map with a periodic snapshot flush and a drain-then-migrate shutdown
// path.
//
// A Shard knows nothing about the ring, the registry, or any other shard —
// it only knows its own map, its own snapshot file, and its own operational
// state (active or draining). Ownership decisions live entirely in the
// router.
//
// # Lifecycle
//
// A Shard starts by loading its snapshot file, if one exists, then begins a
// background flush loop that periodically writes its current contents back
// to that file. On shutdown it stops the flush loop, waits for in-flight
// operations to finish, and writes one final snapshot.
//
// # Draining
//
// Before a shard is removed from the ring, the router drains it. BeginDrain
// flips the shard into a state that rejects every subsequent Put, Delete
// and BulkImport with the retryable ErrDraining — Gets remain admitted
// throughout, since serving a stale read from a shard about to be migrated
// away is harmless. WaitDrain then blocks until every write admitted before
// that flip has finished.
//
// This self-enforced rejection, not just the router no longer routing to
// the shard, is what closes the race where a write is dispatched to the
// shard before the router removes it from the ring but arrives at the
// shard's handler afterward: without it, that write would land in the map
// after ExportAll has already read it for migration, and be silently
// dropped when the shard is shut down. See Shard's own doc comment for the
// concurrency mechanics (enter/wg/mu) that make the check race-free against
// BeginDrain.
package shard
