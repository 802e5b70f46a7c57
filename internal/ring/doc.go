// Package ring implements the consistent-hashing ring that decides key
// ownership across shards.
//
// A Ring is a pure data structure: it holds no network connections and
// spawns no goroutines. It maps 128-bit hash points, derived from MD5
// digests of virtual-node seed strings, to shard ids, and answers
// "successor of hash(key)" lookups in O(log N) time against a sorted slice
// of those points.
//
// Concurrency: Ring is safe for concurrent use. Reads (Locate, Members) take
// an RLock; writes (Add, Remove) take a Lock so that a reader never observes
// a ring with only some of a shard's virtual nodes inserted.
package ring
