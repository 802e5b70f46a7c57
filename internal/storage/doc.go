// Package storage defines the key-value storage interface used by a shard
// and provides the in-memory implementation, plus a YAML-backed snapshot
// codec for crash recovery.
//
// Store is intentionally minimal: no schema, no TTL, no transactions. Values
// are plain strings; absence and an explicit empty string are distinct —
// Get on an absent key returns ErrKeyNotFound.
package storage
