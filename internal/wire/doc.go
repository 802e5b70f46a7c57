// Package wire defines the HTTP+JSON protocol shared by the client-facing
// router API and the internal router-to-shard API, plus small helpers for
// speaking it with context-aware timeouts.
//
// Both legs speak the same shape: PUT/GET/DEL on a key, with the
// nonstandard DEL verb kept for compatibility with the protocol this
// system was distilled from. Bodies and error shapes are JSON throughout.
package wire
