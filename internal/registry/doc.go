// Package registry implements the membership registry: the mapping from
// shard id to the endpoint where that shard can be reached.
//
// The registry is mutated only by the router's membership controller, and
// read by every data-plane request. It carries no hashing logic of its own
// — that lives in internal/ring — and must always stay consistent with the
// ring: every shard id the ring can return from Locate must have an entry
// here.
package registry
