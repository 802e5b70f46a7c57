// Package router implements the stateless request router and its
// membership controller for a ringkv cluster.
//
// The Router is the only component a client ever talks to. It holds a
// reference to a Ring (internal/ring) and a Registry (internal/registry)
// and nothing else: no cache, no queue, no local copy of any key's value.
// Per request it:
//
//  1. Locates the owning shard id for the key via Ring.Locate.
//  2. Resolves that shard id to a network endpoint via Registry.Endpoint.
//  3. Forwards the operation to that endpoint with a bounded timeout
//     (ForwardTimeout) and returns whatever the shard returned, success or
//     error, unchanged.
//
// There is no retry anywhere in this package. A forwarding failure —
// timeout, connection refused, a 503 from a draining shard — is surfaced
// to the client as-is; the caller decides whether to retry, and against
// what, after re-resolving the key.
//
// Architecture:
//
//	┌────────────────────────────────────────────┐
//	│                  Router                     │
//	├──────────────────────────────────────────────┤
//	│  ring      *ring.Ring        (key -> shard)  │
//	│  registry  *registry.Registry (shard -> addr)│
//	│  client    *wire.Client       (HTTP forward)  │
//	├──────────────────────────────────────────────┤
//	│  key --Locate--> shardID --Endpoint--> addr   │
//	│  addr --wire.ShardClient--> shard response    │
//	└──────────────────────────────────────────────┘
//
// Membership changes — adding or removing a shard — are handled by a
// separate Controller rather than by Router itself, even though a
// Controller always operates on one Router's Ring and Registry. The split
// exists because membership changes are comparatively rare, multi-step,
// and fallible in ways a single Put/Get/Delete forward is not: AddShard
// spawns a process and polls it for reachability before it is safe to
// route to, and RemoveShard drains, exports, migrates and shuts down a
// shard in a specific order chosen to avoid losing data (see
// Controller.RemoveShard's doc comment, and the migration race decision in
// this repository's design notes). Keeping that machinery out of Router
// keeps the hot path — Put/Get/Delete — trivial to read in isolation.
//
// Thread safety: Router and Controller are both safe for concurrent use.
// Neither holds any lock of its own; all synchronization lives inside Ring
// and Registry, which Router/Controller call into for every operation.
package router
