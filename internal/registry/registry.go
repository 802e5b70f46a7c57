// Package registry implements the shard id -> endpoint membership map.
// See doc.go for complete package documentation.
package registry

import (
	"errors"
	"sync"
)

// ErrNotFound is returned by Endpoint when shardID has no entry.
var ErrNotFound = errors.New("shard not in registry")

// Registry is a concurrency-safe shard id -> endpoint map: the lookup a
// router performs after internal/ring's Locate has already decided which
// shard id owns a key, to find the network address to actually forward the
// request to.
//
// Thread safety: every method takes mu, so a *Registry is safe for
// concurrent use by multiple goroutines. Like Ring, it is a pure in-memory
// map with no background goroutines and nothing to shut down.
//
// Invariant: every shard id the owning Ring can return from Locate must
// have an entry here. The membership controller (internal/router) is
// responsible for keeping the two in sync — see its AddShard/RemoveShard
// ordering for why registry writes and ring writes happen in the specific
// order they do.
type Registry struct {
	mu        sync.RWMutex
	endpoints map[string]string
}

// New returns an empty registry with no shards.
func New() *Registry {
	return &Registry{endpoints: make(map[string]string)}
}

// Put records shardID's endpoint, overwriting any prior entry for the same
// id. Used by AddShard once a freshly spawned shard has confirmed
// reachable, and by tests that pre-seed a registry without going through
// the full spawn path.
func (r *Registry) Put(shardID, endpoint string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints[shardID] = endpoint
}

// Remove deletes shardID's entry. It is a no-op if shardID is absent, so
// callers do not need to check Has first — this mirrors Ring.Remove's own
// idempotency.
func (r *Registry) Remove(shardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.endpoints, shardID)
}

// Endpoint returns shardID's endpoint.
//
// Returns:
//   - endpoint, nil if shardID is registered.
//   - "", ErrNotFound if it is not — the caller's ring and registry have
//     drifted apart, or the caller is asking about a shard id that was
//     never a member.
func (r *Registry) Endpoint(shardID string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[shardID]
	if !ok {
		return "", ErrNotFound
	}
	return ep, nil
}

// Has reports whether shardID currently has an entry.
func (r *Registry) Has(shardID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.endpoints[shardID]
	return ok
}

// Len returns the number of registered shards.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.endpoints)
}
