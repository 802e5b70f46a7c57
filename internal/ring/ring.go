// Package ring implements consistent hashing with virtual nodes for
// assigning keys to shards. See doc.go for complete package documentation.
package ring

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/exp/slices"
)

// Replicas is the default number of virtual nodes synthesized per shard
// when New is called with a non-positive replica count.
//
// Higher values spread a shard's key range across more, smaller arcs of
// the ring, which smooths out the fraction of keys that move when a shard
// joins or leaves at the cost of a larger points slice per shard (and
// therefore a slower Add/Remove: each virtual node is a binary search plus
// an insert into or delete from the sorted slice, which shifts up to
// totalPoints entries). 100 is
// the value used throughout this codebase's own tests and suits clusters
// from a handful up to a few dozen shards.
const Replicas = 100

// Point is a 128-bit hash point on the ring: the raw bytes of an MD5 digest,
// compared as a big-endian unsigned integer (i.e. lexicographically via
// bytes.Compare). Two virtual nodes, or a virtual node and a key, collide
// only if their MD5 digests are bit-for-bit identical.
type Point [md5.Size]byte

func comparePoints(a, b Point) int {
	return bytes.Compare(a[:], b[:])
}

// virtualNodeSeed is the single call site for the virtual-node hash input.
// The separator is fixed as "_" everywhere in this codebase, picking one
// consistent form instead of mixing "_" and ":" across call sites.
func virtualNodeSeed(shardID string, i int) string {
	return fmt.Sprintf("%s_%d", shardID, i)
}

func hashPoint(shardID string, i int) Point {
	return md5.Sum([]byte(virtualNodeSeed(shardID, i)))
}

func hashKey(key string) Point {
	return md5.Sum([]byte(key))
}

// Ring maps hash points to shard ids via consistent hashing with a
// configurable number of virtual nodes per shard.
//
// Data layout:
//   - owners maps each occupied Point to the shard id that currently holds
//     it.
//   - points is the sorted ascending slice of every key in owners, kept in
//     lockstep with it so Locate can binary-search it directly.
//   - members counts, per shard id, how many of its intended `replicas`
//     virtual-node slots it currently actually owns — a number that can
//     fall below replicas when another shard's virtual node collides onto
//     the same Point (see Add).
//
// Thread safety: every method takes mu, so a *Ring is safe for concurrent
// use by multiple goroutines. It is a pure in-memory data structure — no
// I/O, no background goroutines, no channels — so there is nothing to shut
// down and no lifecycle beyond New.
type Ring struct {
	mu       sync.RWMutex
	owners   map[Point]string
	members  map[string]int // shard id -> number of virtual-node slots it currently owns
	points   []Point        // sorted ascending, kept in sync with owners
	replicas int
}

// New creates an empty ring with the given number of virtual nodes per
// shard.
//
// Parameters:
//   - replicas: virtual nodes synthesized per shard on Add. A value <= 0
//     falls back to Replicas.
//
// Returns an empty *Ring with no shards; Locate on it always reports
// ok=false until at least one shard has been added.
func New(replicas int) *Ring {
	if replicas <= 0 {
		replicas = Replicas
	}
	return &Ring{
		replicas: replicas,
		owners:   make(map[Point]string),
		members:  make(map[string]int),
	}
}

// Replicas returns the configured virtual-node count this ring was
// constructed with.
func (r *Ring) Replicas() int {
	return r.replicas
}

// Add inserts shardID's `replicas` virtual nodes into the ring.
//
// Idempotency: a no-op if shardID is already a member (checked via
// members, not owners) — it must not duplicate entries or double-count an
// existing shard's slots.
//
// Collision handling: a virtual node's hash point can coincide with one
// already owned by a different shard. When that happens the later
// insertion wins the slot outright — the colliding shard's member count is
// decremented (and its entry removed from members if it reaches zero) and
// ownership of that single Point transfers to shardID. This is a silent,
// accepted imbalance: it shows up as noise around the expected 1/N
// fraction each shard should own, not an error condition.
//
// Thread safety: takes an exclusive lock for the whole call; Add does not
// interleave with any other Ring method.
func (r *Ring) Add(shardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.members[shardID] > 0 {
		return
	}

	for i := 0; i < r.replicas; i++ {
		p := hashPoint(shardID, i)

		if prevOwner, exists := r.owners[p]; exists {
			if prevOwner == shardID {
				continue
			}
			r.members[prevOwner]--
			if r.members[prevOwner] <= 0 {
				delete(r.members, prevOwner)
			}
			r.owners[p] = shardID
			r.members[shardID]++
			continue
		}

		idx, found := slices.BinarySearchFunc(r.points, p, comparePoints)
		if !found {
			r.points = slices.Insert(r.points, idx, p)
		}
		r.owners[p] = shardID
		r.members[shardID]++
	}
}

// Remove deletes shardID's virtual nodes from the ring.
//
// Idempotency: safe to call on a shard id that is not (or no longer) a
// member — each of its would-be virtual-node points is simply not found in
// owners and skipped.
//
// Collision handling: only Points this shard currently owns are removed.
// If an Add collision previously handed one of shardID's nominal slots to
// a different shard, that slot is left untouched here — deleting it would
// incorrectly evict the shard that actually holds it.
//
// Thread safety: takes an exclusive lock for the whole call.
func (r *Ring) Remove(shardID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := 0; i < r.replicas; i++ {
		p := hashPoint(shardID, i)

		cur, exists := r.owners[p]
		if !exists || cur != shardID {
			continue
		}

		delete(r.owners, p)
		if idx, found := slices.BinarySearchFunc(r.points, p, comparePoints); found {
			r.points = slices.Delete(r.points, idx, idx+1)
		}
	}

	delete(r.members, shardID)
}

// Locate returns the shard id owning key.
//
// Algorithm: hashes key to a Point, then finds the least upper bound of
// that Point among the ring's sorted points via binary search, wrapping
// around to index 0 when the key's hash exceeds every existing point (the
// ring is circular, not a line). This is the one lookup every Put, Get and
// Delete forwarded by the router goes through.
//
// Returns:
//   - shardID, true if the ring has at least one member.
//   - "", false if the ring is empty — there is no shard to own any key.
//
// Thread safety: takes a read lock; many goroutines may call Locate
// concurrently, but a concurrent Add/Remove will block until they finish
// (and vice versa).
func (r *Ring) Locate(key string) (shardID string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.points) == 0 {
		return "", false
	}

	h := hashKey(key)
	idx, found := slices.BinarySearchFunc(r.points, h, comparePoints)
	if !found && idx == len(r.points) {
		idx = 0
	}
	return r.owners[r.points[idx]], true
}

// Members returns the distinct shard ids currently present in the ring,
// sorted lexicographically for deterministic output (callers that log or
// compare membership snapshots would otherwise see map-iteration-order
// noise between two otherwise-identical calls).
func (r *Ring) Members() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.members))
	for id := range r.members {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the total number of virtual-node points currently held
// across every member shard — not the number of distinct shards; use
// len(Members()) for that.
func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.points)
}
