package router

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ringkv/ringkv/internal/registry"
	"github.com/ringkv/ringkv/internal/ring"
	"github.com/ringkv/ringkv/internal/wire"
)

// ForwardTimeout is the per-request timeout applied to router-to-shard
// forwarding. It bounds how long a client's Put/Get/Delete can block behind
// a slow or unreachable shard; there is no retry after it expires, the
// caller gets the timeout error back directly.
const ForwardTimeout = 5 * time.Second

// Router is the stateless data plane: it holds a Ring and a Registry and
// forwards each client operation to exactly one shard, with no retry and no
// caching.
//
// Data layout:
//   - ring decides which shard id owns a key.
//   - registry resolves that shard id to the network endpoint to actually
//     dial.
//   - client is the shared *wire.Client every per-request *wire.ShardClient
//     is built from, so connections to a given endpoint are reused across
//     requests instead of redialed each time.
//
// Thread safety: a *Router has no mutable state of its own — every field
// is either immutable after New or (ring, registry) independently
// concurrency-safe — so it requires no locking and is safe to share across
// any number of goroutines serving concurrent requests.
type Router struct {
	ring     *ring.Ring
	registry *registry.Registry
	client   *wire.Client
	metrics  *Metrics
	logger   *zap.Logger
}

// New returns a Router over r and reg.
//
// Parameters:
//   - r, reg: must already be mutually consistent — every shard id r can
//     return from Locate must have a corresponding entry in reg. Callers
//     that build a cluster from scratch should populate both before
//     exposing the Router to traffic; Controller.AddShard/RemoveShard keep
//     them in sync afterward.
//   - opts: see Option.
func New(r *ring.Ring, reg *registry.Registry, opts ...Option) *Router {
	rt := &Router{
		ring:     r,
		registry: reg,
		client:   wire.NewClient(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Option configures a Router at construction time.
type Option func(*Router)

// WithMetrics attaches a Metrics recorder. If omitted, requests are
// forwarded without any counters or histograms being updated.
func WithMetrics(m *Metrics) Option { return func(r *Router) { r.metrics = m } }

// WithLogger attaches a logger. If omitted, a no-op logger is used and
// forwarding failures are never logged (they are still returned to the
// caller).
func WithLogger(l *zap.Logger) Option { return func(r *Router) { r.logger = l } }

// locateShard resolves key to a reachable shard client.
//
// Returns:
//   - client, shardID, nil on success.
//   - nil, "", wire.ErrNoShards if the ring has no members at all.
//   - nil, shardID, an error wrapping wire.ErrUnknownShard if the ring
//     named a shard id that the registry has no endpoint for — ring and
//     registry have drifted apart, which should not happen given
//     Controller's ordering but is reported rather than panicked on.
func (rt *Router) locateShard(key string) (*wire.ShardClient, string, error) {
	shardID, ok := rt.ring.Locate(key)
	if !ok {
		return nil, "", wire.ErrNoShards
	}

	endpoint, err := rt.registry.Endpoint(shardID)
	if err != nil {
		return nil, shardID, fmt.Errorf("%w: %s", wire.ErrUnknownShard, shardID)
	}
	return wire.NewShardClient(endpoint, rt.client), shardID, nil
}

// Put forwards a put to key's owning shard.
//
// Returns whatever the shard returned — including ErrDraining-derived 503s
// from a shard mid-removal — or a locate/timeout error if the shard could
// not be reached at all. Never retried.
func (rt *Router) Put(ctx context.Context, key, value string) error {
	ctx, cancel := context.WithTimeout(ctx, ForwardTimeout)
	defer cancel()

	shard, shardID, err := rt.locateShard(key)
	if err != nil {
		rt.observe("put", shardID, err)
		return err
	}

	err = shard.Put(ctx, key, value)
	rt.observe("put", shardID, err)
	return err
}

// Get forwards a get to key's owning shard.
//
// Returns the value and a nil error on success, or ("", err) for any
// shard-side error (including key-not-found) or locate/timeout failure.
// Gets are forwarded even to a draining shard — see shard.Shard.Get.
func (rt *Router) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, ForwardTimeout)
	defer cancel()

	shard, shardID, err := rt.locateShard(key)
	if err != nil {
		rt.observe("get", shardID, err)
		return "", err
	}

	v, err := shard.Get(ctx, key)
	rt.observe("get", shardID, err)
	return v, err
}

// Delete forwards a delete to key's owning shard.
//
// Returns whatever the shard returned, unchanged — including a
// not-found error if the key was never written, or an ErrDraining-derived
// 503 if the shard is mid-removal.
func (rt *Router) Delete(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, ForwardTimeout)
	defer cancel()

	shard, shardID, err := rt.locateShard(key)
	if err != nil {
		rt.observe("del", shardID, err)
		return err
	}

	err = shard.Delete(ctx, key)
	rt.observe("del", shardID, err)
	return err
}

// observe records the outcome of one forwarded operation to metrics (if
// attached) and, on failure, to the logger at Debug level — forwarding
// failures are routine enough (a client racing a remove-shard call, a
// timeout) that they do not warrant Warn or Error here.
func (rt *Router) observe(op, shardID string, err error) {
	if rt.metrics != nil {
		rt.metrics.ObserveRequest(op, shardID, err == nil)
	}
	if err != nil && shardID != "" {
		rt.logger.Debug("forward failed", zap.String("op", op), zap.String("shard", shardID), zap.Error(err))
	}
}
