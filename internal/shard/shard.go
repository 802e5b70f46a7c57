// Package shard implements the fundamental storage unit of the cluster.
// See doc.go for complete package documentation.
package shard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ringkv/ringkv/internal/storage"
)

// State is the operational state of a shard.
type State string

const (
	// StateActive serves reads and writes normally.
	StateActive State = "active"

	// StateDraining still serves reads, but rejects new writes (Put,
	// Delete, BulkImport) with ErrDraining while the router waits for
	// operations admitted before the transition to finish and reads the
	// shard's final contents for migration. Rejecting writes here, rather
	// than only relying on the router to stop routing to this shard, is
	// what closes the race between ring removal and an in-flight request
	// that was already dispatched to this shard's HTTP handler.
	StateDraining State = "draining"
)

// ErrDraining is returned by Put, Delete and BulkImport once BeginDrain has
// been called. It is retryable: the caller should re-resolve the key's
// owner (the ring will have already moved on) and retry against the new
// owner instead of against this shard.
var ErrDraining = errors.New("shard is draining")

// DefaultFlushInterval is used when a Shard is constructed with a
// non-positive interval.
const DefaultFlushInterval = 10 * time.Second

// Shard is the per-node runtime for one partition of the key space. It owns
// an in-memory Store, a snapshot file on disk, and a background flush loop
// that keeps the two roughly in sync.
//
// Concurrency model:
//   - mu guards state only; it is never held across a Store call or an I/O
//     operation.
//   - wg tracks operations admitted between enter() and the matching
//     wg.Done(). enter() checks state and calls wg.Add(1) under the same
//     mu.RLock critical section, so it can never race with BeginDrain's
//     mu.Lock: either enter() observes StateActive and its Add happens
//     before BeginDrain's Lock is granted, or it observes StateDraining
//     (set by a BeginDrain that already completed) and adds nothing. This
//     is what makes WaitDrain's wg.Wait() safe to call concurrently with
//     enter() without risking the "Add after Wait observed zero" misuse
//     sync.WaitGroup's docs warn about.
type Shard struct {
	ID    string
	Store storage.Store

	snapshotPath  string
	flushInterval time.Duration
	metrics       *Metrics
	logger        *zap.Logger

	mu    sync.RWMutex
	state State
	wg    sync.WaitGroup // tracks in-flight operations, for drain

	stopOnce sync.Once
	stopCh   chan struct{}
	stopped  chan struct{}
}

// Option configures a Shard at construction time.
type Option func(*Shard)

// WithFlushInterval overrides DefaultFlushInterval.
func WithFlushInterval(d time.Duration) Option {
	return func(s *Shard) { s.flushInterval = d }
}

// WithMetrics attaches a Metrics recorder. If omitted, operations are
// unrecorded.
func WithMetrics(m *Metrics) Option {
	return func(s *Shard) { s.metrics = m }
}

// WithLogger attaches a logger. If omitted, a no-op logger is used.
func WithLogger(l *zap.Logger) Option {
	return func(s *Shard) { s.logger = l }
}

// New creates a shard identified by id, persisting snapshots at
// snapshotPath.
//
// Startup sequence:
//  1. Apply every Option, falling back to DefaultFlushInterval if the
//     resulting interval is non-positive.
//  2. If a snapshot file already exists at snapshotPath, load it into the
//     store before returning. A file whose contents cannot be decoded is
//     logged and the shard starts empty; a failure to read the file at all
//     (other than "file does not exist") aborts construction.
//  3. Start the background flush loop.
//
// Returns:
//   - a ready-to-use *Shard whose flush loop is already running, or
//   - an error if the snapshot file exists but could not be read.
//
// Callers must call Shutdown when done, to stop the flush loop and write
// one last snapshot.
func New(id, snapshotPath string, opts ...Option) (*Shard, error) {
	s := &Shard{
		ID:            id,
		Store:         storage.NewMemoryStore(),
		snapshotPath:  snapshotPath,
		flushInterval: DefaultFlushInterval,
		state:         StateActive,
		logger:        zap.NewNop(),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.flushInterval <= 0 {
		s.flushInterval = DefaultFlushInterval
	}

	if mem, ok := s.Store.(*storage.MemoryStore); ok {
		kv, err := storage.ReadSnapshot(s.snapshotPath)
		var pathErr *os.PathError
		switch {
		case err == nil:
			mem.Replace(kv)
			s.logger.Info("loaded snapshot", zap.String("shard", s.ID), zap.Int("keys", len(kv)))
		case os.IsNotExist(err):
		case errors.As(err, &pathErr):
			return nil, fmt.Errorf("shard %s: load snapshot: %w", id, err)
		default:
			s.logger.Warn("snapshot could not be decoded, starting empty", zap.String("shard", s.ID), zap.Error(err))
		}
	}

	go s.flushLoop()
	return s, nil
}

// Get reads a single key. Gets are always admitted, even while draining:
// only writes are rejected once a shard is draining, since serving a stale
// read from a shard that is about to be migrated away is harmless and the
// alternative (rejecting reads too) would needlessly fail in-flight client
// traffic during every remove-shard call.
func (s *Shard) Get(key string) (string, error) {
	if err := s.enter(false); err != nil {
		return "", err
	}
	defer s.wg.Done()

	v, err := s.Store.Get(key)
	s.record("get", err)
	return v, err
}

// Put writes a single key. Returns ErrDraining instead of writing once
// BeginDrain has been called.
func (s *Shard) Put(key, value string) error {
	if err := s.enter(true); err != nil {
		return err
	}
	defer s.wg.Done()

	err := s.Store.Put(key, value)
	s.record("put", err)
	return err
}

// Delete removes a single key. Returns ErrDraining instead of deleting once
// BeginDrain has been called.
func (s *Shard) Delete(key string) error {
	if err := s.enter(true); err != nil {
		return err
	}
	defer s.wg.Done()

	err := s.Store.Delete(key)
	s.record("delete", err)
	return err
}

// BulkImport merges kv into the store in one atomic step, used by the
// router when handing a key range to a new owner. Returns ErrDraining
// instead of importing once BeginDrain has been called — a shard that is
// itself being migrated away must not accept a concurrent bulk import from
// some other removal.
func (s *Shard) BulkImport(kv map[string]string) error {
	if err := s.enter(true); err != nil {
		return err
	}
	defer s.wg.Done()

	err := s.Store.Import(kv)
	s.record("bulk_import", err)
	return err
}

// enter admits one operation: if the shard is draining and isWrite is true
// it returns ErrDraining without incrementing wg; otherwise (a read, or a
// write while still active) it increments wg and returns nil, and the
// caller must call s.wg.Done() exactly once. Reads are admitted regardless
// of state — see Get's doc comment for why. The state check and the wg.Add
// happen under the same mu.RLock so this can never race with BeginDrain's
// mu.Lock — see the Shard doc comment.
func (s *Shard) enter(isWrite bool) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if isWrite && s.state == StateDraining {
		return ErrDraining
	}
	s.wg.Add(1)
	return nil
}

func (s *Shard) record(op string, err error) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveOp(s.ID, op, err == nil)
	s.metrics.SetKeyCount(s.ID, s.Store.Len())
}

// State returns the shard's current operational state.
func (s *Shard) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// BeginDrain transitions the shard to StateDraining. After BeginDrain
// returns, every subsequent Put, Delete and BulkImport call observes
// StateDraining and returns ErrDraining instead of being admitted — the
// shard enforces this itself, so callers do not additionally need to stop
// routing to this shard's id before calling BeginDrain for correctness
// (though the router still does so, to avoid needlessly surfacing
// ErrDraining to clients). Any operation already admitted before BeginDrain
// was called is unaffected and still tracked by wg.
func (s *Shard) BeginDrain() {
	s.mu.Lock()
	s.state = StateDraining
	s.mu.Unlock()
}

// WaitDrain blocks until every operation admitted before BeginDrain was
// called has completed, or ctx is done, whichever comes first. Calling
// WaitDrain before BeginDrain returns a nil error as soon as the
// then-current in-flight set drains, but does not itself prevent further
// writes from being admitted — callers that need the rejection behavior
// must call BeginDrain first.
func (s *Shard) WaitDrain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ExportAll returns a full copy of the shard's contents, for migration to
// another shard after draining.
func (s *Shard) ExportAll() map[string]string {
	return s.Store.Snapshot()
}

// Shutdown stops the flush loop, waits for in-flight operations to finish,
// and writes one last snapshot to disk. It does not call BeginDrain itself
// and does not change the shard's state, so a shard shut down outside of a
// remove-shard flow (e.g. process termination) keeps accepting writes
// during and after Shutdown; writes that land after the final flush are
// not in the snapshot. This is a best-effort graceful shutdown, distinct
// from the stricter write-rejecting drain contract RemoveShard relies on.
func (s *Shard) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })

	select {
	case <-s.stopped:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := s.WaitDrain(ctx); err != nil {
		return err
	}
	return s.flush()
}

func (s *Shard) flushLoop() {
	defer close(s.stopped)

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.flush(); err != nil {
				s.logger.Warn("periodic flush failed", zap.String("shard", s.ID), zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

func (s *Shard) flush() error {
	start := time.Now()
	kv := s.Store.Snapshot()
	err := storage.WriteSnapshot(s.snapshotPath, kv)

	if s.metrics != nil {
		s.metrics.ObserveFlush(s.ID, time.Since(start), err == nil)
	}
	if err != nil {
		return fmt.Errorf("shard %s: flush: %w", s.ID, err)
	}
	return nil
}
