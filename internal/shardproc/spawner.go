package shardproc

import "context"

// Handle is a running shard process: its reachable endpoint and a Stop
// function that terminates it.
type Handle struct {
	ShardID  string
	Endpoint string

	// Stop terminates the shard process. It does not itself call the
	// shard's /shutdown endpoint — callers that want a clean flush should
	// do that first, then Stop to reclaim process/goroutine resources.
	Stop func(ctx context.Context) error
}

// Spawner starts a new shard process and waits until it is reachable
// before returning.
type Spawner interface {
	Spawn(ctx context.Context, shardID string) (*Handle, error)
}
