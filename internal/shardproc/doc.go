// Package shardproc starts and stops shard processes on behalf of the
// membership controller, abstracting over the isolation model: an
// InProcessSpawner runs each shard as a goroutine with a loopback HTTP
// listener, suitable for tests and single-binary deployments, while an
// ExternalSpawner launches the cmd/shard binary as its own OS process,
// matching the isolation the system this was distilled from used.
//
// Both implementations satisfy the same contract: spawn a shard, wait
// until it answers /health, and return an endpoint the router can add to
// its registry. The membership controller in internal/router depends only
// on the Spawner interface.
package shardproc
