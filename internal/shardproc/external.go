package shardproc

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"time"
)

// ExternalSpawner launches cmd/shard as its own OS process per shard,
// matching the process-per-shard isolation model of the system this was
// distilled from. Each process gets its own memory and crashes
// independently of the router and of other shards.
type ExternalSpawner struct {
	// BinaryPath is the path to the built cmd/shard executable.
	BinaryPath string
	// SnapshotDir is passed to each shard process as its snapshot directory.
	SnapshotDir string
	// FlushInterval is passed to each shard process as a Go duration string
	// (e.g. "10s"); zero uses the shard's own default.
	FlushInterval time.Duration
}

// Spawn launches a cmd/shard process for shardID on a free loopback port
// and waits for it to answer /health.
func (sp *ExternalSpawner) Spawn(ctx context.Context, shardID string) (*Handle, error) {
	port, err := freePort()
	if err != nil {
		return nil, fmt.Errorf("spawn shard %s: %w", shardID, err)
	}
	endpoint := fmt.Sprintf("http://127.0.0.1:%d", port)

	args := []string{
		"--id", shardID,
		"--listen", fmt.Sprintf("127.0.0.1:%d", port),
		"--snapshot-dir", sp.SnapshotDir,
	}
	if sp.FlushInterval > 0 {
		args = append(args, "--flush-interval", sp.FlushInterval.String())
	}

	cmd := exec.Command(sp.BinaryPath, args...)
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("spawn shard %s: start: %w", shardID, err)
	}

	if err := waitHealthy(ctx, endpoint); err != nil {
		_ = cmd.Process.Kill()
		return nil, fmt.Errorf("spawn shard %s: %w", shardID, err)
	}

	stop := func(ctx context.Context) error {
		if cmd.Process == nil {
			return nil
		}
		return cmd.Process.Kill()
	}
	return &Handle{ShardID: shardID, Endpoint: endpoint, Stop: stop}, nil
}

func freePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
