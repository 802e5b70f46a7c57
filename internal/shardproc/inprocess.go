package shardproc

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/ringkv/ringkv/internal/shard"
	"github.com/ringkv/ringkv/internal/wire"
)

// InProcessSpawner runs each shard as a goroutine with its own loopback
// HTTP listener inside the router's own process. It never shells out, so it
// is the right choice for tests and for single-binary deployments.
type InProcessSpawner struct {
	SnapshotDir   string
	FlushInterval time.Duration
	Metrics       prometheus.Registerer
	Logger        *zap.Logger

	// shardMetrics is registered against Metrics once and shared by every
	// shard this spawner starts.
	metricsOnce  sync.Once
	shardMetrics *shard.Metrics
}

// Spawn starts shardID's shard goroutine on an OS-assigned loopback port
// and waits for its /health endpoint to answer before returning.
func (sp *InProcessSpawner) Spawn(ctx context.Context, shardID string) (*Handle, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("spawn shard %s: listen: %w", shardID, err)
	}
	endpoint := "http://" + listener.Addr().String()

	opts := []shard.Option{}
	if sp.FlushInterval > 0 {
		opts = append(opts, shard.WithFlushInterval(sp.FlushInterval))
	}
	if sp.Logger != nil {
		opts = append(opts, shard.WithLogger(sp.Logger))
	}
	if sp.Metrics != nil {
		sp.metricsOnce.Do(func() { sp.shardMetrics = shard.NewMetrics(sp.Metrics) })
		opts = append(opts, shard.WithMetrics(sp.shardMetrics))
	}

	snapshotPath := filepath.Join(sp.SnapshotDir, shardID+".yaml")
	s, err := shard.New(shardID, snapshotPath, opts...)
	if err != nil {
		listener.Close()
		return nil, fmt.Errorf("spawn shard %s: %w", shardID, err)
	}

	httpServer := &http.Server{Handler: shard.NewHandler(s, nil)}
	go httpServer.Serve(listener)

	if err := waitHealthy(ctx, endpoint); err != nil {
		httpServer.Close()
		return nil, fmt.Errorf("spawn shard %s: %w", shardID, err)
	}

	stop := func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	}
	return &Handle{ShardID: shardID, Endpoint: endpoint, Stop: stop}, nil
}

// waitHealthy polls endpoint's /health with exponential backoff until it
// answers 200 or ctx expires.
func waitHealthy(ctx context.Context, endpoint string) error {
	client := wire.NewShardClient(endpoint, nil)

	b := backoff.WithContext(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(10*time.Millisecond),
		backoff.WithMaxInterval(200*time.Millisecond),
	), ctx)

	return backoff.Retry(func() error {
		return client.Health(ctx)
	}, b)
}
