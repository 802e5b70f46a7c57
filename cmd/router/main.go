// Command router runs the stateless request router: it locates each key's
// owning shard via consistent hashing and forwards client operations to it,
// and exposes add_server/remove_server for cluster membership changes.
//
// Example usage:
//
//	router --shards 5001,5002,5003,5004,5005 --listen :8080
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ringkv/ringkv/internal/registry"
	"github.com/ringkv/ringkv/internal/ring"
	"github.com/ringkv/ringkv/internal/router"
	"github.com/ringkv/ringkv/internal/shardproc"
)

var cli struct {
	Listen        string        `help:"Address for the client-facing HTTP API." default:":8080"`
	Shards        string        `help:"Comma-separated initial shard ids." default:"5001,5002,5003,5004,5005" env:"RINGKV_SHARDS"`
	Replicas      int           `help:"Virtual nodes per shard." default:"100" env:"RINGKV_REPLICAS"`
	FlushInterval time.Duration `help:"Snapshot flush interval passed to each spawned shard." default:"10s"`
	SnapshotDir   string        `help:"Directory holding shard snapshot files." default:"." env:"RINGKV_SNAPSHOT_DIR"`
	MetricsListen string        `help:"Address to serve /metrics on; empty disables it." default:""`
	Spawner       string        `help:"How shard processes are started: \"inprocess\" (goroutine, default) or \"external\" (separate cmd/shard OS process)." enum:"inprocess,external" default:"inprocess" env:"RINGKV_SPAWNER"`
	ShardBinary   string        `help:"Path to the built cmd/shard binary, used only when --spawner=external." default:"./bin/shard" env:"RINGKV_SHARD_BINARY"`
}

func main() {
	kong.Parse(&cli, kong.Description("Stateless router for a ringkv cluster."))

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	shardMetrics := reg
	routerMetrics := router.NewMetrics(reg)

	r := ring.New(cli.Replicas)
	regy := registry.New()
	rt := router.New(r, regy, router.WithMetrics(routerMetrics), router.WithLogger(logger))

	var spawner shardproc.Spawner
	switch cli.Spawner {
	case "external":
		spawner = &shardproc.ExternalSpawner{
			BinaryPath:    cli.ShardBinary,
			SnapshotDir:   cli.SnapshotDir,
			FlushInterval: cli.FlushInterval,
		}
		logger.Info("spawning shards as external processes", zap.String("binary", cli.ShardBinary))
	default:
		spawner = &shardproc.InProcessSpawner{
			SnapshotDir:   cli.SnapshotDir,
			FlushInterval: cli.FlushInterval,
			Metrics:       shardMetrics,
			Logger:        logger,
		}
	}
	ctrl := router.NewController(rt, spawner, logger)

	ctx := context.Background()
	for _, id := range splitNonEmpty(cli.Shards) {
		h, err := spawner.Spawn(ctx, id)
		if err != nil {
			logger.Fatal("spawn initial shard", zap.String("id", id), zap.Error(err))
		}
		regy.Put(id, h.Endpoint)
		r.Add(id)
		logger.Info("initial shard ready", zap.String("id", id), zap.String("endpoint", h.Endpoint))
	}
	routerMetrics.SetMembers(len(r.Members()))

	if cli.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cli.MetricsListen, mux); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	httpServer := &http.Server{
		Addr:              cli.Listen,
		Handler:           router.NewHandler(rt, ctrl, nil),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("router listening", zap.String("addr", cli.Listen))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("router stopped")
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
