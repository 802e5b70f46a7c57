// Command shard runs a single shard process: an in-memory key-value store
// serving the put/get/del/bulk_import/drain/export/shutdown contract over
// HTTP, with a periodic snapshot flush to disk.
//
// Example usage:
//
//	shard --id 5001 --listen :5001 --snapshot-dir ./data
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ringkv/ringkv/internal/shard"
)

var cli struct {
	ID            string        `help:"Shard id, used as both the registry key and ring hash seed." required:""`
	Listen        string        `help:"Address to listen on." default:":5001"`
	SnapshotDir   string        `help:"Directory holding this shard's snapshot file." default:"." env:"RINGKV_SNAPSHOT_DIR"`
	FlushInterval time.Duration `help:"Interval between snapshot flushes." default:"10s"`
	MetricsListen string        `help:"Address to serve /metrics on; empty disables it." default:""`
}

func main() {
	kong.Parse(&cli, kong.Description("Single shard process for a ringkv cluster."))

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	reg := prometheus.NewRegistry()
	metrics := shard.NewMetrics(reg)

	snapshotPath := cli.SnapshotDir + "/" + cli.ID + ".yaml"
	s, err := shard.New(cli.ID, snapshotPath,
		shard.WithFlushInterval(cli.FlushInterval),
		shard.WithMetrics(metrics),
		shard.WithLogger(logger),
	)
	if err != nil {
		logger.Fatal("start shard", zap.Error(err))
	}

	if cli.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			if err := http.ListenAndServe(cli.MetricsListen, mux); err != nil && err != http.ErrServerClosed {
				logger.Warn("metrics server stopped", zap.Error(err))
			}
		}()
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	httpServer := &http.Server{
		Addr:              cli.Listen,
		Handler:           shard.NewHandler(s, func() { stop <- syscall.SIGTERM }),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("shard listening", zap.String("id", cli.ID), zap.String("addr", cli.Listen))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.Shutdown(ctx); err != nil {
		logger.Warn("shard shutdown", zap.Error(err))
	}
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	logger.Info("shard stopped", zap.String("id", cli.ID))
}
