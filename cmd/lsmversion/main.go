package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	httpapi "lsmversion/internal/http"
	"lsmversion/pkg/config"
	"lsmversion/pkg/localversion"
	"lsmversion/pkg/metrics"
	"lsmversion/pkg/unpin"
	"lsmversion/pkg/version"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(&cfg)

	node := nodeID(&cfg)
	sink, err := initSink(&cfg, node, logger)
	if err != nil {
		logger.Error("failed to init unpin sink", "sink", cfg.Unpin.Sink, "error", err)
		os.Exit(1)
	}
	defer sink.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg, string(node))

	// --- unpin queue and worker ---
	queue := unpin.NewQueue()
	worker := unpin.NewWorker(queue, sink, logger, cfg.Unpin.Timeout)
	// not tied to ctx: Stop drains the queue after the signal
	worker.Start(context.Background())

	// --- local version seeded from config ---
	initial := version.New(cfg.Version.InitialID, cfg.Version.InitialMaxCommittedEpoch, 0, cfg.Version.Levels)
	if err := sink.Pin(ctx, initial.ID); err != nil {
		logger.Error("failed to pin initial version", "version_id", initial.ID, "error", err)
		os.Exit(1)
	}
	lv := localversion.New(initial, queue,
		localversion.WithLogger(logger),
		localversion.WithMetrics(m),
	)

	server := httpapi.NewServer(lv, sink, reg, strconv.Itoa(cfg.Server.Port))
	server.SetReadHeaderTimeout(cfg.Server.ReadHeaderTimeout)
	if err := server.Start(); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	logger.Info("node started",
		"node_id", node,
		"port", cfg.Server.Port,
		"pinned_version", initial.ID,
		"max_committed_epoch", initial.MaxCommittedEpoch,
		"unpin_sink", cfg.Unpin.Sink,
	)

	<-ctx.Done()

	if err := server.Stop(); err != nil {
		logger.Error("error stopping server", "error", err)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), cfg.Unpin.StopTimeout)
	defer stopCancel()
	worker.Stop(stopCtx)

	logger.Info("node stopped")
}
