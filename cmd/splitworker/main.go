// Command splitworker runs the split-engine job runtime: it drains the
// Split queue, downloads the uploaded STL, runs it through the split
// engine, and uploads the resulting parts and ZIP bundle.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/printsplit/splitengine/internal/broker"
	"github.com/printsplit/splitengine/internal/broker/membroker"
	"github.com/printsplit/splitengine/internal/broker/redisbroker"
	"github.com/printsplit/splitengine/internal/config"
	"github.com/printsplit/splitengine/internal/jobs"
	"github.com/printsplit/splitengine/internal/kernel"
	"github.com/printsplit/splitengine/internal/kernel/memkernel"
	"github.com/printsplit/splitengine/internal/metrics"
	"github.com/printsplit/splitengine/internal/objectstore"
	"github.com/printsplit/splitengine/internal/objectstore/memstore"
	"github.com/printsplit/splitengine/internal/objectstore/miniostore"
)

var metricsAddr string

func main() {
	root := &cobra.Command{
		Use:   "splitworker",
		Short: "Drains the split queue and runs STL split jobs to completion",
		RunE:  run,
	}
	root.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "address to serve /metrics and /healthz on")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := cfg.NewLogger()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New()

	store, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building object store: %w", err)
	}

	br, err := buildBroker(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("building broker: %w", err)
	}

	queue := jobs.NewQueue(broker.SplitQueue, br, jobs.DefaultRetention(), nil)
	queue.SetMetrics(m)

	workerCfg := jobs.DefaultWorkerConfig()
	workerCfg.Concurrency = cfg.WorkerConcurrency

	worker := jobs.NewWorker(queue, store, br, func() kernel.Kernel { return memkernel.New() }, workerCfg, logger)
	worker.SetMetrics(m)

	go serveMetrics(logger)

	logger.Info("splitworker starting", zap.Int("concurrency", workerCfg.Concurrency))
	return worker.Run(ctx)
}

func buildStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (objectstore.Store, error) {
	if cfg.MinIOEndpoint == "" {
		logger.Warn("no MinIO endpoint configured, using in-memory object store")
		return memstore.New(nil), nil
	}
	endpoint := fmt.Sprintf("%s:%d", cfg.MinIOEndpoint, cfg.MinIOPort)
	return miniostore.New(ctx, miniostore.Config{
		Endpoint:      endpoint,
		AccessKey:     cfg.MinIOAccessKey,
		SecretKey:     cfg.MinIOSecretKey,
		UseSSL:        cfg.MinIOUseSSL,
		UploadsBucket: cfg.UploadBucket,
		ResultsBucket: cfg.ResultsBucket,
	}, logger)
}

func buildBroker(ctx context.Context, cfg *config.Config, logger *zap.Logger) (broker.Broker, error) {
	if cfg.RedisURL == "" {
		logger.Warn("no Redis URL configured, using in-memory broker")
		return membroker.New(), nil
	}
	return redisbroker.Connect(ctx, cfg.RedisURL)
}

func serveMetrics(logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	if err := http.ListenAndServe(metricsAddr, mux); err != nil {
		logger.Error("metrics server exited", zap.Error(err))
	}
}
