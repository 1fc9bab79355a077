// Command pipeline-worker is the long-running queue consumer. It runs a pool
// of workers against the configured queue and serves Prometheus metrics.
//
// With MEDIA_QUEUE=memory the queue only exists inside this process, so the
// intake API is served here as well on HTTP_ADDR.
//
// Environment (see internal/config for the full list):
//
//	MEDIA_STORE, MEDIA_BUCKET, MEDIA_STORE_DIR   content store
//	MEDIA_QUEUE, MEDIA_QUEUE_URL                 work queue
//	WORKER_CONCURRENCY                           consumers
//	METRICS_ADDR                                 /metrics listener
//	GEMINI_API_KEY or SSM_API_KEY_PARAM          analysis backend
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/fpang/media-pipeline/internal/boot"
	"github.com/fpang/media-pipeline/internal/config"
	"github.com/fpang/media-pipeline/internal/intake"
	"github.com/fpang/media-pipeline/internal/logging"
	"github.com/fpang/media-pipeline/internal/metrics"
	"github.com/fpang/media-pipeline/internal/worker"
)

const shutdownTimeout = 15 * time.Second

func main() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	env := boot.New(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Store == config.StoreS3 {
		if err := env.LoadGeminiKey(ctx, nil); err != nil {
			log.Warn().Err(err).Msg("Gemini API key unavailable, analysis disabled")
		}
	}

	prom := metrics.NewProm()
	w, err := env.Worker(ctx, prom)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build worker")
	}
	q, err := env.Queue(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open queue")
	}

	servers := []*http.Server{metricsServer(cfg.MetricsAddr, prom)}
	if cfg.Queue == config.QueueMemory {
		svc, err := env.Intake(ctx, w)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build intake service")
		}
		servers = append(servers, &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           intake.NewHandler(svc),
			ReadHeaderTimeout: 10 * time.Second,
		})
	}

	pool := &worker.Pool{Queue: q, Worker: w, Concurrency: cfg.WorkerConcurrency}

	env.StartupLog("pipeline-worker", initStart).
		Config("metricsAddr", cfg.MetricsAddr).
		Log()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return pool.Run(gctx) })
	for _, srv := range servers {
		g.Go(func() error {
			log.Info().Str("addr", srv.Addr).Msg("HTTP listener starting")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("Pipeline worker failed")
	}
	log.Info().Msg("Pipeline worker stopped")
}

func metricsServer(addr string, prom *metrics.Prom) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", prom.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}
