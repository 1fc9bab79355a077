// Command media-api serves the intake HTTP API. Behind API Gateway it runs
// as a Lambda through the HTTP API v2 adapter; anywhere else it listens on
// HTTP_ADDR.
//
// Endpoints:
//
//	GET    /api/health                 health check
//	GET    /api/types                  supported processing types
//	GET    /api/media                  list media items
//	POST   /api/media                  multipart upload (field "file")
//	GET    /api/media/{id}             one item with download links
//	DELETE /api/media/{id}             delete an item and its artifacts
//	POST   /api/media/{id}/process     queue work (?type=FILTER, JSON params)
//	POST   /api/media/{id}/refresh     pull worker results into the item
//	POST   /api/process                submit a wire-format request (?sync=false)
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"
	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/boot"
	"github.com/fpang/media-pipeline/internal/config"
	"github.com/fpang/media-pipeline/internal/intake"
	"github.com/fpang/media-pipeline/internal/logging"
	"github.com/fpang/media-pipeline/internal/metrics"
)

func main() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	env := boot.New(cfg)
	onLambda := os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != ""

	ctx := context.Background()
	if cfg.Store == config.StoreS3 {
		if err := env.LoadGeminiKey(ctx, nil); err != nil {
			log.Warn().Err(err).Msg("Gemini API key unavailable, analysis disabled")
		}
	}
	w, err := env.Worker(ctx, metrics.EMF{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build worker")
	}
	svc, err := env.Intake(ctx, w)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build intake service")
	}
	handler := intake.NewHandler(svc)

	env.StartupLog("media-api", initStart).
		Feature("lambda", onLambda).
		Log()

	if onLambda {
		lambda.Start(httpadapter.NewV2(handler).ProxyWithContext)
		return
	}
	serve(cfg.HTTPAddr, handler)
}

func serve(addr string, handler http.Handler) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Error().Err(err).Msg("HTTP shutdown failed")
		}
	}()

	log.Info().Str("addr", addr).Msg("Media API listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("HTTP server failed")
	}
}
