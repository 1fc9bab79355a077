// Command queue-lambda consumes the work queue through an SQS event source
// mapping. Each record is one processing request; records that should be
// retried are reported as batch item failures, everything else is deleted.
//
// The event source mapping must enable ReportBatchItemFailures.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/boot"
	"github.com/fpang/media-pipeline/internal/config"
	"github.com/fpang/media-pipeline/internal/logging"
	"github.com/fpang/media-pipeline/internal/metrics"
	"github.com/fpang/media-pipeline/internal/worker"
)

var coldStart = true

var w *worker.Worker

func init() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	env := boot.New(cfg)
	ctx := context.Background()

	if err := env.LoadGeminiKey(ctx, nil); err != nil {
		log.Warn().Err(err).Msg("Gemini API key unavailable, analysis disabled")
	}
	w, err = env.Worker(ctx, metrics.EMF{})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build worker")
	}
	env.StartupLog("queue-lambda", initStart).Log()
}

func handler(ctx context.Context, event events.SQSEvent) (events.SQSEventResponse, error) {
	if coldStart {
		log.Info().Int("records", len(event.Records)).Msg("Cold start invocation")
		coldStart = false
	}
	return w.HandleSQSEvent(ctx, event)
}

func main() {
	lambda.Start(handler)
}
