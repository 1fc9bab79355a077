// Command cleanup-lambda runs on a schedule and deletes objects in the temp
// namespace older than TEMP_RETENTION_HOURS.
package main

import (
	"context"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/boot"
	"github.com/fpang/media-pipeline/internal/cleanup"
	"github.com/fpang/media-pipeline/internal/config"
	"github.com/fpang/media-pipeline/internal/logging"
	"github.com/fpang/media-pipeline/internal/metrics"
)

var sweeper *cleanup.Sweeper

func init() {
	initStart := time.Now()
	logging.Init()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}
	env := boot.New(cfg)
	s, err := env.Store(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	sweeper = cleanup.New(s)
	sweeper.Retention = cfg.TempRetention

	env.StartupLog("cleanup-lambda", initStart).
		Config("retention", cfg.TempRetention.String()).
		Log()
}

func handler(ctx context.Context, event events.CloudWatchEvent) (cleanup.Report, error) {
	start := time.Now()
	report, err := sweeper.Sweep(ctx)
	metrics.New(metrics.Namespace).
		Dimension("Operation", "cleanup").
		Metric("ObjectsScanned", float64(report.Scanned), metrics.UnitCount).
		Metric("ObjectsDeleted", float64(report.Deleted), metrics.UnitCount).
		Metric("BytesDeleted", float64(report.DeletedBytes), metrics.UnitBytes).
		Metric("SweepMs", float64(time.Since(start).Milliseconds()), metrics.UnitMilliseconds).
		Property("eventId", event.ID).
		Flush()
	if err != nil {
		log.Error().Err(err).Int("failed", len(report.Failed)).Msg("Cleanup sweep finished with errors")
	}
	return report, err
}

func main() {
	lambda.Start(handler)
}
