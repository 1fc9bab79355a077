// Package boot turns a config.Config into wired pipeline components. Every
// binary's main is a short composition of these helpers.
package boot

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/rs/zerolog/log"

	"github.com/fpang/media-pipeline/internal/analysis"
	"github.com/fpang/media-pipeline/internal/catalog"
	"github.com/fpang/media-pipeline/internal/config"
	"github.com/fpang/media-pipeline/internal/engine"
	"github.com/fpang/media-pipeline/internal/imageproc"
	"github.com/fpang/media-pipeline/internal/intake"
	"github.com/fpang/media-pipeline/internal/logging"
	"github.com/fpang/media-pipeline/internal/metrics"
	"github.com/fpang/media-pipeline/internal/notify"
	"github.com/fpang/media-pipeline/internal/queue"
	"github.com/fpang/media-pipeline/internal/router"
	"github.com/fpang/media-pipeline/internal/store"
	"github.com/fpang/media-pipeline/internal/videoproc"
	"github.com/fpang/media-pipeline/internal/worker"
)

// Env builds components from one Config. The AWS config is loaded on first
// use so local backends never touch credentials.
type Env struct {
	Config config.Config

	awsOnce sync.Once
	awsCfg  aws.Config
	awsErr  error

	storeOnce sync.Once
	store     store.Manager
	storeErr  error

	queueOnce sync.Once
	queue     queue.Queue
	queueErr  error
}

// New returns an Env for cfg.
func New(cfg config.Config) *Env {
	return &Env{Config: cfg}
}

// AWS loads the default AWS config once.
func (e *Env) AWS(ctx context.Context) (aws.Config, error) {
	e.awsOnce.Do(func() {
		e.awsCfg, e.awsErr = awsconfig.LoadDefaultConfig(ctx)
		if e.awsErr != nil {
			e.awsErr = fmt.Errorf("load AWS config: %w", e.awsErr)
			return
		}
		log.Debug().Str("region", e.awsCfg.Region).Msg("AWS config loaded")
	})
	return e.awsCfg, e.awsErr
}

// Store returns the configured content store. Repeated calls share one
// instance so the memory backend is visible to every component.
func (e *Env) Store(ctx context.Context) (store.Manager, error) {
	e.storeOnce.Do(func() {
		switch e.Config.Store {
		case config.StoreMemory:
			e.store = store.NewMemoryStore()
		case config.StoreFS:
			e.store, e.storeErr = store.NewFSStore(e.Config.StoreDir)
		default:
			cfg, err := e.AWS(ctx)
			if err != nil {
				e.storeErr = err
				return
			}
			client := s3.NewFromConfig(cfg)
			e.store = store.NewS3Store(client, s3.NewPresignClient(client), e.Config.Bucket)
		}
	})
	return e.store, e.storeErr
}

// Queue returns the configured work queue, shared like Store.
func (e *Env) Queue(ctx context.Context) (queue.Queue, error) {
	e.queueOnce.Do(func() {
		if e.Config.Queue == config.QueueMemory {
			e.queue = queue.NewMemoryQueue(e.Config.QueueVisibility, e.Config.QueueWait)
			return
		}
		if e.queueErr = e.Config.RequireQueueURL(); e.queueErr != nil {
			return
		}
		cfg, err := e.AWS(ctx)
		if err != nil {
			e.queueErr = err
			return
		}
		e.queue = queue.NewSQSQueue(sqs.NewFromConfig(cfg), e.Config.QueueURL,
			int32(e.Config.QueueWait/time.Second), int32(e.Config.QueueVisibility/time.Second))
	})
	return e.queue, e.queueErr
}

// Catalog returns a DynamoDB catalog when MEDIA_TABLE is set and an
// in-memory one otherwise.
func (e *Env) Catalog(ctx context.Context) (catalog.Catalog, error) {
	if e.Config.Table == "" {
		log.Warn().Msg("MEDIA_TABLE not set, media catalog is in-memory")
		return catalog.NewMemoryCatalog(), nil
	}
	cfg, err := e.AWS(ctx)
	if err != nil {
		return nil, err
	}
	return catalog.NewDynamoCatalog(dynamodb.NewFromConfig(cfg), e.Config.Table), nil
}

// Notifier returns an EventBridge notifier, or nil when MEDIA_EVENT_BUS is
// unset.
func (e *Env) Notifier(ctx context.Context) (worker.Notifier, error) {
	if e.Config.EventBus == "" {
		return nil, nil
	}
	cfg, err := e.AWS(ctx)
	if err != nil {
		return nil, err
	}
	return notify.NewEventBridge(eventbridge.NewFromConfig(cfg), e.Config.EventBus), nil
}

// SSMAPI is the subset of the SSM client used to read secrets.
type SSMAPI interface {
	GetParameter(ctx context.Context, in *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// LoadGeminiKey fills Config.GeminiAPIKey from SSM Parameter Store when it
// was not set in the environment.
func (e *Env) LoadGeminiKey(ctx context.Context, client SSMAPI) error {
	if e.Config.GeminiAPIKey != "" {
		return nil
	}
	if client == nil {
		cfg, err := e.AWS(ctx)
		if err != nil {
			return err
		}
		client = ssm.NewFromConfig(cfg)
	}
	start := time.Now()
	out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(e.Config.SSMAPIKeyParam),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("read %s from SSM: %w", e.Config.SSMAPIKeyParam, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return fmt.Errorf("SSM parameter %s is empty", e.Config.SSMAPIKeyParam)
	}
	e.Config.GeminiAPIKey = aws.ToString(out.Parameter.Value)
	log.Debug().Str("param", e.Config.SSMAPIKeyParam).Dur("elapsed", time.Since(start)).Msg("Gemini API key loaded from SSM")
	return nil
}

// Engines builds the engine registry. Without a Gemini key the analysis
// engine still runs and reports the missing backend in each result.
func (e *Env) Engines(ctx context.Context) (engine.Registry, error) {
	var model analysis.Model
	if e.Config.GeminiAPIKey != "" {
		g, err := analysis.NewGemini(ctx, e.Config.GeminiAPIKey, e.Config.GeminiModel)
		if err != nil {
			return nil, err
		}
		model = g
	} else {
		log.Warn().Msg("No Gemini API key, analysis results will carry an error field")
	}
	if err := videoproc.CheckFFmpeg(e.Config.FFmpegPath); err != nil {
		log.Warn().Err(err).Msg("ffmpeg unavailable, video requests will be abandoned")
	}
	return engine.Registry{
		router.EngineImage:    imageproc.New(),
		router.EngineVideo:    videoproc.New(e.Config.FFmpegPath, e.Config.TempDir),
		router.EngineAnalysis: analysis.New(model, e.Config.Moderation),
	}, nil
}

// Worker wires a worker from the store, engines and notifier.
func (e *Env) Worker(ctx context.Context, sink metrics.Sink) (*worker.Worker, error) {
	s, err := e.Store(ctx)
	if err != nil {
		return nil, err
	}
	engines, err := e.Engines(ctx)
	if err != nil {
		return nil, err
	}
	n, err := e.Notifier(ctx)
	if err != nil {
		return nil, err
	}
	return &worker.Worker{Store: s, Engines: engines, Notifier: n, Metrics: sink}, nil
}

// Intake wires the intake service. A nil w makes every submission queued.
// Stores that can presign get download links on items.
func (e *Env) Intake(ctx context.Context, w *worker.Worker) (*intake.Service, error) {
	s, err := e.Store(ctx)
	if err != nil {
		return nil, err
	}
	q, err := e.Queue(ctx)
	if err != nil {
		return nil, err
	}
	c, err := e.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	svc := intake.NewService(s, q, c, w)
	if signer, ok := s.(intake.URLSigner); ok {
		svc.URLs = signer
	}
	return svc, nil
}

// StartupLog starts a startup event pre-filled with the resources cfg names.
func (e *Env) StartupLog(name string, initStart time.Time) *logging.StartupLogger {
	c := e.Config
	l := logging.NewStartupLogger(name).
		CommitHash(commitHash).
		BuildTime(buildTime).
		InitDuration(time.Since(initStart)).
		Config("store", c.Store).
		Config("queue", c.Queue).
		Feature("analysis", c.GeminiAPIKey != "").
		Feature("moderation", c.Moderation).
		Feature("notifications", c.EventBus != "")
	if c.Bucket != "" {
		l.S3Bucket("media", c.Bucket)
	}
	if c.Store == config.StoreFS {
		l.Config("storeDir", c.StoreDir)
	}
	if c.QueueURL != "" {
		l.Queue("work", c.QueueURL)
	}
	if c.Table != "" {
		l.DynamoTable("catalog", c.Table)
	}
	if c.EventBus != "" {
		l.EventBus("artifacts", c.EventBus)
	}
	if os.Getenv("GEMINI_API_KEY") == "" {
		l.SSMParam("geminiApiKey", c.SSMAPIKeyParam)
	}
	return l
}

// Set at build time with -ldflags "-X".
var (
	commitHash string
	buildTime  string
)
