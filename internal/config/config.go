// Package config reads pipeline settings from the environment. A .env file in
// the working directory, when present, is loaded first and never overrides
// variables that are already set.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Backend names.
const (
	StoreS3     = "s3"
	StoreFS     = "fs"
	StoreMemory = "memory"
	QueueSQS    = "sqs"
	QueueMemory = "memory"
)

// DefaultSSMAPIKeyParam is the SSM path of the Gemini API key.
const DefaultSSMAPIKeyParam = "/media-pipeline/prod/gemini-api-key"

// Config is the full set of settings shared by every binary. Each binary
// reads only what it needs.
type Config struct {
	Bucket   string
	Store    string
	StoreDir string

	QueueURL          string
	Queue             string
	QueueWait         time.Duration
	QueueVisibility   time.Duration
	WorkerConcurrency int

	Table    string
	EventBus string

	HTTPAddr    string
	MetricsAddr string

	FFmpegPath string
	TempDir    string

	GeminiAPIKey   string
	GeminiModel    string
	SSMAPIKeyParam string
	Moderation     bool

	TempRetention time.Duration
}

// Load reads .env (if any) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Msg("Ignoring unreadable .env file")
	}
	return FromEnv()
}

// FromEnv reads the environment without touching .env.
func FromEnv() (Config, error) {
	p := parser{}
	c := Config{
		Bucket:   os.Getenv("MEDIA_BUCKET"),
		Store:    strings.ToLower(envOr("MEDIA_STORE", StoreS3)),
		StoreDir: envOr("MEDIA_STORE_DIR", "./media-data"),

		QueueURL:          os.Getenv("MEDIA_QUEUE_URL"),
		Queue:             strings.ToLower(envOr("MEDIA_QUEUE", QueueSQS)),
		QueueWait:         p.seconds("QUEUE_WAIT_SECONDS", 10),
		QueueVisibility:   p.seconds("QUEUE_VISIBILITY_SECONDS", 300),
		WorkerConcurrency: p.int("WORKER_CONCURRENCY", 4),

		Table:    os.Getenv("MEDIA_TABLE"),
		EventBus: os.Getenv("MEDIA_EVENT_BUS"),

		HTTPAddr:    envOr("HTTP_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":2112"),

		FFmpegPath: os.Getenv("FFMPEG_PATH"),
		TempDir:    os.Getenv("MEDIA_TEMP_DIR"),

		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		GeminiModel:    os.Getenv("GEMINI_MODEL"),
		SSMAPIKeyParam: envOr("SSM_API_KEY_PARAM", DefaultSSMAPIKeyParam),
		Moderation:     p.bool("MEDIA_MODERATION", false),

		TempRetention: time.Duration(p.int("TEMP_RETENTION_HOURS", 168)) * time.Hour,
	}
	if err := p.err(); err != nil {
		return Config{}, err
	}
	return c, c.Validate()
}

// Validate checks backend names and the settings each backend requires.
func (c Config) Validate() error {
	var errs []error
	switch c.Store {
	case StoreS3:
		if c.Bucket == "" {
			errs = append(errs, errors.New("MEDIA_BUCKET is required when MEDIA_STORE=s3"))
		}
	case StoreFS:
		if c.StoreDir == "" {
			errs = append(errs, errors.New("MEDIA_STORE_DIR is required when MEDIA_STORE=fs"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("MEDIA_STORE: unknown backend %q", c.Store))
	}
	switch c.Queue {
	case QueueSQS, QueueMemory:
	default:
		errs = append(errs, fmt.Errorf("MEDIA_QUEUE: unknown backend %q", c.Queue))
	}
	if c.WorkerConcurrency < 1 {
		errs = append(errs, errors.New("WORKER_CONCURRENCY must be at least 1"))
	}
	if c.QueueWait > 20*time.Second {
		errs = append(errs, errors.New("QUEUE_WAIT_SECONDS must be at most 20"))
	}
	return errors.Join(errs...)
}

// RequireQueueURL fails when the SQS queue is selected without a URL.
func (c Config) RequireQueueURL() error {
	if c.Queue == QueueSQS && c.QueueURL == "" {
		return errors.New("MEDIA_QUEUE_URL is required when MEDIA_QUEUE=sqs")
	}
	return nil
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not an integer", key, v))
		return def
	}
	return n
}

func (p *parser) seconds(key string, def int) time.Duration {
	return time.Duration(p.int(key, def)) * time.Second
}

func (p *parser) bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %q is not a boolean", key, v))
		return def
	}
	return b
}

func (p *parser) err() error { return errors.Join(p.errs...) }
