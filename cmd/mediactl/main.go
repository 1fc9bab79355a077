// Command mediactl is the operator CLI for the media pipeline. It reads the
// same environment as the services, so it can queue work against SQS, run a
// request inline against a local store, sweep the temp namespace, or export
// a namespace as a ZIP bundle.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/media-pipeline/internal/boot"
	"github.com/fpang/media-pipeline/internal/config"
	"github.com/fpang/media-pipeline/internal/logging"
)

// rootCmd is the main Cobra command for mediactl.
var rootCmd = &cobra.Command{
	Use:   "mediactl",
	Short: "Operate the media transformation pipeline",
	Long: `mediactl inspects routing, submits processing requests and maintains the
content store of the media pipeline. Backends come from the environment
(MEDIA_STORE, MEDIA_QUEUE, MEDIA_BUCKET, ...) or a .env file.

Examples:
  mediactl types
  mediactl route FILTER -p type=sepia --key cat.jpg
  mediactl submit --key cat.jpg --type THUMBNAIL
  MEDIA_STORE=fs mediactl process --key cat.jpg --type RESIZE -p width=640
  mediactl cleanup --dry-run
  mediactl export --namespace processed --out processed.zip`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init()
	},
}

func init() {
	rootCmd.AddCommand(typesCmd, routeCmd, submitCmd, processCmd, cleanupCmd, exportCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadEnv reads configuration for commands that touch a backend.
func loadEnv() (*boot.Env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log.Debug().Str("store", cfg.Store).Str("queue", cfg.Queue).Msg("Configuration loaded")
	return boot.New(cfg), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
