package main

import (
	"bytes"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fpang/media-pipeline/internal/cleanup"
	"github.com/fpang/media-pipeline/internal/export"
	"github.com/fpang/media-pipeline/internal/queue"
	"github.com/fpang/media-pipeline/internal/request"
	"github.com/fpang/media-pipeline/internal/router"
)

// Request flags shared by route, submit and process.
var (
	keyFlag       string
	namespaceFlag string
	typeFlag      string
	mediaIDFlag   string
	paramsFlag    map[string]string
)

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Source object key")
	cmd.Flags().StringVarP(&namespaceFlag, "namespace", "n", router.NamespaceOriginals, "Source namespace")
	cmd.Flags().StringVarP(&typeFlag, "type", "t", "", "Processing type (e.g. THUMBNAIL, FILTER)")
	cmd.Flags().StringVar(&mediaIDFlag, "media-id", "", "Media item to correlate the request with")
	cmd.Flags().StringToStringVarP(&paramsFlag, "param", "p", nil, "Processing parameter key=value (repeatable)")
}

// buildRequest assembles and validates a request from the flags.
func buildRequest() (request.Request, error) {
	t, err := request.ParseType(typeFlag)
	if err != nil {
		return request.Request{}, err
	}
	req := request.New(namespaceFlag, keyFlag, t, paramsFlag)
	if mediaIDFlag != "" {
		req = req.WithMediaID(mediaIDFlag)
	}
	if err := req.Validate(); err != nil {
		return request.Request{}, err
	}
	if _, err := router.ResolveRequest(req); err != nil {
		return request.Request{}, err
	}
	return req, nil
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List processing types with their engine and defaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeTypes(cmd.OutOrStdout())
	},
}

func writeTypes(out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tENGINE\tOUTPUT\tDEFAULTS")
	for _, t := range request.AllTypes() {
		plan, err := router.Resolve(t, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", t, plan.Engine, plan.ContentType, formatParams(plan.Params))
	}
	return tw.Flush()
}

func formatParams(p router.Params) string {
	if len(p) == 0 {
		return "-"
	}
	var b bytes.Buffer
	for _, k := range slices.Sorted(maps.Keys(p)) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		fmt.Fprintf(&b, "%s=%s", k, p[k])
	}
	return b.String()
}

var routeCmd = &cobra.Command{
	Use:   "route TYPE",
	Short: "Resolve a processing type and parameters to a plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := request.ParseType(args[0])
		if err != nil {
			return err
		}
		plan, err := router.Resolve(t, paramsFlag)
		if err != nil {
			return err
		}
		out := map[string]any{
			"processingType": t,
			"engine":         plan.Engine,
			"namespace":      plan.Namespace,
			"contentType":    plan.ContentType,
			"suffix":         plan.Suffix,
			"parameters":     plan.Params,
		}
		if keyFlag != "" {
			out["derivedKey"] = plan.DerivedKey(keyFlag)
		}
		return printJSON(cmd.OutOrStdout(), out)
	},
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Place a processing request on the work queue",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest()
		if err != nil {
			return err
		}
		env, err := loadEnv()
		if err != nil {
			return err
		}
		q, err := env.Queue(cmd.Context())
		if err != nil {
			return err
		}
		if err := queue.EnqueueRequest(cmd.Context(), q, req); err != nil {
			return err
		}
		body, _ := req.Encode()
		fmt.Fprintln(cmd.OutOrStdout(), body)
		return nil
	},
}

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run a processing request inline against the configured store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := buildRequest()
		if err != nil {
			return err
		}
		env, err := loadEnv()
		if err != nil {
			return err
		}
		w, err := env.Worker(cmd.Context(), nil)
		if err != nil {
			return err
		}
		start := time.Now()
		o, err := w.Process(cmd.Context(), req)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), map[string]any{
			"artifact":    o.Ref(),
			"contentType": o.ContentType,
			"size":        o.Size,
			"elapsed":     time.Since(start).String(),
		})
	},
}

var (
	dryRunFlag    bool
	retentionFlag time.Duration
	sweepNSFlag   string
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete expired objects from the temp namespace",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := loadEnv()
		if err != nil {
			return err
		}
		s, err := env.Store(cmd.Context())
		if err != nil {
			return err
		}
		sw := cleanup.New(s)
		sw.Namespace = sweepNSFlag
		sw.DryRun = dryRunFlag
		sw.Retention = env.Config.TempRetention
		if retentionFlag > 0 {
			sw.Retention = retentionFlag
		}
		report, err := sw.Sweep(cmd.Context())
		if perr := printJSON(cmd.OutOrStdout(), report); perr != nil {
			return perr
		}
		return err
	},
}

var (
	exportNSFlag     string
	exportPrefixFlag string
	exportOutFlag    string
	storeBackFlag    bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Bundle a namespace into a Zstandard-compressed ZIP",
	Long: `Bundle every object in a namespace (optionally under a key prefix) into a
ZIP whose entries use Zstandard compression. The bundle is written to --out,
or with --store-back into the temp namespace where cleanup expires it.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportOutFlag == "" && !storeBackFlag {
			return fmt.Errorf("one of --out or --store-back is required")
		}
		env, err := loadEnv()
		if err != nil {
			return err
		}
		s, err := env.Store(cmd.Context())
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		report, err := export.Bundle(cmd.Context(), s, exportNSFlag, exportPrefixFlag, &buf)
		if err != nil {
			return err
		}
		result := map[string]any{
			"files":   report.Files,
			"skipped": report.Skipped,
			"bytes":   report.Bytes,
			"zipSize": buf.Len(),
		}
		if exportOutFlag != "" {
			if err := os.WriteFile(exportOutFlag, buf.Bytes(), 0o644); err != nil {
				return fmt.Errorf("write bundle: %w", err)
			}
			result["out"] = exportOutFlag
		}
		if storeBackFlag {
			key := export.BundleKey(exportNSFlag, time.Now())
			if err := s.Put(cmd.Context(), router.NamespaceTemp, key, buf.Bytes(), "application/zip"); err != nil {
				return fmt.Errorf("store bundle: %w", err)
			}
			result["stored"] = router.NamespaceTemp + "/" + key
		}
		return printJSON(cmd.OutOrStdout(), result)
	},
}

func init() {
	addRequestFlags(submitCmd)
	addRequestFlags(processCmd)
	routeCmd.Flags().StringVarP(&keyFlag, "key", "k", "", "Source key to derive the artifact name from")
	routeCmd.Flags().StringToStringVarP(&paramsFlag, "param", "p", nil, "Processing parameter key=value (repeatable)")

	cleanupCmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Report expired objects without deleting them")
	cleanupCmd.Flags().DurationVar(&retentionFlag, "retention", 0, "Override TEMP_RETENTION_HOURS (e.g. 48h)")
	cleanupCmd.Flags().StringVar(&sweepNSFlag, "namespace", router.NamespaceTemp, "Namespace to sweep")

	exportCmd.Flags().StringVarP(&exportNSFlag, "namespace", "n", router.NamespaceProcessed, "Namespace to export")
	exportCmd.Flags().StringVar(&exportPrefixFlag, "prefix", "", "Only export keys with this prefix")
	exportCmd.Flags().StringVarP(&exportOutFlag, "out", "o", "", "File to write the bundle to")
	exportCmd.Flags().BoolVar(&storeBackFlag, "store-back", false, "Store the bundle in the temp namespace")
}
