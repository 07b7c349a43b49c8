package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/analysis"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/api"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the paramflow HTTP API server",
	Long: `Start the HTTP API server for one capture.

The server provides:
- Analysis control (POST/DELETE /api/v1/analyze) and status
- Parameters, cookies, secrets and the provenance graph as JSON
- A websocket progress stream at /api/v1/progress
- Health checks at /health

Example:
  paramflow serve --capture app.har --builtin-secrets
  paramflow serve --capture app.har --addr 127.0.0.1:9090 --analyze
`,
	RunE: runServe,
}

var (
	serveCapture string
	serveAnalyze bool
)

func init() {
	rootCmd.AddCommand(serveCmd)

	f := serveCmd.Flags()
	f.StringVar(&serveCapture, "capture", "", "HAR capture to serve (required)")
	f.BoolVar(&serveAnalyze, "analyze", false, "start an analysis as soon as the server is up")
	f.String("addr", "127.0.0.1:8080", "address to listen on")
	f.Int("rate-limit", 10, "requests per second per client, 0 disables")
	f.Int("rate-burst", 20, "rate limit burst size")
	f.String("secrets-file", "", "YAML file of secret definitions")
	f.Bool("builtin-secrets", false, "include the built-in secret catalogue")
	serveCmd.MarkFlagRequired("capture")

	viper.BindPFlag("server.addr", f.Lookup("addr"))
	viper.BindPFlag("server.rate_limit.requests_per_second", f.Lookup("rate-limit"))
	viper.BindPFlag("server.rate_limit.burst_size", f.Lookup("rate-burst"))
}

func runServe(cmd *cobra.Command, args []string) error {
	// secrets flags share viper keys with analyze, so read them directly
	secretsCfg := cfg.Secrets
	if f := cmd.Flags().Lookup("secrets-file"); f.Changed {
		secretsCfg.File = f.Value.String()
	}
	if b, _ := cmd.Flags().GetBool("builtin-secrets"); cmd.Flags().Changed("builtin-secrets") {
		secretsCfg.Builtin = b
	}

	src, err := capture.LoadHARFile(serveCapture)
	if err != nil {
		return err
	}
	for _, s := range src.Skipped {
		log.Warnw("Skipped capture entry", "entry", s.Entry, "error", s.Err)
	}

	set, err := buildSecretSet(secretsCfg)
	if err != nil {
		return err
	}

	log.Infow("Starting paramflow API server",
		"addr", cfg.Server.Addr,
		"capture", serveCapture,
		"messages", src.Len(),
		"secrets", set.Len(),
		"config_file", viper.ConfigFileUsed())

	manager := analysis.NewManager(log, tel)
	server := api.NewServer(cfg, log, manager, set, src)

	if serveAnalyze {
		pairs, err := src.Messages(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to read capture: %w", err)
		}
		pairs = capture.Scope{Hosts: cfg.Analysis.Scope}.Filter(pairs)
		req := analysis.RequestFromConfig(cfg.Analysis, cfg.Graph, pairs, set)
		if _, err := manager.Start(cmd.Context(), req, server.Hub()); err != nil {
			return err
		}
	}

	color.Cyan("paramflow API listening on http://%s\n", cfg.Server.Addr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := server.ListenAndServe(ctx); err != nil {
		return err
	}
	log.Infow("Server shutdown complete")
	return nil
}
