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
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/render"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/report"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/capture"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/graph"
	"github.com/CodeMonkeyCybersecurity/paramflow/pkg/tracker"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <capture.har>",
	Short: "Correlate parameters, classify secrets and track their provenance",
	Long: `Analyze an HTTP Archive capture.

Every URL, body, cookie, JSON and REST path parameter is grouped by decoded
value. Parameters matching a secret definition (or every parameter with
--track all) become vertices of a provenance graph whose edges point from the
parameter a value was derived from to the parameter carrying it.

Examples:
  paramflow analyze login.har --builtin-secrets
  paramflow analyze app.har --secret session='^[A-F0-9]{32}$' --graph
  paramflow analyze app.har --track all --scope '*.example.com' --output report.json`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeOutput  string
	analyzeGraph   bool
	analyzeEncoded bool
)

func init() {
	rootCmd.AddCommand(analyzeCmd)

	f := analyzeCmd.Flags()
	f.StringSlice("ignore", nil, "parameter names to ignore (default __VIEWSTATE,__VIEWSTATEGENERATOR)")
	f.Bool("ignore-empty", false, "skip parameters with empty values")
	f.BoolVar(&analyzeEncoded, "show-encoded", false, "display values as captured instead of decoded")
	f.String("secrets-file", "", "YAML file of secret definitions")
	f.Bool("builtin-secrets", false, "include the built-in secret catalogue")
	f.StringArray("secret", nil, "secret definition as name=regex (repeatable)")
	f.String("track", "auto", "parameters to track: secrets, all or auto")
	f.StringSlice("scope", nil, "hosts to analyze, e.g. app.example.com or *.example.com")
	f.Int("min-length", 4, "shortest value matched by text containment")
	f.Int("workers", 4, "parallel extraction workers")
	f.StringVarP(&analyzeOutput, "output", "o", "", "write a JSON report to this file")
	f.BoolVar(&analyzeGraph, "graph", false, "draw the provenance graph in the terminal")

	viper.BindPFlag("analysis.ignore_names", f.Lookup("ignore"))
	viper.BindPFlag("analysis.ignore_empty", f.Lookup("ignore-empty"))
	viper.BindPFlag("secrets.file", f.Lookup("secrets-file"))
	viper.BindPFlag("secrets.builtin", f.Lookup("builtin-secrets"))
	viper.BindPFlag("secrets.custom", f.Lookup("secret"))
	viper.BindPFlag("analysis.track_mode", f.Lookup("track"))
	viper.BindPFlag("analysis.scope", f.Lookup("scope"))
	viper.BindPFlag("analysis.min_value_length", f.Lookup("min-length"))
	viper.BindPFlag("analysis.workers", f.Lookup("workers"))
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if cmd.Flags().Changed("show-encoded") {
		cfg.Analysis.ShowDecoded = !analyzeEncoded
	}

	src, err := capture.LoadHARFile(args[0])
	if err != nil {
		return err
	}
	for _, s := range src.Skipped {
		log.Warnw("Skipped capture entry", "entry", s.Entry, "error", s.Err)
	}

	set, err := buildSecretSet(cfg.Secrets)
	if err != nil {
		return err
	}

	pairs, err := src.Messages(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read capture: %w", err)
	}
	pairs = capture.Scope{Hosts: cfg.Analysis.Scope}.Filter(pairs)

	log.Infow("Starting analysis",
		"capture", args[0],
		"messages", len(pairs),
		"secrets", set.Len(),
		"track_mode", cfg.Analysis.TrackMode)

	req := analysis.RequestFromConfig(cfg.Analysis, cfg.Graph, pairs, set)

	var renderer graph.Renderer[*tracker.TrackedParameter] = render.DefaultMetrics()
	term := render.NewTerminal()
	if analyzeGraph {
		req.Graph = term.Options()
		renderer = term
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res := analysis.NewRun(log, tel, req, newConsoleProgress(os.Stderr)).Execute(ctx)

	out := cmd.OutOrStdout()
	displaySummary(out, res)

	if analyzeGraph && res.Graph != nil {
		scene := res.Graph.Render(term)
		fmt.Fprintln(out)
		fmt.Fprintln(out, term.Draw(scene))
		for _, line := range render.Edges(scene) {
			fmt.Fprintf(out, "  %s\n", line)
		}
	}

	if analyzeOutput != "" {
		if err := report.WriteFile(analyzeOutput, report.Build(res, renderer)); err != nil {
			return err
		}
		color.Green("\nReport written to %s\n", analyzeOutput)
	}

	if res.Err != nil && !res.Interrupted {
		return res.Err
	}
	return nil
}
