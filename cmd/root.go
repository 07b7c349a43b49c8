package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/CodeMonkeyCybersecurity/paramflow/internal/config"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/logger"
	"github.com/CodeMonkeyCybersecurity/paramflow/internal/telemetry"
)

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger
	tel     telemetry.Telemetry
)

var rootCmd = &cobra.Command{
	Use:   "paramflow",
	Short: "Parameter correlation and secret provenance for captured HTTP traffic",
	Long: `paramflow - parameter correlation and provenance tracking

Groups every parameter instance in a capture by its decoded value, flags the
values that match your secret definitions and infers where each secret came
from by following it back through earlier requests and responses.

COMMANDS:
  paramflow analyze <capture.har>     - Correlate, classify and track a capture
  paramflow serve --capture <file>    - Serve results and controls over HTTP
  paramflow secrets validate <file>   - Check a secret definitions file
  paramflow secrets builtin           - Print the built-in secret catalogue

CONFIGURATION:
  Flags override PARAMFLOW_* environment variables, which override
  .paramflow.yaml in the working or home directory.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := initConfig(); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		var err error
		log, err = logger.New(cfg.Logger)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		tel, err = telemetry.New(context.Background(), cfg.Telemetry, logger.Version)
		if err != nil {
			log.Warnw("Telemetry disabled", "error", err)
			tel = telemetry.Noop()
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if tel != nil {
			if err := tel.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to flush telemetry: %v\n", err)
			}
		}
		if log != nil {
			// Sync errors on stdout/stderr are expected on Linux
			if err := log.Sync(); err != nil && !isStdSyncError(err) {
				fmt.Fprintf(os.Stderr, "Warning: failed to sync logger: %v\n", err)
			}
		}
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is .paramflow.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "auto", "log format (json, console, auto)")
	viper.BindPFlag("logger.level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("logger.format", rootCmd.PersistentFlags().Lookup("log-format"))

	rootCmd.PersistentFlags().Bool("telemetry", false, "export traces and metrics over OTLP/HTTP")
	viper.BindPFlag("telemetry.enabled", rootCmd.PersistentFlags().Lookup("telemetry"))
	viper.BindEnv("telemetry.endpoint", "PARAMFLOW_TELEMETRY_ENDPOINT", "OTEL_EXPORTER_OTLP_ENDPOINT")

	setDefaults(config.DefaultConfig())
}

// setDefaults registers every default so env vars resolve for keys no flag binds
func setDefaults(d *config.Config) {
	viper.SetDefault("logger.level", d.Logger.Level)
	viper.SetDefault("logger.format", d.Logger.Format)
	viper.SetDefault("logger.output_paths", d.Logger.OutputPaths)

	viper.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	viper.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
	viper.SetDefault("telemetry.exporter_type", d.Telemetry.ExporterType)
	viper.SetDefault("telemetry.endpoint", d.Telemetry.Endpoint)
	viper.SetDefault("telemetry.sample_rate", d.Telemetry.SampleRate)

	viper.SetDefault("analysis.ignore_names", d.Analysis.IgnoreNames)
	viper.SetDefault("analysis.ignore_empty", d.Analysis.IgnoreEmpty)
	viper.SetDefault("analysis.show_decoded", d.Analysis.ShowDecoded)
	viper.SetDefault("analysis.workers", d.Analysis.Workers)
	viper.SetDefault("analysis.track_mode", d.Analysis.TrackMode)
	viper.SetDefault("analysis.min_value_length", d.Analysis.MinValueLength)
	viper.SetDefault("analysis.scope", d.Analysis.Scope)

	viper.SetDefault("secrets.file", d.Secrets.File)
	viper.SetDefault("secrets.builtin", d.Secrets.Builtin)
	viper.SetDefault("secrets.custom", d.Secrets.Custom)

	viper.SetDefault("graph.row_gap", d.Graph.RowGap)
	viper.SetDefault("graph.column_gap", d.Graph.ColumnGap)

	viper.SetDefault("server.addr", d.Server.Addr)
	viper.SetDefault("server.rate_limit.requests_per_second", d.Server.RateLimit.RequestsPerSecond)
	viper.SetDefault("server.rate_limit.burst_size", d.Server.RateLimit.BurstSize)
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			viper.AddConfigPath(home)
		}
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".paramflow")
	}

	viper.SetEnvPrefix("PARAMFLOW")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg.Validate()
}

func isStdSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "/dev/stdout") || strings.Contains(msg, "/dev/stderr")
}

func GetConfig() *config.Config {
	return cfg
}

func GetLogger() *logger.Logger {
	return log
}
