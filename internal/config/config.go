package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/mattn/go-isatty"
)

type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Secrets   SecretsConfig   `mapstructure:"secrets"`
	Graph     GraphConfig     `mapstructure:"graph"`
	Server    ServerConfig    `mapstructure:"server"`
}

type LoggerConfig struct {
	Level       string   `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format      string   `mapstructure:"format" validate:"oneof=json console auto"`
	OutputPaths []string `mapstructure:"output_paths"`
}

// ResolvedFormat turns "auto" into console on a terminal and json otherwise
func (c LoggerConfig) ResolvedFormat() string {
	if c.Format != "auto" && c.Format != "" {
		return c.Format
	}
	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		return "console"
	}
	return "json"
}

type TelemetryConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ServiceName  string  `mapstructure:"service_name" validate:"required_if=Enabled true"`
	ExporterType string  `mapstructure:"exporter_type" validate:"omitempty,oneof=otlp none"`
	Endpoint     string  `mapstructure:"endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate" validate:"gte=0,lte=1"`
}

// Track modes select which correlated parameters seed the provenance graph
const (
	TrackSecrets = "secrets"
	TrackAll     = "all"
	TrackAuto    = "auto"
)

type AnalysisConfig struct {
	IgnoreNames    []string `mapstructure:"ignore_names"`
	IgnoreEmpty    bool     `mapstructure:"ignore_empty"`
	ShowDecoded    bool     `mapstructure:"show_decoded"`
	Workers        int      `mapstructure:"workers" validate:"min=1,max=64"`
	TrackMode      string   `mapstructure:"track_mode" validate:"oneof=secrets all auto"`
	MinValueLength int      `mapstructure:"min_value_length" validate:"min=1"`
	Scope          []string `mapstructure:"scope"`
}

type SecretsConfig struct {
	File    string   `mapstructure:"file"`
	Builtin bool     `mapstructure:"builtin"`
	Custom  []string `mapstructure:"custom"` // name=regex
}

type GraphConfig struct {
	RowGap    int `mapstructure:"row_gap" validate:"min=0"`
	ColumnGap int `mapstructure:"column_gap" validate:"min=0"`
}

type ServerConfig struct {
	Addr      string          `mapstructure:"addr" validate:"required"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	RequestsPerSecond int `mapstructure:"requests_per_second" validate:"min=0"`
	BurstSize         int `mapstructure:"burst_size" validate:"min=0"`
}

var validate = validator.New()

// Validate checks field constraints and reports every violation at once
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		errs = append(errs, fmt.Errorf("%s: failed %q (value %v)", strings.TrimPrefix(fe.Namespace(), "Config."), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
}

func DefaultConfig() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level:       "info",
			Format:      "auto",
			OutputPaths: []string{"stderr"},
		},
		Telemetry: TelemetryConfig{
			Enabled:      false,
			ServiceName:  "paramflow",
			ExporterType: "otlp",
			Endpoint:     "localhost:4318",
			SampleRate:   1.0,
		},
		Analysis: AnalysisConfig{
			IgnoreNames:    []string{"__VIEWSTATE", "__VIEWSTATEGENERATOR"},
			IgnoreEmpty:    false,
			ShowDecoded:    true,
			Workers:        4,
			TrackMode:      TrackAuto,
			MinValueLength: 4,
		},
		Secrets: SecretsConfig{
			Builtin: false,
		},
		Graph: GraphConfig{
			RowGap:    20,
			ColumnGap: 60,
		},
		Server: ServerConfig{
			Addr: "127.0.0.1:8080",
			RateLimit: RateLimitConfig{
				RequestsPerSecond: 10,
				BurstSize:         20,
			},
		},
	}
}
