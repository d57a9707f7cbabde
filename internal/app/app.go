// Package app assembles the analysis pipeline from configuration and the
// global command-line flags.
package app

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/klytics/creditkit/internal/ai"
	"github.com/klytics/creditkit/internal/analysis"
	"github.com/klytics/creditkit/internal/config"
	"github.com/klytics/creditkit/internal/logging"
	"github.com/klytics/creditkit/internal/metrics"
)

// Options override configuration values. Empty fields keep the configured value.
type Options struct {
	ConfigFile string
	Provider   string
	Model      string
	Verbose    bool
	LogWriter  io.Writer
}

// App holds the wired pipeline.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Client   *ai.Client
	Analyzer *analysis.Analyzer
}

// New loads configuration, applies opts and builds the pipeline.
func New(opts Options) (*App, error) {
	cfg, err := config.LoadFile(opts.ConfigFile)
	if err != nil {
		return nil, err
	}
	if opts.Provider != "" {
		cfg.Provider = opts.Provider
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if err := config.Check(cfg); err != nil {
		return nil, err
	}
	return FromConfig(cfg, opts)
}

// FromConfig builds the pipeline from an already-loaded configuration.
func FromConfig(cfg *config.Config, opts Options) (*App, error) {
	level := cfg.Log.Level
	if opts.Verbose {
		level = "debug"
	}
	logger := logging.New(logging.Options{Level: level, Format: cfg.Log.Format, Writer: opts.LogWriter})

	provider, err := ai.NewProvider(cfg.ProviderConfig())
	if err != nil {
		return nil, fmt.Errorf("could not set up model provider: %w", err)
	}

	client := ai.NewClient(provider, cfg.RetryPolicy())
	client.Logger = logger

	m := metrics.New()
	analyzer := analysis.NewAnalyzer(client)
	analyzer.Format = cfg.FormatOptions()
	analyzer.Prompt = cfg.PromptOptions()
	analyzer.Metrics = m
	analyzer.Logger = logger

	logger.Debug("pipeline ready",
		slog.String("provider", provider.Name()),
		slog.String("model", cfg.Model),
		slog.Int("max_attempts", cfg.Retry.MaxAttempts))

	return &App{
		Config:   cfg,
		Logger:   logger,
		Metrics:  m,
		Client:   client,
		Analyzer: analyzer,
	}, nil
}

// FromCommand reads the root persistent flags of cmd and calls New.
func FromCommand(cmd *cobra.Command) (*App, error) {
	configFile, _ := cmd.Flags().GetString("config")
	provider, _ := cmd.Flags().GetString("provider")
	model, _ := cmd.Flags().GetString("model")
	verbose, _ := cmd.Flags().GetBool("verbose")

	return New(Options{
		ConfigFile: configFile,
		Provider:   provider,
		Model:      model,
		Verbose:    verbose,
		LogWriter:  cmd.ErrOrStderr(),
	})
}
