// pmlens - process variant analysis for event logs.
// Finds the distinct activity sequences in an event log and reports how
// frequency, satisfaction and duration vary across them.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/logflow/pmlens/pkg/analysis"
	"github.com/logflow/pmlens/pkg/config"
	"github.com/logflow/pmlens/pkg/logging"
	"github.com/logflow/pmlens/pkg/narrative"
	"github.com/logflow/pmlens/pkg/report"
	"github.com/logflow/pmlens/pkg/source"
	"github.com/logflow/pmlens/pkg/telemetry"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app carries everything built from configuration for one invocation.
type app struct {
	// Global flags
	configPath  string
	logLevel    string
	noNarrative bool

	manager   *config.Manager
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Provider
	closers   []func() error
}

func newRootCmd() *cobra.Command {
	a := &app{manager: config.NewManager()}

	root := &cobra.Command{
		Use:   "pmlens",
		Short: "pmlens - Process variant analysis for event logs",
		Long: `pmlens reads an event log (CSV, XLSX or Parquet), groups events into cases,
extracts each case's activity sequence and reports variant frequency,
satisfaction and duration together with a category summary and an optional
LLM-written narrative.`,
		Version:       fmt.Sprintf("%s (%s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return a.close()
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (layered on top of the default search paths)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&a.noNarrative, "no-narrative", false, "Skip the LLM narrative")

	root.AddCommand(newAnalyzeCmd(a))
	root.AddCommand(newWatchCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newConfigCmd(a))
	root.AddCommand(newVersionCmd())

	return root
}

// setup loads configuration and builds the logger and tracer provider.
func (a *app) setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := a.manager.Load(a.configPath); err != nil {
		return err
	}
	a.cfg = a.manager.Get()
	if a.logLevel != "" {
		a.cfg.Log.Level = a.logLevel
	}
	if a.noNarrative {
		a.cfg.Narrative.Enabled = false
	}

	logger, err := logging.New(a.cfg.Log)
	if err != nil {
		return err
	}
	a.logger = logger

	tcfg := a.cfg.Telemetry
	tcfg.ServiceVersion = version
	tp, err := telemetry.Setup(ctx, tcfg)
	if err != nil {
		a.logger.Warn("telemetry disabled", zap.Error(err))
	} else {
		a.telemetry = tp
	}
	return nil
}

// close flushes telemetry and releases the narrative cache.
func (a *app) close() error {
	for _, c := range a.closers {
		if err := c(); err != nil && a.logger != nil {
			a.logger.Warn("close", zap.Error(err))
		}
	}
	a.closers = nil

	if a.telemetry != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.telemetry.Shutdown(ctx); err != nil {
			a.logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	return nil
}

// analyzer builds an Analyzer from the loaded configuration. onComplete
// may be nil.
func (a *app) analyzer(ctx context.Context, onComplete func(string, error)) (*analysis.Analyzer, error) {
	cfg := a.cfg

	opts := analysis.DefaultOptions()
	opts.Schema = cfg.Schema
	opts.Format = formatFromConfig(cfg.Analysis.Format)
	opts.Load = cfg.Analysis.LoadOptions()
	opts.SummaryTopN = cfg.Analysis.SummaryTopN
	opts.Decimals = cfg.Analysis.Decimals
	opts.Parallelism = cfg.Analysis.Parallelism
	opts.Opener = source.NewOpener(cfg.Storage.S3)
	opts.OnComplete = onComplete

	if cfg.Narrative.Enabled {
		narrator, err := a.narrator(ctx)
		if err != nil {
			return nil, err
		}
		opts.Narrator = narrator
	}

	return analysis.New(opts, a.logger), nil
}

func (a *app) narrator(ctx context.Context) (*narrative.Service, error) {
	nc := a.cfg.Narrative

	key := a.manager.APIKey()
	if key == "" {
		a.logger.Warn("narrative API key not set, insights will fall back", zap.String("env", nc.APIKeyEnv))
	}

	client := narrative.NewClient(key,
		narrative.WithEndpoint(nc.Endpoint),
		narrative.WithModel(nc.Model),
		narrative.WithTemperature(nc.Temperature),
		narrative.WithTimeout(nc.Timeout),
		narrative.WithRetries(nc.MaxRetries, time.Second),
	)

	var cache narrative.Cache
	switch a.cfg.Cache.Backend {
	case "memory":
		cache = narrative.NewMemoryCache(a.cfg.Cache.TTL)
	case "redis":
		rc := a.cfg.Cache.Redis
		if rc.TTL == 0 {
			rc.TTL = a.cfg.Cache.TTL
		}
		redisCache, err := narrative.NewRedisCache(ctx, rc)
		if err != nil {
			a.logger.Warn("redis cache unavailable, continuing without cache", zap.Error(err))
			break
		}
		cache = redisCache
		a.closers = append(a.closers, redisCache.Close)
	}

	return narrative.NewService(client, cache, nc.Timeout, a.logger), nil
}

// reportOptions returns rendering options labelled with the configured schema.
func (a *app) reportOptions() report.Options {
	return report.OptionsFromSchema(a.cfg.Schema, a.cfg.Analysis.Decimals)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		// Skip config loading.
		PersistentPreRunE:  func(*cobra.Command, []string) error { return nil },
		PersistentPostRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "pmlens %s (%s)\n", version, commit)
		},
	}
}
