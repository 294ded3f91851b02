package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tania-lang/trublog-writer/internal/config"
	"github.com/tania-lang/trublog-writer/internal/metrics"
)

// app carries state shared by every subcommand.
type app struct {
	cfgFile     string
	logLevel    string
	metricsPort int

	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Server
}

func newRootCmd() *cobra.Command {
	cmd, _ := newApp()
	return cmd
}

// newApp returns the root command and the state its subcommands share.
// Callers must call close once Execute returns.
func newApp() (*cobra.Command, *app) {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "trublog",
		Short:         "Harvest blog and content URLs from a site's sitemaps",
		Long:          "trublog discovers a domain's sitemaps (robots.txt, well-known paths, content subdomains) and lists its English content pages.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default ./trublog.yaml or $HOME/.trublog/trublog.yaml)")
	rootCmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level: debug|info|warn|error (overrides log.level)")
	rootCmd.PersistentFlags().IntVar(&a.metricsPort, "metrics-port", 0, "serve Prometheus metrics on this port (overrides metrics.port)")

	rootCmd.AddCommand(newHarvestCmd(a))
	rootCmd.AddCommand(newResolveCmd(a))
	rootCmd.AddCommand(newReportCmd(a))

	return rootCmd, a
}

// close stops the metrics server. cobra skips post-run hooks when a command
// fails, so this runs from main regardless of the outcome.
func (a *app) close(ctx context.Context) error {
	srv := a.metrics
	a.metrics = nil
	return srv.Stop(ctx)
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.cfgFile)
	if err != nil {
		return err
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if cmd.Flags().Changed("metrics-port") {
		cfg.Metrics.Port = a.metricsPort
	}
	a.cfg = cfg

	logger, err := newLogger(cmd.ErrOrStderr(), cfg.Log)
	if err != nil {
		return err
	}
	a.logger = logger
	slog.SetDefault(logger)

	if cfg.Metrics.Port > 0 {
		srv, err := metrics.Start(cfg.Metrics.Port, logger)
		if err != nil {
			return err
		}
		a.metrics = srv
	}
	return nil
}

// newLogger builds the slog handler selected by log.format and log.level.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "", "info":
		level = slog.LevelInfo
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", cfg.Level)
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
