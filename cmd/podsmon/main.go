package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rcourtman/podsmon/internal/config"
	"github.com/rcourtman/podsmon/internal/engine"
	"github.com/rcourtman/podsmon/internal/logging"
	"github.com/rcourtman/podsmon/internal/monitor"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// engineSource is what the commands need from an engine client.
type engineSource interface {
	monitor.Source
	Ping(ctx context.Context) (string, error)
	Close() error
}

var newSourceFn = func(cfg *config.Config) (engineSource, error) {
	logger := logging.New("engine")
	return engine.New(engine.Config{Host: cfg.EngineHost, Logger: &logger})
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "podsmon",
		Short: "podsmon - live container, pod and image tracking for Docker and Podman",
		Long: `podsmon keeps an observable model of the containers, pods and images managed by a
Docker or Podman engine, and exposes it as Prometheus metrics and a websocket event stream.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.String("engine-host", "", "Engine endpoint, e.g. unix:///run/podman/podman.sock (overrides PODSMON_ENGINE_HOST)")
	pf.String("log-level", "", "Log level: trace, debug, info, warn, error (overrides PODSMON_LOG_LEVEL)")
	pf.String("log-format", "", "Log format: json, console or auto (overrides PODSMON_LOG_FORMAT)")
	pf.Bool("strict", false, "Panic on collection contract violations (overrides PODSMON_STRICT)")

	cmd.AddCommand(newRunCommand(), newStatusCommand(), newVersionCommand())
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "podsmon %s\n", Version)
			if BuildTime != "unknown" {
				fmt.Fprintf(out, "Built: %s\n", BuildTime)
			}
			if GitCommit != "unknown" {
				fmt.Fprintf(out, "Commit: %s\n", GitCommit)
			}
		},
	}
}

// loadConfig reads the environment, then applies any flags the user set.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("engine-host") {
		cfg.EngineHost, _ = flags.GetString("engine-host")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		cfg.LogFormat, _ = flags.GetString("log-format")
	}
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("listen") {
		cfg.ListenAddr, _ = flags.GetString("listen")
	}
	if flags.Changed("interval") {
		cfg.RefreshInterval, _ = flags.GetDuration("interval")
	}
	if flags.Changed("no-watch") {
		noWatch, _ := flags.GetBool("no-watch")
		cfg.WatchEvents = !noWatch
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate flags: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
