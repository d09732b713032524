package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rcourtman/podsmon/internal/config"
	"github.com/rcourtman/podsmon/internal/logging"
	"github.com/rcourtman/podsmon/internal/metrics"
	"github.com/rcourtman/podsmon/internal/monitor"
	"github.com/rcourtman/podsmon/internal/websocket"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Track the engine and serve /metrics, /ws and /healthz",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			logging.Init(logging.Config{
				Format:    cfg.LogFormat,
				Level:     cfg.LogLevel,
				Component: "podsmon",
			})

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return runServer(ctx, cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("listen", config.DefaultListenAddr, "HTTP listen address (overrides PODSMON_LISTEN_ADDR)")
	flags.Duration("interval", config.DefaultRefreshInterval, "Engine refresh interval (overrides PODSMON_REFRESH_INTERVAL)")
	flags.Bool("no-watch", false, "Poll only; do not subscribe to engine events")
	return cmd
}

// runServer runs the monitor, the event watcher, the websocket hub and the
// HTTP server until ctx is cancelled or one of them fails.
func runServer(ctx context.Context, cfg *config.Config) error {
	src, err := newSourceFn(cfg)
	if err != nil {
		return fmt.Errorf("connect to engine: %w", err)
	}
	defer src.Close()

	if version, err := src.Ping(ctx); err != nil {
		log.Warn().Err(err).Str("engine_host", src.Host()).Msg("Engine not reachable yet; will keep polling")
	} else {
		log.Info().Str("engine_host", src.Host()).Str("engine_version", version).Msg("Connected to engine")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	hub := websocket.NewHub(nil)
	hub.SetAllowedOrigins(cfg.AllowedOrigins)
	recorder := metrics.NewRecorder(reg, hub.GetClientCount)

	monLogger := logging.New("monitor", logging.WithFields(map[string]interface{}{"command": "run"}))
	mon := monitor.New(src, monitor.Config{
		Interval:    cfg.RefreshInterval,
		WatchEvents: cfg.WatchEvents,
		Strict:      cfg.Strict,
		Logger:      &monLogger,
		Observers:   []monitor.Observer{recorder, hub},
		Refresh:     recorder,
	})
	defer mon.Close()
	hub.SetStateGetter(mon.Snapshot)

	srv := newHTTPServer(cfg.ListenAddr, newMux(reg, hub, mon.State))

	log.Info().
		Str("listen", cfg.ListenAddr).
		Dur("interval", cfg.RefreshInterval).
		Bool("watch_events", cfg.WatchEvents).
		Msg("Starting podsmon")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run()
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		hub.Stop()
		return nil
	})
	g.Go(func() error {
		if err := mon.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("monitor: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return mon.Watch(gctx)
	})
	g.Go(func() error {
		return serveHTTP(gctx, srv)
	})

	err = g.Wait()
	log.Info().Msg("podsmon stopped")
	return err
}
