package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rcourtman/podsmon/internal/logging"
	"github.com/rcourtman/podsmon/internal/monitor"
	"github.com/rcourtman/podsmon/internal/resources"
	"github.com/spf13/cobra"
)

func newStatusCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "List the engine once and print per-kind counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			asJSON, _ := cmd.Flags().GetBool("json")
			timeout, _ := cmd.Flags().GetDuration("timeout")

			logging.Init(logging.Config{
				Format:    cfg.LogFormat,
				Level:     cfg.LogLevel,
				Component: "podsmon",
			})

			src, err := newSourceFn(cfg)
			if err != nil {
				return fmt.Errorf("connect to engine: %w", err)
			}
			defer src.Close()

			logger := logging.New("monitor",
				logging.WithWriter(cmd.ErrOrStderr()),
				logging.WithFields(map[string]interface{}{"command": "status"}),
			)
			mon := monitor.New(src, monitor.Config{Timeout: timeout, Strict: cfg.Strict, Logger: &logger})
			defer mon.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if err := mon.Refresh(ctx); err != nil {
				return fmt.Errorf("query engine: %w", err)
			}

			state := mon.State()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}
			return printStatusTable(cmd.OutOrStdout(), state)
		},
	}

	cmd.Flags().Bool("json", false, "Print the full listing as JSON")
	cmd.Flags().Duration("timeout", 10*time.Second, "Engine query timeout")
	return cmd
}

var statusColumns = []resources.Status{
	resources.StatusRunning,
	resources.StatusPaused,
	resources.StatusCreated,
	resources.StatusExited,
	resources.StatusStopped,
	resources.StatusDead,
	resources.StatusConfigured,
}

func printStatusTable(out io.Writer, state monitor.State) error {
	fmt.Fprintf(out, "Engine: %s\n\n", state.Engine)

	writer := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprint(writer, "KIND\tTOTAL")
	for _, status := range statusColumns {
		fmt.Fprintf(writer, "\t%s", status)
	}
	fmt.Fprintln(writer, "\tOTHER")

	for _, kind := range []resources.Kind{resources.KindContainer, resources.KindPod, resources.KindImage} {
		if kind == resources.KindPod && !state.PodsSupported {
			fmt.Fprintf(writer, "%s\tn/a\n", kind)
			continue
		}
		summary := state.Summary[kind]
		fmt.Fprintf(writer, "%s\t%d", kind, summary.Len)
		shown := 0
		for _, status := range statusColumns {
			n := summary.Counts[status]
			shown += n
			fmt.Fprintf(writer, "\t%d", n)
		}
		fmt.Fprintf(writer, "\t%d\n", summary.Len-shown)
	}
	return writer.Flush()
}
