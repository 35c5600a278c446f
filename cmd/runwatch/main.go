package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/runwatch/internal/endpoint"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the root command and wires the subcommands.
func buildRoot() *cobra.Command {
	serveFlags := &ServeFlags{}
	publishFlags := &PublishFlags{}
	tailFlags := &TailFlags{}
	sweepFlags := &SweepFlags{}
	endpointFlags := &EndpointFlags{}

	runwatchCommand := command{}

	root := createRootCommand()
	root.AddCommand(
		createServeCommand(runwatchCommand, serveFlags),
		createPublishCommand(runwatchCommand, publishFlags),
		createTailCommand(runwatchCommand, tailFlags),
		createSweepCommand(runwatchCommand, sweepFlags),
		createEndpointCommand(runwatchCommand, endpointFlags),
	)
	return root
}

func createRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runwatch",
		Short: "Watchdog for externally launched test-automation runs",
		Long: `Runwatch watches test-automation processes it did not launch, pairs
them with browser debug endpoints and failure reports, and appends one
started and one terminal event per run to a rotated JSONL log.

Examples:
  runwatch serve                               # Watch with defaults
  runwatch serve config.toml                   # Watch with a config file
  runwatch publish --run-id=123-456 --port=9222
  runwatch tail -n 20                          # Newest events
  runwatch sweep --max-age=24h                 # Drop stale descriptors`,
	}
}

// createServeCommand creates the serve subcommand
func createServeCommand(runwatchCommand command, serveFlags *ServeFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the watchdog",
		Long: `Run the watchdog loop: observe processes, classify subjects and
emit lifecycle events until interrupted.

Examples:
  runwatch serve
  runwatch serve config.toml
  runwatch serve --base-dir=/var/lib/runwatch --metrics-listen=:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runwatchCommand.Serve(*serveFlags, args)
		},
	}
	cmd.Flags().StringVar(&serveFlags.ConfigPath, "config", "", "path to TOML config file (optional)")
	cmd.Flags().StringVar(&serveFlags.BaseDir, "base-dir", "", "override the runtime directory")
	cmd.Flags().StringVar(&serveFlags.Source, "source", "", "process event source: auto, poll or netlink")
	cmd.Flags().StringVar(&serveFlags.MetricsListen, "metrics-listen", "", "expose /metrics on this address")
	return cmd
}

// createPublishCommand creates the publish subcommand
func createPublishCommand(runwatchCommand command, publishFlags *PublishFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "publish",
		Short: "Discover and publish a browser debug endpoint",
		Long: `Wait for a spawned browser to expose its debugging address and write
the descriptor file consumers resolve by run id.

Examples:
  runwatch publish --run-id=4242-1700000000000 --port=9222
  runwatch publish --run-id=4242-1700000000000 --user-data-dir=/tmp/profile`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runwatchCommand.Publish(*publishFlags)
		},
	}
	cmd.Flags().StringVar(&publishFlags.BaseDir, "base-dir", "", "override the runtime directory")
	cmd.Flags().StringVar(&publishFlags.RunID, "run-id", "", "run identifier (required)")
	cmd.Flags().IntVar(&publishFlags.Port, "port", 0, "debug port to probe via /json/version")
	cmd.Flags().StringVar(&publishFlags.UserDataDir, "user-data-dir", "", "browser profile dir holding DevToolsActivePort")
	cmd.Flags().IntVar(&publishFlags.Attempts, "attempts", endpoint.DefaultAttempts, "discovery attempts")
	cmd.Flags().DurationVar(&publishFlags.Interval, "interval", endpoint.DefaultInterval, "delay between attempts")
	if err := cmd.MarkFlagRequired("run-id"); err != nil {
		panic(err)
	}
	return cmd
}

// createTailCommand creates the tail subcommand
func createTailCommand(runwatchCommand command, tailFlags *TailFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Print the newest lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runwatchCommand.Tail(*tailFlags)
		},
	}
	cmd.Flags().StringVar(&tailFlags.ConfigPath, "config", "", "path to TOML config file (optional)")
	cmd.Flags().StringVar(&tailFlags.BaseDir, "base-dir", "", "override the runtime directory")
	cmd.Flags().IntVarP(&tailFlags.Count, "lines", "n", 10, "number of events")
	return cmd
}

// createSweepCommand creates the sweep subcommand
func createSweepCommand(runwatchCommand command, sweepFlags *SweepFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove stale endpoint descriptors",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runwatchCommand.Sweep(*sweepFlags)
		},
	}
	cmd.Flags().StringVar(&sweepFlags.BaseDir, "base-dir", "", "override the runtime directory")
	cmd.Flags().DurationVar(&sweepFlags.MaxAge, "max-age", 24*time.Hour, "descriptor age cutoff")
	return cmd
}

// createEndpointCommand creates the endpoint subcommand
func createEndpointCommand(runwatchCommand command, endpointFlags *EndpointFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoint",
		Short: "Print the debug endpoint descriptor for a run",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runwatchCommand.Endpoint(*endpointFlags)
		},
	}
	cmd.Flags().StringVar(&endpointFlags.BaseDir, "base-dir", "", "override the runtime directory")
	cmd.Flags().StringVar(&endpointFlags.RunID, "run-id", "", "run identifier (required)")
	if err := cmd.MarkFlagRequired("run-id"); err != nil {
		panic(err)
	}
	return cmd
}
