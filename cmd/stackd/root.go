package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"stackd/internal/config"
	"stackd/internal/ctl"
	"stackd/pkg/types"
)

type rootOptions struct {
	configPath string
	addr       string
	logLevel   string
	logJSON    bool
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// newRootCmd constructs the Cobra command tree.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "stackd",
		Short:         "Supervisor for a local model-serving stack",
		Long:          "stackd starts a set of interdependent services in dependency order,\nprobes their health, restarts crashed services within a bounded window,\nand tears the stack down in reverse order.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c",
		envOr("STACKD_CONFIG", "stack.yaml"), "Path to the stack file (yaml, json or toml)")
	root.PersistentFlags().StringVar(&opts.addr, "addr",
		envOr("STACKD_ADDR", ""), "Management API address (overrides the stack file)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level",
		envOr("STACKD_LOG_LEVEL", ""), "Log level: debug|info|warn|error")
	root.PersistentFlags().BoolVar(&opts.logJSON, "log-json",
		os.Getenv("STACKD_LOG_JSON") == "1", "Emit JSON logs instead of console output")

	root.AddCommand(
		newUpCmd(opts),
		newPlanCmd(opts),
		newStatusCmd(opts),
		newHealthCmd(opts),
		newRestartCmd(opts),
		newStopCmd(opts),
	)
	return root
}

// newLogger builds the process logger. Console output by default; JSON for
// log collectors.
func newLogger(opts *rootOptions, cfgLevel string) zerolog.Logger {
	level := opts.logLevel
	if level == "" {
		level = cfgLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if opts.logJSON {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return log.Level(lvl).With().Timestamp().Logger()
}

// apiAddr resolves the management API address for client subcommands:
// explicit flag, then the stack file, then the package default.
func apiAddr(opts *rootOptions) string {
	if opts.addr != "" {
		return opts.addr
	}
	if cfg, err := config.Load(opts.configPath); err == nil {
		return cfg.Listen
	}
	return config.DefaultListen
}

func clientContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

func newStatusCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show per-service state of a running stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := clientContext()
			defer cancel()
			st, err := ctl.New(apiAddr(opts)).Status(ctx)
			if err != nil {
				return err
			}
			printStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

func newHealthCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show aggregate health of a running stack",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := clientContext()
			defer cancel()
			h, err := ctl.New(apiAddr(opts)).Health(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s  running=%d unhealthy=%d failed=%d stopped=%d\n",
				h.Status, h.Running, h.Unhealthy, h.Failed, h.Stopped)
			if h.Status == types.HealthFailed {
				return fmt.Errorf("one or more services are failed")
			}
			return nil
		},
	}
}

func newRestartCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart <service>",
		Short: "Manually restart one service, clearing its failure window",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := clientContext()
			defer cancel()
			resp, err := ctl.New(apiAddr(opts)).Restart(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", resp.Service, resp.State)
			return nil
		},
	}
}

func newStopCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Shut a running stack down in reverse dependency order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := clientContext()
			defer cancel()
			if err := ctl.New(apiAddr(opts)).Shutdown(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "shutdown requested")
			return nil
		},
	}
}

func printStatus(w io.Writer, st types.StatusResponse) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tPID\tRESTARTS\tWINDOW\tPROBE\tLAST ERROR")
	for _, s := range st.Services {
		pid := "-"
		if s.PID != 0 {
			pid = fmt.Sprintf("%d", s.PID)
		}
		probe := s.LastProbe
		if probe == "" {
			probe = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			s.Name, s.State, pid, s.Restarts, s.WindowFailures, probe, s.LastError)
	}
	tw.Flush()
}
