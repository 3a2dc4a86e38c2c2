package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/loykin/gsmon"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds the persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
}

func buildRoot() *cobra.Command {
	flags := &GlobalFlags{}
	root := &cobra.Command{
		Use:   "gsmon",
		Short: "Game server supervisor",
		Long: `gsmon launches a D2GS game server, restarts it on a schedule through its
admin console, detects deadlocks and crashes, and relaunches it.

Examples:
  gsmon run                          # supervise using ./gsmon.toml
  gsmon run --config=/etc/gsmon.toml
  gsmon status                       # query the console once`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "gsmon.toml", "path to config file (toml, json or yaml)")

	root.AddCommand(
		createRunCommand(flags),
		createInitCommand(flags),
		createConsoleCommand(flags),
		createStatusCommand(flags),
		createGamesCommand(flags),
	)
	return root
}

func createRunCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Supervise the game server",
		Long: `Launch the game server and keep it running until interrupted.
A missing config file is created with default settings and gsmon exits so it
can be edited first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gsmon.LoadConfig(flags.ConfigPath)
			if errors.Is(err, gsmon.ErrConfigNotFound) {
				if err := gsmon.WriteDefaultConfig(flags.ConfigPath); err != nil {
					return fmt.Errorf("write default config: %w", err)
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Created default config %s. Edit it and run again.\n", flags.ConfigPath)
				return nil
			}
			if err != nil {
				return err
			}
			return runMonitor(cmd.Context(), cfg)
		},
	}
}

func runMonitor(ctx context.Context, cfg *gsmon.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := gsmon.New(cfg)
	if err != nil {
		return err
	}
	runErr := m.Run(ctx)
	return errors.Join(runErr, m.Close())
}

func createInitCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := gsmon.WriteDefaultConfig(flags.ConfigPath); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", flags.ConfigPath)
			return nil
		},
	}
}
