package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/loykin/gsmon"
)

func createConsoleCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "console <command...>",
		Short: "Run one admin console command and print the raw reply",
		Example: `  gsmon console gl
  gsmon console restart 30`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gsmon.LoadConfig(flags.ConfigPath)
			if err != nil {
				return err
			}
			out, err := gsmon.Exec(cmd.Context(), cfg, strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprint(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

func createStatusCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the parsed server status as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gsmon.LoadConfig(flags.ConfigPath)
			if err != nil {
				return err
			}
			st, err := gsmon.QueryStatus(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), st)
		},
	}
}

func createGamesCommand(flags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "games",
		Short: "Print the running games as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := gsmon.LoadConfig(flags.ConfigPath)
			if err != nil {
				return err
			}
			games, err := gsmon.QueryGames(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), games)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
