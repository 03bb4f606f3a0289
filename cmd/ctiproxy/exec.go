package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-cti/internal/commands"
	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/logging"
)

func newExecCmd(load loader) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "exec NAME [key=value ...]",
		Short: "Run one command against the PBX",
		Long: "Connects to the manager interface, runs a single command and prints its result as JSON.\n" +
			"Arguments are passed as key=value pairs, e.g. `ctiproxy exec call from=201 to=202`.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}
			cfg, err := load()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			log := logging.NewWithWriter(cfg.Logging, version, cmd.ErrOrStderr())
			client, engine, _, err := newEngine(cfg, log)
			if err != nil {
				return err
			}
			defer client.Close() //nolint:errcheck // Best-effort logoff on exit

			if err := client.Connect(ctx); err != nil {
				return fmt.Errorf("connecting to %s: %w", cfg.AMIAddress(), err)
			}

			result, err := engine.Do(ctx, args[0], cmdArgs)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall deadline for connecting and running the command")
	return cmd
}

// parseArgs turns key=value words into command arguments.
func parseArgs(words []string) (commands.Args, error) {
	args := make(commands.Args, len(words))
	for _, w := range words {
		k, v, ok := strings.Cut(w, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("argument %q is not key=value", w)
		}
		args[k] = v
	}
	return args, nil
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the commands accepted by exec and the API",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			names := commands.Default().Names()
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
		},
	}
}
