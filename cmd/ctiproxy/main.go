// Package main is the entry point of the CTI proxy.
//
// The proxy keeps a live model of a PBX reached over its manager
// interface and republishes it to websocket clients, MQTT and InfluxDB.
// Subcommands:
//
//	ctiproxy serve            run the proxy
//	ctiproxy exec NAME k=v    run one command against the PBX and exit
//	ctiproxy token            mint an API token
//	ctiproxy config check     validate the configuration
//	ctiproxy commands         list the command names
//	ctiproxy version          print build information
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-cti/internal/infrastructure/config"
)

// Build information, set via ldflags at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// defaultConfigPath is used when neither --config nor CTIPROXY_CONFIG is set.
const defaultConfigPath = "configs/config.yaml"

// configEnv names the environment variable holding the config path.
const configEnv = config.EnvPrefix + "CONFIG"

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "ctiproxy",
		Short:         "CTI proxy for Asterisk manager interface",
		Long:          "ctiproxy tracks PBX state over the manager interface and relays it to websocket, MQTT and InfluxDB consumers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", getConfigPath(), "path to config file (env "+configEnv+")")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		return cfg, nil
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newServeCmd(load))
	cmd.AddCommand(newExecCmd(load))
	cmd.AddCommand(newTokenCmd(load))
	cmd.AddCommand(newConfigCmd(load))
	cmd.AddCommand(newCommandsCmd())
	return cmd
}

// loader loads and validates the configuration named by --config.
type loader func() (*config.Config, error)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "ctiproxy %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

// getConfigPath returns CTIPROXY_CONFIG if set, otherwise the default.
func getConfigPath() string {
	if path := os.Getenv(configEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
