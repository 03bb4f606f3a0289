package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nerrad567/gray-logic-cti/internal/scheduler"
)

func newConfigCmd(load loader) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check",
		Short: "Validate the configuration file",
		Long:  "Loads the configuration with environment overrides applied, validates it and prints a summary.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			for name, expr := range map[string]string{
				"proxy.resync_schedule":  cfg.Proxy.ResyncSchedule,
				"history.prune_schedule": cfg.History.PruneSchedule,
			} {
				if expr == "" {
					continue
				}
				if err := scheduler.Validate(expr); err != nil {
					return fmt.Errorf("%s: %w", name, err)
				}
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "configuration OK")
			fmt.Fprintf(out, "  site:      %s\n", cfg.Site.ID)
			fmt.Fprintf(out, "  pbx:       %s (user %s)\n", cfg.AMIAddress(), cfg.AMI.Username)
			fmt.Fprintf(out, "  api:       %s:%d\n", cfg.API.Host, cfg.API.Port)
			fmt.Fprintf(out, "  history:   %t\n", cfg.History.Enabled)
			fmt.Fprintf(out, "  mqtt:      %t\n", cfg.MQTT.Enabled)
			fmt.Fprintf(out, "  influxdb:  %t\n", cfg.InfluxDB.Enabled)
			return nil
		},
	})
	return cmd
}
