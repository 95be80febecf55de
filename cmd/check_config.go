package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/dsicmd/internal/config"
)

// CreateCheckConfigCmd creates the check-config command.
func CreateCheckConfigCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "check-config",
		Short: "Validate the panel configuration",
		Long:  `Loads the [panel] and [blt] tables of the config file and reports the session they describe, or the first invalid setting.`,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			file, err := config.LoadFile(configFile)
			if err != nil {
				return err
			}
			if err := file.Panel.Validate(); err != nil {
				return err
			}
			cfg, err := file.Panel.SessionConfig()
			if err != nil {
				return err
			}
			cfg = cfg.Effective()

			out := c.OutOrStdout()
			fmt.Fprintf(out, "panel %s: %dx%d %dbpp at %s\n",
				cfg.Name, file.Panel.Width, file.Panel.Height, file.Panel.BitsPerPixel, file.Panel.RefreshRate)
			fmt.Fprintf(out, "  vsync period     %s\n", cfg.VsyncPeriod)
			fmt.Fprintf(out, "  timeout policy   %s\n", cfg.TimeoutPolicy)
			fmt.Fprintf(out, "  blt format       %s (enabled=%t)\n", cfg.BltFormat, file.Blt.Enabled)
			fmt.Fprintf(out, "  transfer timeout %s, readback timeout %s\n", cfg.TransferTimeout, cfg.ReadbackTimeout)
			fmt.Fprintf(out, "  clock idle after %s\n", cfg.ClockIdleTimeout)
			fmt.Fprintf(out, "  tear check       %t (start line lead %d)\n", file.Panel.TearConfig().Enabled(), file.Panel.VsyncAdjust)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.toml", "Configuration file")
	return cmd
}
