package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/dsicmd/internal/config"
	"github.com/smazurov/dsicmd/internal/dsicmd"
	"github.com/smazurov/dsicmd/internal/hw/sim"
	"github.com/smazurov/dsicmd/internal/logging"
)

// SimulateReport is printed by the simulate command.
type SimulateReport struct {
	Panel     string       `json:"panel"`
	Frames    uint64       `json:"frames"`
	Errors    uint64       `json:"errors"`
	Elapsed   string       `json:"elapsed"`
	Session   dsicmd.Stats `json:"session"`
	Registers sim.Counters `json:"registers"`
}

// CreateSimulateCmd creates the simulate command.
func CreateSimulateCmd() *cobra.Command {
	var (
		configFile string
		frames     int
		blt        bool
		bltAt      int
		hang       bool
		underflow  int
		logLevel   string
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Commit frames against the simulated display processor",
		Long: `Builds the panel session from the [panel] table of the config file, ` +
			`commits the requested number of frames on the simulated hardware and prints the session counters as JSON.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			logging.Initialize(logging.Config{Level: logLevel, Format: "text"})
			logger := logging.GetLogger("main")

			file, err := config.LoadFile(configFile)
			if err != nil {
				return err
			}
			if c.Flags().Changed("blt") {
				file.Blt.Enabled = blt
			}

			simOpts := sim.DefaultOptions()
			st, err := NewStack(file.Panel, simOpts, nil, dsicmd.WithAbortFunc(func(abortErr error) {
				logger.Error("Hardware timeout under abort policy", "error", abortErr)
			}))
			if err != nil {
				return err
			}
			defer st.Close()

			st.Session.SetPanelPower(true)
			st.Device.SetHung(hang)

			ctx := c.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			start := time.Now()
			for i := 0; i < frames; i++ {
				if file.Blt.Enabled && i == bltAt {
					if bltErr := st.Loop.SetBLT(ctx, true); bltErr != nil {
						logger.Warn("Failed to enable write-back", "frame", i, "error", bltErr)
					}
				}
				if i == underflow {
					st.Device.InjectUnderflow()
				}
				if commitErr := st.Loop.Commit(ctx); commitErr != nil {
					logger.Warn("Frame commit failed", "frame", i, "error", commitErr)
				}
			}
			if waitErr := st.Session.WaitForOutputIdle(ctx); waitErr != nil {
				logger.Warn("Write-back did not drain", "error", waitErr)
			}

			report := SimulateReport{
				Panel:     file.Panel.Name,
				Frames:    st.Loop.Frames(),
				Errors:    st.Loop.Errors(),
				Elapsed:   time.Since(start).Round(time.Microsecond).String(),
				Session:   st.Loop.Stats(),
				Registers: st.Device.Counters(),
			}
			enc := json.NewEncoder(c.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(report); encErr != nil {
				return encErr
			}
			if report.Errors > 0 {
				return fmt.Errorf("%d of %d frames failed", report.Errors, frames)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "config.toml", "Configuration file")
	cmd.Flags().IntVarP(&frames, "frames", "n", 120, "Number of frames to commit")
	cmd.Flags().BoolVar(&blt, "blt", false, "Enable write-back, overriding [blt] enabled")
	cmd.Flags().IntVar(&bltAt, "blt-at", 0, "Frame at which write-back is enabled")
	cmd.Flags().BoolVar(&hang, "hang", false, "Never raise completion interrupts")
	cmd.Flags().IntVar(&underflow, "underflow-at", -1, "Frame before which an interface underflow is reported")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Logging level")

	return cmd
}
