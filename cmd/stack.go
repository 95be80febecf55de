// Package cmd holds the subcommands of the dsicmd binary and the wiring
// they share with the daemon.
package cmd

import (
	"fmt"

	"github.com/smazurov/dsicmd/internal/compositor"
	"github.com/smazurov/dsicmd/internal/config"
	"github.com/smazurov/dsicmd/internal/dsicmd"
	"github.com/smazurov/dsicmd/internal/hw/sim"
	"github.com/smazurov/dsicmd/internal/logging"
	"github.com/smazurov/dsicmd/internal/tear"
)

// Stack is a panel session running on the simulated display processor,
// together with the compositor feeding it.
type Stack struct {
	Panel   config.PanelSettings
	Device  *sim.Device
	Session *dsicmd.Session
	Loop    *compositor.Loop
	TE      *tear.Line
}

// NewStack builds a panel stack. pub may be nil. extra is applied after the
// default session options. The panel is left powered off.
func NewStack(panel config.PanelSettings, simOpts sim.Options, pub dsicmd.Publisher, extra ...dsicmd.Option) (*Stack, error) {
	if err := panel.Validate(); err != nil {
		return nil, err
	}
	cfg, err := panel.SessionConfig()
	if err != nil {
		return nil, err
	}
	rate, err := panel.Frequency()
	if err != nil {
		return nil, err
	}
	mode, err := compositor.ParseMode(panel.Mode)
	if err != nil {
		return nil, err
	}

	st := &Stack{Panel: panel}
	if panel.TEPin != "" {
		line, openErr := tear.Open(panel.TEPin)
		if openErr != nil {
			return nil, fmt.Errorf("open TE line: %w", openErr)
		}
		st.TE = line
		simOpts.TE = line
	}
	if simOpts.Logger == nil {
		simOpts.Logger = logging.GetLogger("sim")
	}
	st.Device = sim.New(simOpts)

	opts := []dsicmd.Option{dsicmd.WithLogger(logging.GetLogger("dsicmd"))}
	if pub != nil {
		opts = append(opts, dsicmd.WithPublisher(pub))
	}
	opts = append(opts, extra...)
	st.Session, err = dsicmd.NewSession(cfg, dsicmd.Backend{
		Engine:       st.Device,
		Clock:        st.Device,
		Writeback:    st.Device,
		Pipes:        st.Device,
		Configurator: st.Device,
		Perf:         st.Device,
		Link:         st.Device,
		Tear:         tear.NewController(panel.TearConfig(), st.Device),
		Dumper:       st.Device,
	}, opts...)
	if err != nil {
		st.Device.Close()
		return nil, err
	}
	st.Device.Attach(st.Session)

	st.Loop = compositor.New(st.Session, panel.Framebuffer(), rate, mode, logging.GetLogger("compositor"))
	return st, nil
}

// Close stops the compositor and releases the session and the device.
func (st *Stack) Close() {
	st.Loop.Stop()
	st.Session.Close()
	st.Device.Close()
}
