package tear

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// Line is the panel TE output wired to a GPIO input.
type Line struct {
	pin gpio.PinIn
}

// NewLine configures pin as a rising-edge input.
func NewLine(pin gpio.PinIn) (*Line, error) {
	if err := pin.In(gpio.PullNoChange, gpio.RisingEdge); err != nil {
		return nil, fmt.Errorf("tear: configure %s: %w", pin, err)
	}
	return &Line{pin: pin}, nil
}

// Open initialises the host drivers and opens the named TE pin.
func Open(name string) (*Line, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("tear: host init: %w", err)
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("tear: no such pin %q", name)
	}
	return NewLine(p)
}

// Wait blocks until the next TE pulse or until timeout elapses. It reports
// whether a pulse was seen.
func (l *Line) Wait(timeout time.Duration) bool {
	return l.pin.WaitForEdge(timeout)
}

// Name returns the GPIO name.
func (l *Line) Name() string {
	return l.pin.Name()
}
