// Package tear configures tear-effect synchronisation for command-mode panels.
//
// The display processor holds a transfer until the panel scanout passes the
// programmed start line, so a new frame never overtakes the line being
// refreshed. Panels that expose their TE output on a GPIO can also be waited
// on directly through a Line.
package tear

// Which selects the primary or secondary tear-check engine.
type Which int

// Tear-check engines.
const (
	Primary Which = iota
	Secondary
)

// DefaultAdjust is the number of lines the start line leads the destination.
const DefaultAdjust = 4

// Registers is the register surface of the tear-check block.
type Registers interface {
	SetStartLine(which Which, line int)
	SetTearEnable(which Which, on bool)
}

// Config selects when tear checking is enabled and how the start line is placed.
type Config struct {
	// ProcessorVsync, InterfaceVsync and PanelVsync must all be set for
	// tear checking to be enabled.
	ProcessorVsync bool
	InterfaceVsync bool
	PanelVsync     bool

	Adjust     int
	TotalLines int
	Which      Which
}

// Enabled reports whether every vsync source is available.
func (c Config) Enabled() bool {
	return c.ProcessorVsync && c.InterfaceVsync && c.PanelVsync
}

// StartLine returns the tear-check start line for a destination row. When
// the row is closer to the top than adjust, the start line wraps to the end
// of the previous frame.
func StartLine(dstY, adjust, totalLines int) int {
	if adjust <= dstY {
		return dstY - adjust
	}
	return (totalLines - 1) - (adjust - dstY)
}

// Controller applies Config to the tear-check registers.
type Controller struct {
	cfg  Config
	regs Registers
}

// NewController creates a controller. A zero Adjust selects DefaultAdjust.
func NewController(cfg Config, regs Registers) *Controller {
	if cfg.Adjust == 0 {
		cfg.Adjust = DefaultAdjust
	}
	return &Controller{cfg: cfg, regs: regs}
}

// Configure programs the start line for dstY and enables tear checking, or
// disables it when vsync is not available.
func (c *Controller) Configure(dstY int) {
	if !c.cfg.Enabled() {
		c.regs.SetTearEnable(c.cfg.Which, false)
		return
	}
	c.regs.SetStartLine(c.cfg.Which, StartLine(dstY, c.cfg.Adjust, c.cfg.TotalLines))
	c.regs.SetTearEnable(c.cfg.Which, true)
}
