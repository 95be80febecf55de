// Package sim simulates the display processor and link of a command-mode
// panel. Kicks complete after a configurable latency and raise their
// completion interrupt on a separate goroutine, honouring the interrupt
// enable mask the way the real controller does.
package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smazurov/dsicmd/internal/hw"
	"github.com/smazurov/dsicmd/internal/logging"
	"github.com/smazurov/dsicmd/internal/overlay"
	"github.com/smazurov/dsicmd/internal/tear"
)

// Options configures the simulated hardware.
type Options struct {
	// OverlayLatency is how long the overlay processor takes per frame.
	OverlayLatency time.Duration
	// ReadbackLatency is how long one write-back readback takes.
	ReadbackLatency time.Duration
	// TransferLatency is how long the link is busy after a transfer start.
	TransferLatency time.Duration
	// WritebackBase is the physical write-back buffer. Zero means no buffer.
	WritebackBase uint32
	// TE gates overlay completion on the panel tear-effect line when set.
	TE        *tear.Line
	TETimeout time.Duration
	Logger    *slog.Logger
}

// DefaultOptions returns latencies of a small 60Hz panel.
func DefaultOptions() Options {
	return Options{
		OverlayLatency:  2 * time.Millisecond,
		ReadbackLatency: 3 * time.Millisecond,
		TransferLatency: time.Millisecond,
		WritebackBase:   0x48000000,
		TETimeout:       50 * time.Millisecond,
	}
}

// Counters are the totals of simulated register activity.
type Counters struct {
	OverlayKicks  int  `json:"overlay_kicks"`
	Readbacks     int  `json:"readbacks"`
	Transfers     int  `json:"transfers"`
	Configures    int  `json:"configures"`
	StageDowns    int  `json:"stage_downs"`
	PerfUpdates   int  `json:"perf_updates"`
	ClockOn       bool `json:"clock_on"`
	ClockGates    int  `json:"clock_gates"`
	Dropped       int  `json:"dropped_interrupts"`
	Underflows    int  `json:"underflows"`
	TEMissed      int  `json:"te_missed"`
	TearEnabled   bool `json:"tear_enabled"`
	TearStartLine int  `json:"tear_start_line"`
}

// Device is the simulated display processor, link clock, allocators and
// tear-check block.
type Device struct {
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	handler       hw.IRQHandler
	irq           map[hw.IRQ]bool
	powered       map[hw.Block]bool
	hung          bool
	overlayOutput uint32
	readbacks     []uint32
	linkBusyUntil time.Time
	writeback     uint32
	lastPipe      overlay.Pipe
	startLines    map[tear.Which]int
	tearEnabled   map[tear.Which]bool
	counters      Counters

	wg   sync.WaitGroup
	done chan struct{}
	once sync.Once
}

// New creates a simulated device.
func New(opts Options) *Device {
	if opts.TETimeout == 0 {
		opts.TETimeout = DefaultOptions().TETimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.GetLogger("sim")
	}
	return &Device{
		opts:        opts,
		logger:      logger,
		irq:         make(map[hw.IRQ]bool),
		powered:     make(map[hw.Block]bool),
		startLines:  make(map[tear.Which]int),
		tearEnabled: make(map[tear.Which]bool),
		done:        make(chan struct{}),
	}
}

// Attach sets the interrupt handler.
func (d *Device) Attach(h hw.IRQHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handler = h
}

// SetHung makes the device drop every completion interrupt, as a wedged
// pipeline would.
func (d *Device) SetHung(hung bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hung = hung
}

// InjectUnderflow reports an interface underflow to the attached handler.
// The report is synchronous and ignores the interrupt mask and SetHung: the
// underflow line is wired straight to the error handler.
func (d *Device) InjectUnderflow() {
	d.mu.Lock()
	d.counters.Underflows++
	h := d.handler
	d.mu.Unlock()

	uh, ok := h.(hw.UnderflowHandler)
	if !ok {
		d.logger.Debug("Underflow not handled")
		return
	}
	d.logger.Warn("Interface underflow")
	uh.ResetAfterUnderflow()
}

// Close stops interrupt delivery and waits for in-flight completions.
func (d *Device) Close() {
	d.once.Do(func() { close(d.done) })
	d.wg.Wait()
}

// Counters returns the activity totals.
func (d *Device) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.counters
	c.TearEnabled = d.tearEnabled[tear.Primary]
	c.TearStartLine = d.startLines[tear.Primary]
	return c
}

// ReadbackAddrs returns every address a readback was kicked at.
func (d *Device) ReadbackAddrs() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.readbacks...)
}

// LastPipe returns the geometry of the last configured pipe.
func (d *Device) LastPipe() overlay.Pipe {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastPipe
}

// raise delivers irq after delay on its own goroutine if it is still
// enabled by then.
func (d *Device) raise(irq hw.IRQ, delay time.Duration, gateOnTE bool) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		if gateOnTE && d.opts.TE != nil && !d.opts.TE.Wait(d.opts.TETimeout) {
			d.mu.Lock()
			d.counters.TEMissed++
			d.mu.Unlock()
			d.logger.Debug("No TE pulse before timeout", "pin", d.opts.TE.Name())
		}

		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-d.done:
			return
		}

		d.mu.Lock()
		h := d.handler
		deliver := h != nil && d.irq[irq] && !d.hung
		if !deliver {
			d.counters.Dropped++
		}
		d.mu.Unlock()

		if !deliver {
			d.logger.Debug("Interrupt not delivered", "irq", irq)
			return
		}
		switch irq {
		case hw.IRQOverlayDone:
			h.OverlayDone()
		case hw.IRQReadbackDone:
			h.ReadbackDone()
		}
	}()
}

// PowerBlock implements hw.Engine.
func (d *Device) PowerBlock(b hw.Block, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.powered[b] = on
}

// EnableIRQ implements hw.Engine.
func (d *Device) EnableIRQ(irq hw.IRQ) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.irq[irq] = true
}

// DisableIRQ implements hw.Engine.
func (d *Device) DisableIRQ(irq hw.IRQ) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.irq[irq] = false
}

// KickOverlay implements hw.Engine.
func (d *Device) KickOverlay() {
	d.mu.Lock()
	d.counters.OverlayKicks++
	d.powered[hw.BlockOverlay] = true
	d.mu.Unlock()
	d.raise(hw.IRQOverlayDone, d.opts.OverlayLatency, true)
}

// SetOverlayOutput implements hw.Engine.
func (d *Device) SetOverlayOutput(addr uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.overlayOutput = addr
}

// KickReadback implements hw.Engine.
func (d *Device) KickReadback(addr uint32) {
	d.mu.Lock()
	d.counters.Readbacks++
	d.readbacks = append(d.readbacks, addr)
	d.mu.Unlock()
	d.raise(hw.IRQReadbackDone, d.opts.ReadbackLatency, false)
}

// StartTransfer implements hw.Engine.
func (d *Device) StartTransfer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters.Transfers++
	d.linkBusyUntil = time.Now().Add(d.opts.TransferLatency)
}

// Enabled implements hw.Clock.
func (d *Device) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters.ClockOn
}

// Enable implements hw.Clock.
func (d *Device) Enable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters.ClockOn = true
}

// Disable implements hw.Clock.
func (d *Device) Disable() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters.ClockOn = false
	d.counters.ClockGates++
}

// SetPerfLevel implements hw.PerfController.
func (d *Device) SetPerfLevel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.counters.PerfUpdates++
}

// WaitLinkIdle implements hw.LinkWaiter. It blocks until the last started
// transfer left the link.
func (d *Device) WaitLinkIdle(ctx context.Context) error {
	d.mu.Lock()
	wait := time.Until(d.linkBusyUntil)
	d.mu.Unlock()
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AllocWriteback implements hw.WritebackAllocator. The buffer is handed out
// once and reused afterwards.
func (d *Device) AllocWriteback(size uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.writeback == 0 && d.opts.WritebackBase != 0 {
		d.writeback = d.opts.WritebackBase
		d.logger.Debug("Write-back buffer allocated", "base", d.writeback, "size", size)
	}
	return d.writeback, nil
}

// AllocPipe implements hw.PipeAllocator.
func (d *Device) AllocPipe(format string) (*overlay.Pipe, error) {
	return &overlay.Pipe{Format: format}, nil
}

// ConfigurePipe implements hw.PipeConfigurator.
func (d *Device) ConfigurePipe(p *overlay.Pipe) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastPipe = *p
	d.counters.Configures++
	return nil
}

// StageDown implements hw.PipeConfigurator.
func (d *Device) StageDown(_ *overlay.Pipe) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastPipe.MixerStage = overlay.StageUnused
	d.counters.StageDowns++
}

// SetStartLine implements tear.Registers.
func (d *Device) SetStartLine(which tear.Which, line int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.startLines[which] = line
}

// SetTearEnable implements tear.Registers.
func (d *Device) SetTearEnable(which tear.Which, on bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tearEnabled[which] = on
}

// DumpRegisters implements hw.RegisterDumper.
func (d *Device) DumpRegisters() []hw.RegisterRange {
	d.mu.Lock()
	defer d.mu.Unlock()

	var last uint32
	if n := len(d.readbacks); n > 0 {
		last = d.readbacks[n-1]
	}
	return []hw.RegisterRange{
		{Name: "intr", Offset: 0x00050, Values: []uint32{bit(d.irq[hw.IRQOverlayDone]) | bit(d.irq[hw.IRQReadbackDone])<<1}},
		{Name: "overlay0", Offset: 0x10000, Values: []uint32{d.overlayOutput, uint32(d.counters.OverlayKicks)}},
		{Name: "dma_p", Offset: 0x90000, Values: []uint32{last, uint32(d.counters.Readbacks)}},
		{Name: "dsi", Offset: 0xe0000, Values: []uint32{bit(d.counters.ClockOn), uint32(d.counters.Transfers)}},
		{Name: "tear", Offset: 0x0021c, Values: []uint32{uint32(d.startLines[tear.Primary]), bit(d.tearEnabled[tear.Primary])}},
	}
}

func bit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

var (
	_ hw.Engine             = (*Device)(nil)
	_ hw.Clock              = (*Device)(nil)
	_ hw.PerfController     = (*Device)(nil)
	_ hw.LinkWaiter         = (*Device)(nil)
	_ hw.WritebackAllocator = (*Device)(nil)
	_ hw.PipeAllocator      = (*Device)(nil)
	_ hw.PipeConfigurator   = (*Device)(nil)
	_ hw.RegisterDumper     = (*Device)(nil)
	_ tear.Registers        = (*Device)(nil)
)
