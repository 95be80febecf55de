// Package hw declares the hardware collaborators of a command-mode panel
// session: the display processor register primitives, the shared link clock,
// and the allocators and configurators that sit around the kickoff core.
package hw

import (
	"context"

	"github.com/smazurov/dsicmd/internal/overlay"
)

// IRQ identifies an interrupt source of the display processor.
type IRQ int

// Interrupt sources used by the command-mode path.
const (
	// IRQOverlayDone fires when the overlay processor finished composing.
	IRQOverlayDone IRQ = iota
	// IRQReadbackDone fires when the readback DMA consumed a write-back frame.
	IRQReadbackDone
)

func (i IRQ) String() string {
	switch i {
	case IRQOverlayDone:
		return "overlay_done"
	case IRQReadbackDone:
		return "readback_done"
	default:
		return "unknown"
	}
}

// Block identifies a power-gated register block.
type Block int

// Register blocks.
const (
	BlockCommand Block = iota
	BlockOverlay
)

func (b Block) String() string {
	switch b {
	case BlockCommand:
		return "command"
	case BlockOverlay:
		return "overlay"
	default:
		return "unknown"
	}
}

// Engine is the register-level surface of the display processor.
//
// EnableIRQ, DisableIRQ, PowerBlock, SetOverlayOutput, KickReadback and
// StartTransfer are called from interrupt context and must not block.
type Engine interface {
	// PowerBlock powers a register block on or off.
	PowerBlock(b Block, on bool)
	EnableIRQ(irq IRQ)
	DisableIRQ(irq IRQ)
	// KickOverlay starts the overlay processor on the bound pipe.
	KickOverlay()
	// SetOverlayOutput programs the write-back address of the overlay output.
	SetOverlayOutput(addr uint32)
	// KickReadback starts a readback of the write-back frame at addr.
	KickReadback(addr uint32)
	// StartTransfer triggers the command engine to send a frame to the panel.
	StartTransfer()
}

// Clock gates the shared link clock domain.
type Clock interface {
	Enabled() bool
	Enable()
	Disable()
}

// PerfController recomputes the processor clock level before a kickoff.
type PerfController interface {
	SetPerfLevel()
}

// LinkWaiter waits until the panel link finished its current transfer.
type LinkWaiter interface {
	WaitLinkIdle(ctx context.Context) error
}

// WritebackAllocator hands out the physical write-back buffer. A zero
// address means no buffer is available.
type WritebackAllocator interface {
	AllocWriteback(size uint32) (uint32, error)
}

// PipeAllocator allocates the overlay pipe for a pixel format.
type PipeAllocator interface {
	AllocPipe(format string) (*overlay.Pipe, error)
}

// PipeConfigurator pushes pipe geometry to the mixer and the readback engine.
type PipeConfigurator interface {
	ConfigurePipe(p *overlay.Pipe) error
	StageDown(p *overlay.Pipe)
}

// RegisterRange is a captured run of consecutive 32-bit registers.
type RegisterRange struct {
	Name   string
	Offset uint32
	Values []uint32
}

// RegisterDumper captures the registers relevant to a wedged pipeline.
type RegisterDumper interface {
	DumpRegisters() []RegisterRange
}

// IRQHandler receives the completion interrupts of the command-mode path.
type IRQHandler interface {
	OverlayDone()
	ReadbackDone()
}

// UnderflowHandler recovers the completion state after the interface ran out
// of pixels mid-frame.
type UnderflowHandler interface {
	ResetAfterUnderflow()
}

// TearControl programs the tear-check start line for the pipe destination.
type TearControl interface {
	Configure(dstY int)
}
