// Package overlay holds the state of the overlay pipe bound to a command-mode
// panel and the pure geometry and write-back address rules that go with it.
package overlay

// MixerStage identifies the blend stage a pipe is staged on.
type MixerStage int

// Mixer stages.
const (
	StageUnused MixerStage = iota
	StageBase
)

// Pipe is the single overlay-to-panel binding of a panel session.
//
// A Pipe is owned by its session and every field is read and written under
// the session lock.
type Pipe struct {
	Format     string
	MixerStage MixerStage
	Used       int

	SrcWidth  int
	SrcHeight int
	SrcW      int
	SrcH      int
	SrcX      int
	SrcY      int
	DstW      int
	DstH      int
	DstX      int
	DstY      int

	// Stride is the source line pitch in bytes.
	Stride int
	// BufferAddr is the physical address of the source buffer.
	BufferAddr uint32
	// Bpp is the framebuffer bytes per pixel.
	Bpp int

	Is3D     bool
	Width3D  int
	Height3D int

	// BltAddr is the write-back base address. Zero means BLT is disabled.
	BltAddr uint32
	// BltEnding marks a requested disable that completes once the
	// in-flight readback drains.
	BltEnding bool

	// OvCount counts overlay outputs produced while BLT is enabled.
	OvCount int
	// DmapCount counts readbacks consumed while BLT is enabled.
	DmapCount int
	// BltCount counts overlay completions since BLT was enabled.
	BltCount int
}

// BltEnabled reports whether the write-back path is active.
func (p *Pipe) BltEnabled() bool {
	return p.BltAddr != 0
}

// Skew returns how many produced outputs have not been read back yet.
func (p *Pipe) Skew() int {
	return p.OvCount - p.DmapCount
}

// StartBlt resets the counters and points the pipe at a new write-back base.
func (p *Pipe) StartBlt(base uint32) {
	p.BltEnding = false
	p.BltCount = 0
	p.OvCount = 0
	p.DmapCount = 0
	p.BltAddr = base
}

// EndBlt completes a deferred disable. BltCount is kept so the next video
// kickoff can tell that the write-back path was just torn down.
func (p *Pipe) EndBlt() {
	p.BltEnding = false
	p.BltAddr = 0
	p.OvCount = 0
	p.DmapCount = 0
}
