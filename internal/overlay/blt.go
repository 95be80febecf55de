package overlay

import "fmt"

// BltFormat is the pixel format the overlay writes into the write-back buffer.
type BltFormat int

// Write-back output formats.
const (
	BltRGB888 BltFormat = iota
	BltRGB565
)

// BytesPerPixel returns the size of one write-back pixel.
func (f BltFormat) BytesPerPixel() int {
	if f == BltRGB565 {
		return 2
	}
	return 3
}

func (f BltFormat) String() string {
	if f == BltRGB565 {
		return "rgb565"
	}
	return "rgb888"
}

// ParseBltFormat parses "rgb888" or "rgb565". An empty string selects rgb888.
func ParseBltFormat(s string) (BltFormat, error) {
	switch s {
	case "", "rgb888":
		return BltRGB888, nil
	case "rgb565":
		return BltRGB565, nil
	default:
		return BltRGB888, fmt.Errorf("unknown blt format %q", s)
	}
}

// FrameSize returns the byte size of one write-back frame.
func FrameSize(width, height int, f BltFormat) uint32 {
	return uint32(width * height * f.BytesPerPixel())
}

// OutputAddress returns where the overlay writes its next output.
func OutputAddress(base uint32, ovCount int, frameSize uint32) uint32 {
	return base + uint32(ovCount&1)*frameSize
}

// ReadbackAddress returns where the next readback fetches from.
func ReadbackAddress(base uint32, dmapCount int, frameSize uint32) uint32 {
	return base + uint32(dmapCount&1)*frameSize
}

// BltAddresses returns the readback and overlay output addresses for the
// current counters of p. Both are zero when BLT is disabled.
func (p *Pipe) BltAddresses(f BltFormat) (readback, output uint32) {
	if p.BltAddr == 0 {
		return 0, 0
	}
	size := FrameSize(p.SrcWidth, p.SrcHeight, f)
	return ReadbackAddress(p.BltAddr, p.DmapCount, size), OutputAddress(p.BltAddr, p.OvCount, size)
}

// BltInfo answers the write-back offset query.
type BltInfo struct {
	Offset uint32 `json:"offset"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Bpp    int    `json:"bpp"`
}

// BltInfo returns the geometry of the active write-back target.
func (p *Pipe) BltInfo() BltInfo {
	return BltInfo{
		Offset: 0,
		Width:  p.SrcWidth,
		Height: p.SrcHeight,
		Bpp:    p.Bpp,
	}
}
