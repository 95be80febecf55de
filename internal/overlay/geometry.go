package overlay

// Framebuffer describes the framebuffer a pipe scans out from.
type Framebuffer struct {
	Index        int
	XRes         int
	YRes         int
	BitsPerPixel int
	LineLength   int
	Addr         uint32
	Format       string
}

// BytesPerPixel returns the framebuffer depth in bytes.
func (fb Framebuffer) BytesPerPixel() int {
	return fb.BitsPerPixel / 8
}

const pitchAlign = 32

// LineLength returns the line pitch for a framebuffer of the given width.
// The GPU renders directly into fb0 and needs its pitch aligned to 32 pixels.
func LineLength(fbIndex, xres, bpp int) int {
	if fbIndex == 0 {
		return align(xres, pitchAlign) * bpp
	}
	return xres * bpp
}

func align(v, a int) int {
	return (v + a - 1) &^ (a - 1)
}

// ApplyGeometry derives the pipe rectangles, stride and source address from
// fb. A pipe in 3D side-by-side mode takes its size from the 3D dimensions
// instead of the framebuffer resolution.
func (p *Pipe) ApplyGeometry(fb Framebuffer) {
	p.Bpp = fb.BytesPerPixel()
	if p.Is3D {
		p.SrcHeight = p.Height3D
		p.SrcWidth = p.Width3D
		p.Stride = LineLength(0, p.SrcWidth, p.Bpp)
	} else {
		p.SrcHeight = fb.YRes
		p.SrcWidth = fb.XRes
		p.Stride = fb.LineLength
	}
	p.SrcH = p.SrcHeight
	p.SrcW = p.SrcWidth
	p.DstH = p.SrcHeight
	p.DstW = p.SrcWidth
	p.SrcX = 0
	p.SrcY = 0
	p.DstX = 0
	p.DstY = 0
	p.BufferAddr = fb.Addr
}
