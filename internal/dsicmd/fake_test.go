package dsicmd

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/smazurov/dsicmd/internal/events"
	"github.com/smazurov/dsicmd/internal/hw"
	"github.com/smazurov/dsicmd/internal/overlay"
)

const testWritebackBase = 0x48000000

var testFB = overlay.Framebuffer{
	Index:        0,
	XRes:         480,
	YRes:         800,
	BitsPerPixel: 32,
	LineLength:   overlay.LineLength(0, 480, 4),
	Addr:         0x10000000,
	Format:       "rgb",
}

// fakeHW records every register-level call and never raises interrupts on
// its own; tests call OverlayDone and ReadbackDone directly.
type fakeHW struct {
	mu sync.Mutex

	ops        []string
	irq        map[hw.IRQ]bool
	powered    map[hw.Block]bool
	clockOn    bool
	outputs    []uint32
	readbacks  []uint32
	transfers  int
	kicks      int
	perfCalls  int
	configured []overlay.Pipe
	stageDowns int
	tearLines  []int

	wbAddr   uint32
	wbAllocs int
	wbErr    error
	allocErr error
	noPipe   bool
	linkErr  error
	dump     []hw.RegisterRange
}

func newFakeHW() *fakeHW {
	return &fakeHW{
		irq:     make(map[hw.IRQ]bool),
		powered: make(map[hw.Block]bool),
		wbAddr:  testWritebackBase,
	}
}

func (f *fakeHW) backend() Backend {
	return Backend{
		Engine:       f,
		Clock:        f,
		Writeback:    f,
		Pipes:        f,
		Configurator: f,
		Perf:         f,
		Link:         f,
		Tear:         f,
		Dumper:       f,
	}
}

func (f *fakeHW) record(op string) {
	f.ops = append(f.ops, op)
}

func (f *fakeHW) PowerBlock(b hw.Block, on bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.powered[b] = on
}

func (f *fakeHW) EnableIRQ(irq hw.IRQ) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.irq[irq] = true
}

func (f *fakeHW) DisableIRQ(irq hw.IRQ) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.irq[irq] = false
}

func (f *fakeHW) KickOverlay() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kicks++
	f.record("kick_overlay")
}

func (f *fakeHW) SetOverlayOutput(addr uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outputs = append(f.outputs, addr)
}

func (f *fakeHW) KickReadback(addr uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readbacks = append(f.readbacks, addr)
	f.record("kick_readback")
}

func (f *fakeHW) StartTransfer() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transfers++
	f.record("start_transfer")
}

func (f *fakeHW) Enabled() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clockOn
}

func (f *fakeHW) Enable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clockOn = true
	f.record("clock_on")
}

func (f *fakeHW) Disable() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clockOn = false
	f.record("clock_off")
}

func (f *fakeHW) SetPerfLevel() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.perfCalls++
}

func (f *fakeHW) WaitLinkIdle(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.linkErr
}

func (f *fakeHW) AllocWriteback(_ uint32) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wbAllocs++
	return f.wbAddr, f.wbErr
}

func (f *fakeHW) AllocPipe(format string) (*overlay.Pipe, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.allocErr != nil {
		return nil, f.allocErr
	}
	if f.noPipe {
		return nil, nil
	}
	return &overlay.Pipe{Format: format}, nil
}

func (f *fakeHW) ConfigurePipe(p *overlay.Pipe) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configured = append(f.configured, *p)
	return nil
}

func (f *fakeHW) StageDown(_ *overlay.Pipe) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stageDowns++
}

func (f *fakeHW) Configure(dstY int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tearLines = append(f.tearLines, dstY)
}

func (f *fakeHW) DumpRegisters() []hw.RegisterRange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dump
}

func (f *fakeHW) readbackAddrs() []uint32 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint32(nil), f.readbacks...)
}

func (f *fakeHW) irqEnabled(irq hw.IRQ) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.irq[irq]
}

func (f *fakeHW) opsSnapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ops...)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(ev events.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
}

func (p *recordingPublisher) bltStates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var states []string
	for _, ev := range p.events {
		if e, ok := ev.(events.BltStateChangedEvent); ok {
			states = append(states, e.State)
		}
	}
	return states
}

func (p *recordingPublisher) count(typ uint32) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, ev := range p.events {
		if ev.Type() == typ {
			n++
		}
	}
	return n
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestSession(t *testing.T, cfg Config, opts ...Option) (*Session, *fakeHW) {
	t.Helper()
	f := newFakeHW()
	opts = append([]Option{WithLogger(discardLogger())}, opts...)
	s, err := NewSession(cfg, f.backend(), opts...)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	t.Cleanup(s.Close)
	return s, f
}

// newBoundSession returns a powered session with testFB bound.
func newBoundSession(t *testing.T, opts ...Option) (*Session, *fakeHW) {
	t.Helper()
	s, f := newTestSession(t, Config{}, opts...)
	s.SetPanelPower(true)
	if err := s.Bind(testFB); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	return s, f
}

// pipeSkew reads the producer/consumer skew under the session lock.
func pipeSkew(s *Session) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pipe.Skew()
}

func checkSkew(t *testing.T, s *Session) {
	t.Helper()
	if skew := pipeSkew(s); skew < 0 || skew > 2 {
		t.Fatalf("skew = %d, want 0..2", skew)
	}
}

// checkSignals fails when a completion permit is ready while its busy flag
// is still set.
func checkSignals(t *testing.T, s *Session) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transferBusy && s.transferDone.ready() {
		t.Fatal("transfer completion ready while transfer busy")
	}
	if s.outputBusy && s.outputDone.ready() {
		t.Fatal("output completion ready while output busy")
	}
}
