package sim

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/smazurov/dsicmd/internal/dsicmd"
	"github.com/smazurov/dsicmd/internal/overlay"
	"github.com/smazurov/dsicmd/internal/tear"
)

var testFB = overlay.Framebuffer{
	XRes:         320,
	YRes:         240,
	BitsPerPixel: 32,
	LineLength:   overlay.LineLength(0, 320, 4),
	Addr:         0x10000000,
	Format:       "rgb",
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.OverlayLatency = time.Millisecond
	opts.ReadbackLatency = time.Millisecond
	opts.TransferLatency = 100 * time.Microsecond
	opts.Logger = discardLogger()
	return opts
}

func newSession(t *testing.T, dev *Device, cfg dsicmd.Config) *dsicmd.Session {
	t.Helper()
	if cfg.TransferTimeout == 0 {
		cfg.TransferTimeout = 500 * time.Millisecond
	}
	if cfg.ReadbackTimeout == 0 {
		cfg.ReadbackTimeout = 500 * time.Millisecond
	}
	tc := tear.NewController(tear.Config{
		ProcessorVsync: true,
		InterfaceVsync: true,
		PanelVsync:     true,
		TotalLines:     testFB.YRes,
	}, dev)

	s, err := dsicmd.NewSession(cfg, dsicmd.Backend{
		Engine:       dev,
		Clock:        dev,
		Writeback:    dev,
		Pipes:        dev,
		Configurator: dev,
		Perf:         dev,
		Link:         dev,
		Tear:         tc,
		Dumper:       dev,
	}, dsicmd.WithLogger(discardLogger()))
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	dev.Attach(s)
	t.Cleanup(func() {
		dev.Close()
		s.Close()
	})
	s.SetPanelPower(true)
	return s
}

func TestFramesWithoutWriteback(t *testing.T) {
	dev := New(testOptions())
	s := newSession(t, dev, dsicmd.Config{})
	ctx := context.Background()

	const frames = 10
	for i := range frames {
		if err := s.Overlay(ctx, testFB); err != nil {
			t.Fatalf("Overlay() frame %d error = %v", i, err)
		}
	}
	if err := s.WaitForTransferIdle(ctx); err != nil {
		t.Fatalf("WaitForTransferIdle() error = %v", err)
	}

	c := dev.Counters()
	if c.OverlayKicks != frames || c.Transfers != frames || c.Readbacks != 0 {
		t.Errorf("kicks/transfers/readbacks = %d/%d/%d, want %d/%d/0", c.OverlayKicks, c.Transfers, c.Readbacks, frames, frames)
	}
	if !c.TearEnabled || c.TearStartLine != testFB.YRes-1-tear.DefaultAdjust {
		t.Errorf("tear enabled/start = %v/%d, want true/%d", c.TearEnabled, c.TearStartLine, testFB.YRes-1-tear.DefaultAdjust)
	}
	if st := s.Stats(); st.Timeouts != 0 || st.TransferBusy {
		t.Errorf("timeouts/busy = %d/%v", st.Timeouts, st.TransferBusy)
	}
}

func TestWritebackAlternatesAndDrains(t *testing.T) {
	dev := New(testOptions())
	s := newSession(t, dev, dsicmd.Config{})
	ctx := context.Background()

	if err := s.Bind(testFB); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := s.EnableBLT(ctx); err != nil {
		t.Fatalf("EnableBLT() error = %v", err)
	}

	const frames = 8
	for i := range frames {
		if err := s.WaitForTransferIdle(ctx); err != nil {
			t.Fatalf("WaitForTransferIdle() frame %d error = %v", i, err)
		}
		if err := s.KickoffVideo(ctx); err != nil {
			t.Fatalf("KickoffVideo() frame %d error = %v", i, err)
		}
	}
	if err := s.WaitForTransferIdle(ctx); err != nil {
		t.Fatalf("WaitForTransferIdle() error = %v", err)
	}
	if err := s.WaitForOutputIdle(ctx); err != nil {
		t.Fatalf("WaitForOutputIdle() error = %v", err)
	}

	base := DefaultOptions().WritebackBase
	frame := overlay.FrameSize(testFB.XRes, testFB.YRes, overlay.BltRGB888)
	addrs := dev.ReadbackAddrs()
	if len(addrs) != frames {
		t.Fatalf("%d readbacks, want %d", len(addrs), frames)
	}
	for i, addr := range addrs {
		if want := base + uint32(i%2)*frame; addr != want {
			t.Errorf("readback %d = %#x, want %#x", i, addr, want)
		}
	}

	if err := s.DisableBLT(); err != nil {
		t.Fatalf("DisableBLT() error = %v", err)
	}
	for range 2 {
		if err := s.WaitForTransferIdle(ctx); err != nil {
			t.Fatalf("WaitForTransferIdle() error = %v", err)
		}
		if err := s.KickoffVideo(ctx); err != nil {
			t.Fatalf("KickoffVideo() error = %v", err)
		}
	}
	if err := s.WaitForTransferIdle(ctx); err != nil {
		t.Fatalf("WaitForTransferIdle() error = %v", err)
	}

	if st := s.Stats(); st.BltAddr != 0 || st.BltEnding {
		t.Errorf("after disable BltAddr/ending = %#x/%v, want 0/false", st.BltAddr, st.BltEnding)
	}
}

func TestHungDeviceTimesOut(t *testing.T) {
	dev := New(testOptions())
	s := newSession(t, dev, dsicmd.Config{TransferTimeout: 20 * time.Millisecond})
	ctx := context.Background()

	dev.SetHung(true)
	if err := s.Overlay(ctx, testFB); err != nil {
		t.Fatalf("first Overlay() error = %v", err)
	}
	// The lost completion is written off and the frame kicked again.
	if err := s.Overlay(ctx, testFB); err != nil {
		t.Fatalf("Overlay() on hung device error = %v", err)
	}
	if c := dev.Counters(); c.OverlayKicks != 2 {
		t.Errorf("OverlayKicks = %d, want 2", c.OverlayKicks)
	}
	if st := s.Stats(); st.Timeouts != 1 {
		t.Errorf("Timeouts = %d, want 1", st.Timeouts)
	}

	err := s.WaitForTransferIdle(ctx)
	if !dsicmd.IsCode(err, dsicmd.ErrCodeHardwareTimeout) {
		t.Fatalf("WaitForTransferIdle() on hung device error = %v, want %s", err, dsicmd.ErrCodeHardwareTimeout)
	}
	if c := dev.Counters(); c.Dropped < 2 {
		t.Errorf("Dropped = %d, want at least 2", c.Dropped)
	}

	dev.SetHung(false)
	if err := s.Overlay(ctx, testFB); err != nil {
		t.Fatalf("Overlay() after recovery error = %v", err)
	}
	if err := s.WaitForTransferIdle(ctx); err != nil {
		t.Errorf("WaitForTransferIdle() after recovery error = %v", err)
	}
	if c := dev.Counters(); c.OverlayKicks != 3 {
		t.Errorf("OverlayKicks = %d, want 3", c.OverlayKicks)
	}
}

func TestUnderflowResyncsWriteback(t *testing.T) {
	dev := New(testOptions())
	s := newSession(t, dev, dsicmd.Config{})
	ctx := context.Background()

	if err := s.Bind(testFB); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if err := s.EnableBLT(ctx); err != nil {
		t.Fatalf("EnableBLT() error = %v", err)
	}
	if err := s.KickoffVideo(ctx); err != nil {
		t.Fatalf("KickoffVideo() error = %v", err)
	}
	if err := s.WaitForOutputIdle(ctx); err != nil {
		t.Fatalf("WaitForOutputIdle() error = %v", err)
	}

	dev.SetHung(true)
	dropped := dev.Counters().Dropped
	if err := s.KickoffVideo(ctx); err != nil {
		t.Fatalf("KickoffVideo() error = %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for dev.Counters().Dropped == dropped {
		if time.Now().After(deadline) {
			t.Fatal("overlay completion never dropped")
		}
		time.Sleep(time.Millisecond)
	}
	if st := s.Stats(); !st.TransferBusy || !st.OutputBusy {
		t.Fatalf("busy = %v/%v before underflow, want true/true", st.TransferBusy, st.OutputBusy)
	}

	dev.InjectUnderflow()
	st := s.Stats()
	if st.TransferBusy || st.OutputBusy {
		t.Errorf("busy = %v/%v after underflow, want false/false", st.TransferBusy, st.OutputBusy)
	}
	if st.OvCount != st.DmapCount {
		t.Errorf("skew = %d after underflow, want 0", st.OvCount-st.DmapCount)
	}
	if c := dev.Counters(); c.Underflows != 1 {
		t.Errorf("Underflows = %d, want 1", c.Underflows)
	}

	dev.SetHung(false)
	if err := s.KickoffVideo(ctx); err != nil {
		t.Fatalf("KickoffVideo() after underflow error = %v", err)
	}
	if err := s.WaitForTransferIdle(ctx); err != nil {
		t.Fatalf("WaitForTransferIdle() after underflow error = %v", err)
	}
	if err := s.WaitForOutputIdle(ctx); err != nil {
		t.Fatalf("WaitForOutputIdle() after underflow error = %v", err)
	}
}

func TestUnderflowWithoutHandler(t *testing.T) {
	dev := New(testOptions())
	dev.Attach(handlerFunc(func() {}))
	defer dev.Close()

	dev.InjectUnderflow()
	if c := dev.Counters(); c.Underflows != 1 {
		t.Errorf("Underflows = %d, want 1", c.Underflows)
	}
}

func TestTEGatesOverlayCompletion(t *testing.T) {
	pin := &gpiotest.Pin{N: "TE", Num: 17, EdgesChan: make(chan gpio.Level)}
	line, err := tear.NewLine(pin)
	if err != nil {
		t.Fatalf("NewLine() error = %v", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case pin.EdgesChan <- gpio.High:
			case <-stop:
				return
			}
		}
	}()

	opts := testOptions()
	opts.TE = line
	dev := New(opts)
	s := newSession(t, dev, dsicmd.Config{})
	ctx := context.Background()

	for range 3 {
		if err := s.Overlay(ctx, testFB); err != nil {
			t.Fatalf("Overlay() error = %v", err)
		}
	}
	if err := s.WaitForTransferIdle(ctx); err != nil {
		t.Fatalf("WaitForTransferIdle() error = %v", err)
	}
	if c := dev.Counters(); c.TEMissed != 0 || c.OverlayKicks != 3 {
		t.Errorf("TE missed/kicks = %d/%d, want 0/3", c.TEMissed, c.OverlayKicks)
	}
}

func TestMaskedInterruptIsDropped(t *testing.T) {
	dev := New(testOptions())
	done := make(chan struct{}, 1)
	dev.Attach(handlerFunc(func() { done <- struct{}{} }))
	defer dev.Close()

	dev.KickOverlay()
	select {
	case <-done:
		t.Fatal("masked interrupt delivered")
	case <-time.After(20 * time.Millisecond):
	}
	if c := dev.Counters(); c.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", c.Dropped)
	}
}

func TestWaitLinkIdle(t *testing.T) {
	opts := testOptions()
	opts.TransferLatency = time.Second
	dev := New(opts)
	defer dev.Close()

	if err := dev.WaitLinkIdle(context.Background()); err != nil {
		t.Fatalf("WaitLinkIdle() on idle link error = %v", err)
	}

	dev.StartTransfer()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := dev.WaitLinkIdle(ctx); err == nil {
		t.Error("WaitLinkIdle() returned before the transfer left the link")
	}
}

func TestAllocWriteback(t *testing.T) {
	opts := testOptions()
	opts.WritebackBase = 0
	dev := New(opts)
	if addr, err := dev.AllocWriteback(1024); err != nil || addr != 0 {
		t.Errorf("AllocWriteback() without buffer = %#x, %v", addr, err)
	}

	dev = New(testOptions())
	a, _ := dev.AllocWriteback(1024)
	b, _ := dev.AllocWriteback(2048)
	if a == 0 || a != b {
		t.Errorf("AllocWriteback() = %#x then %#x, want the same non-zero buffer", a, b)
	}
}

func TestDumpRegisters(t *testing.T) {
	dev := New(testOptions())
	dev.EnableIRQ(0)
	dev.KickReadback(0x1234)
	defer dev.Close()

	ranges := dev.DumpRegisters()
	names := make(map[string][]uint32)
	for _, r := range ranges {
		names[r.Name] = r.Values
	}
	for _, want := range []string{"intr", "overlay0", "dma_p", "dsi", "tear"} {
		if _, ok := names[want]; !ok {
			t.Errorf("missing register range %q", want)
		}
	}
	if got := names["dma_p"][0]; got != 0x1234 {
		t.Errorf("dma_p address = %#x, want 0x1234", got)
	}
	if got := names["intr"][0]; got != 1 {
		t.Errorf("intr mask = %#x, want 0x1", got)
	}
}

// handlerFunc counts overlay completions only.
type handlerFunc func()

func (f handlerFunc) OverlayDone()  { f() }
func (f handlerFunc) ReadbackDone() {}
