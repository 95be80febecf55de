package dsicmd

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smazurov/dsicmd/internal/events"
	"github.com/smazurov/dsicmd/internal/hw"
)

func TestCommitFramePreconditions(t *testing.T) {
	ctx := context.Background()

	s, _ := newTestSession(t, Config{})
	if err := s.CommitFrame(ctx); !IsCode(err, ErrCodePanelOff) {
		t.Errorf("CommitFrame() with panel off error = %v, want %s", err, ErrCodePanelOff)
	}

	s.SetPanelPower(true)
	if err := s.CommitFrame(ctx); !IsCode(err, ErrCodeNotBound) {
		t.Errorf("CommitFrame() without pipe error = %v, want %s", err, ErrCodeNotBound)
	}
}

func TestCommitFrameWithoutBlt(t *testing.T) {
	s, f := newBoundSession(t)
	ctx := context.Background()

	if err := s.CommitFrame(ctx); err != nil {
		t.Fatalf("CommitFrame() error = %v", err)
	}

	st := s.Stats()
	if !st.TransferBusy || st.OutputBusy {
		t.Errorf("after commit busy = %v/%v, want true/false", st.TransferBusy, st.OutputBusy)
	}
	if st.PlayState != Playing {
		t.Errorf("PlayState = %s, want playing", st.PlayState)
	}
	if st.KickoffOverlay != 1 {
		t.Errorf("KickoffOverlay = %d, want 1", st.KickoffOverlay)
	}
	if f.transfers != 1 || f.kicks != 1 || f.perfCalls != 1 {
		t.Errorf("transfers/kicks/perf = %d/%d/%d, want 1/1/1", f.transfers, f.kicks, f.perfCalls)
	}
	if !f.irqEnabled(hw.IRQOverlayDone) {
		t.Error("overlay-done interrupt not enabled")
	}

	s.OverlayDone()

	st = s.Stats()
	if st.TransferBusy {
		t.Error("transfer still busy after overlay done")
	}
	if n := len(f.readbackAddrs()); n != 0 {
		t.Errorf("%d readbacks kicked, want 0", n)
	}
	if f.irqEnabled(hw.IRQOverlayDone) {
		t.Error("overlay-done interrupt left enabled")
	}

	done := make(chan error, 1)
	go func() { done <- s.WaitForTransferIdle(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WaitForTransferIdle() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("WaitForTransferIdle() blocked on an idle transfer")
	}
}

func TestCommitFrameWithBltDefersTransfer(t *testing.T) {
	s, f := newBoundSession(t)
	ctx := context.Background()

	if err := s.EnableBLT(ctx); err != nil {
		t.Fatalf("EnableBLT() error = %v", err)
	}
	if err := s.CommitFrame(ctx); err != nil {
		t.Fatalf("CommitFrame() error = %v", err)
	}

	if f.transfers != 0 {
		t.Errorf("transfers = %d, want 0 before write-back completes", f.transfers)
	}
	st := s.Stats()
	if !st.TransferBusy || !st.OutputBusy {
		t.Errorf("busy = %v/%v, want true/true", st.TransferBusy, st.OutputBusy)
	}

	s.OverlayDone()
	if f.transfers != 1 {
		t.Errorf("transfers = %d after overlay done, want 1", f.transfers)
	}
	if !f.irqEnabled(hw.IRQReadbackDone) {
		t.Error("readback-done interrupt not enabled on first completion")
	}
}

func TestCommitFrameLinkError(t *testing.T) {
	s, f := newBoundSession(t)
	f.linkErr = errors.New("link stuck")

	err := s.CommitFrame(context.Background())
	if err == nil || !errors.Is(err, f.linkErr) {
		t.Fatalf("CommitFrame() error = %v, want wrapped link error", err)
	}
	if f.kicks != 0 {
		t.Errorf("kicks = %d, want 0", f.kicks)
	}
}

func TestKickoffVideoReconfiguresOnBltTransitions(t *testing.T) {
	pub := &recordingPublisher{}
	s, f := newBoundSession(t, WithPublisher(pub))
	ctx := context.Background()

	if err := s.EnableBLT(ctx); err != nil {
		t.Fatalf("EnableBLT() error = %v", err)
	}

	configured := len(f.configured)
	if err := s.KickoffVideo(ctx); err != nil {
		t.Fatalf("KickoffVideo() error = %v", err)
	}
	if len(f.configured) != configured+1 {
		t.Fatalf("first BLT frame did not reconfigure the pipe")
	}
	s.OverlayDone()
	s.ReadbackDone()

	configured = len(f.configured)
	if err := s.KickoffVideo(ctx); err != nil {
		t.Fatalf("KickoffVideo() error = %v", err)
	}
	if len(f.configured) != configured {
		t.Errorf("steady-state frame reconfigured the pipe")
	}
	s.OverlayDone()
	s.ReadbackDone()

	if err := s.DisableBLT(); err != nil {
		t.Fatalf("DisableBLT() error = %v", err)
	}
	if err := s.KickoffVideo(ctx); err != nil {
		t.Fatalf("KickoffVideo() error = %v", err)
	}
	s.OverlayDone()
	s.ReadbackDone()

	if st := s.Stats(); st.BltAddr != 0 {
		t.Fatalf("BltAddr = %#x after drain, want 0", st.BltAddr)
	}

	configured = len(f.configured)
	if err := s.KickoffVideo(ctx); err != nil {
		t.Fatalf("KickoffVideo() error = %v", err)
	}
	if len(f.configured) != configured+1 {
		t.Errorf("first frame after disable did not reconfigure the pipe")
	}
	if st := s.Stats(); st.BltCount != 0 || st.BltDisables != 1 {
		t.Errorf("BltCount/BltDisables = %d/%d, want 0/1", st.BltCount, st.BltDisables)
	}

	want := []string{events.BltStateEnabled, events.BltStateEnding, events.BltStateDisabled}
	got := pub.bltStates()
	if len(got) != len(want) {
		t.Fatalf("BLT events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("BLT event %d = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestKickoffVideoNotBound(t *testing.T) {
	s, _ := newTestSession(t, Config{})
	s.SetPanelPower(true)
	if err := s.KickoffVideo(context.Background()); !IsCode(err, ErrCodeNotBound) {
		t.Errorf("KickoffVideo() error = %v, want %s", err, ErrCodeNotBound)
	}
}

func TestOverlayReleasesPanWaiter(t *testing.T) {
	s, f := newTestSession(t, Config{})
	s.SetPanelPower(true)
	ctx := context.Background()

	pan := s.RegisterPanWaiter()
	if err := s.Overlay(ctx, testFB); err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}

	select {
	case <-pan:
	case <-time.After(time.Second):
		t.Fatal("pan waiter not released")
	}
	if f.kicks != 1 {
		t.Errorf("kicks = %d, want 1", f.kicks)
	}
	if !s.Stats().Bound {
		t.Error("Overlay() did not bind a pipe")
	}
}

func TestOverlayWaitsForPreviousFrame(t *testing.T) {
	s, f := newBoundSession(t)
	ctx := context.Background()

	if err := s.CommitFrame(ctx); err != nil {
		t.Fatalf("CommitFrame() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- s.Overlay(ctx, testFB) }()

	select {
	case <-done:
		t.Fatal("Overlay() returned while the previous transfer was busy")
	case <-time.After(5 * time.Millisecond):
	}

	s.OverlayDone()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Overlay() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Overlay() did not return after completion")
	}
	if f.kicks != 2 {
		t.Errorf("kicks = %d, want 2", f.kicks)
	}
}

func TestOverlayPanelOff(t *testing.T) {
	s, f := newTestSession(t, Config{})
	if err := s.Overlay(context.Background(), testFB); err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if f.kicks != 0 || s.Stats().Bound {
		t.Error("Overlay() touched the hardware while the panel was off")
	}
}

func TestRestore(t *testing.T) {
	s, f := newTestSession(t, Config{})
	s.SetPanelPower(true)
	ctx := context.Background()

	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore() on unbound session error = %v", err)
	}
	if f.kicks != 0 {
		t.Fatal("Restore() kicked an unbound session")
	}

	if err := s.Bind(testFB); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	configured := len(f.configured)
	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if len(f.configured) != configured+1 || f.kicks != 1 {
		t.Errorf("configured/kicks = %d/%d, want %d/1", len(f.configured), f.kicks, configured+1)
	}
	last := f.configured[len(f.configured)-1]
	if last.BufferAddr != testFB.Addr {
		t.Errorf("restored buffer = %#x, want %#x", last.BufferAddr, testFB.Addr)
	}
}

func TestOverlayRekicksAfterLostCompletion(t *testing.T) {
	s, f := newTestSession(t, Config{TransferTimeout: 10 * time.Millisecond})
	s.SetPanelPower(true)
	ctx := context.Background()

	// No completion is ever raised.
	for i := 1; i <= 3; i++ {
		if err := s.Overlay(ctx, testFB); err != nil {
			t.Fatalf("Overlay() %d error = %v", i, err)
		}
		if f.kicks != i {
			t.Fatalf("after Overlay() %d kicks = %d, want %d", i, f.kicks, i)
		}
	}
	if st := s.Stats(); st.Timeouts != 2 {
		t.Errorf("Timeouts = %d, want 2", st.Timeouts)
	}

	if err := s.Restore(ctx); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if f.kicks != 4 {
		t.Errorf("kicks = %d after Restore(), want 4", f.kicks)
	}

	s.OverlayDone()
	if err := s.WaitForTransferIdle(ctx); err != nil {
		t.Errorf("WaitForTransferIdle() after completion error = %v", err)
	}
}

func TestOverlayStopsOnTimeoutUnderAbort(t *testing.T) {
	var aborted int
	s, f := newTestSession(t,
		Config{TimeoutPolicy: TimeoutAbort, TransferTimeout: 10 * time.Millisecond},
		WithAbortFunc(func(error) { aborted++ }))
	s.SetPanelPower(true)
	ctx := context.Background()

	if err := s.Overlay(ctx, testFB); err != nil {
		t.Fatalf("Overlay() error = %v", err)
	}
	if err := s.Overlay(ctx, testFB); !IsCode(err, ErrCodeHardwareTimeout) {
		t.Fatalf("Overlay() error = %v, want %s", err, ErrCodeHardwareTimeout)
	}
	if f.kicks != 1 || aborted != 1 {
		t.Errorf("kicks/aborts = %d/%d, want 1/1", f.kicks, aborted)
	}
	if !s.Stats().TransferBusy {
		t.Error("transfer busy cleared under abort")
	}
}

func TestKickoffVideoRekicksAfterLostReadback(t *testing.T) {
	s, f := newTestSession(t, Config{ReadbackTimeout: 10 * time.Millisecond})
	s.SetPanelPower(true)
	if err := s.Bind(testFB); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	ctx := context.Background()

	if err := s.EnableBLT(ctx); err != nil {
		t.Fatalf("EnableBLT() error = %v", err)
	}
	if err := s.KickoffVideo(ctx); err != nil {
		t.Fatalf("KickoffVideo() error = %v", err)
	}
	s.OverlayDone()

	// The readback completion is lost.
	if err := s.KickoffVideo(ctx); err != nil {
		t.Fatalf("KickoffVideo() after lost readback error = %v", err)
	}
	if f.kicks != 2 {
		t.Errorf("kicks = %d, want 2", f.kicks)
	}
	st := s.Stats()
	if st.Timeouts != 1 || !st.OutputBusy {
		t.Errorf("Timeouts/OutputBusy = %d/%v, want 1/true", st.Timeouts, st.OutputBusy)
	}
	if st.OvCount != st.DmapCount {
		t.Errorf("skew = %d after the lost readback, want 0", st.OvCount-st.DmapCount)
	}
	checkSignals(t, s)

	// The next frame is read back instead of stalling on back-pressure.
	s.OverlayDone()
	if n := len(f.readbackAddrs()); n != 2 {
		t.Errorf("%d readbacks, want 2", n)
	}
	if st := s.Stats(); st.Backpressure != 0 {
		t.Errorf("Backpressure = %d, want 0", st.Backpressure)
	}
}

