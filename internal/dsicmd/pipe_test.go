package dsicmd

import (
	"context"
	"errors"
	"testing"

	"github.com/smazurov/dsicmd/internal/hw"
	"github.com/smazurov/dsicmd/internal/overlay"
)

func TestBindAllocatesOnce(t *testing.T) {
	s, f := newBoundSession(t)

	if err := s.Bind(testFB); err != nil {
		t.Fatalf("second Bind() error = %v", err)
	}
	if len(f.configured) != 2 {
		t.Fatalf("configured %d times, want 2", len(f.configured))
	}

	s.mu.Lock()
	used := s.pipe.Used
	s.mu.Unlock()
	if used != 1 {
		t.Errorf("pipe Used = %d, want 1", used)
	}

	last := f.configured[1]
	if last.SrcWidth != 480 || last.SrcHeight != 800 || last.Stride != 480*4 || last.MixerStage != overlay.StageBase {
		t.Errorf("configured pipe = %+v", last)
	}
	if f.powered[hw.BlockCommand] {
		t.Error("command block left powered after Bind")
	}
	if len(f.tearLines) != 2 || f.tearLines[0] != 0 {
		t.Errorf("tear lines = %v, want [0 0]", f.tearLines)
	}
}

func TestBindAllocFailure(t *testing.T) {
	tests := []struct {
		name  string
		setup func(f *fakeHW)
	}{
		{"allocator error", func(f *fakeHW) { f.allocErr = errors.New("no free pipe") }},
		{"nil pipe", func(f *fakeHW) { f.noPipe = true }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, f := newTestSession(t, Config{})
			tt.setup(f)

			err := s.Bind(testFB)
			if !IsCode(err, ErrCodePipeAlloc) {
				t.Fatalf("Bind() error = %v, want %s", err, ErrCodePipeAlloc)
			}
			if f.allocErr != nil && !errors.Is(err, f.allocErr) {
				t.Errorf("Bind() error does not wrap the allocator error")
			}
			if s.Stats().Bound {
				t.Error("session bound after allocation failure")
			}
			if len(f.configured) != 0 {
				t.Error("pipe configured after allocation failure")
			}
		})
	}
}

func TestBindProgramsWriteback(t *testing.T) {
	s, f := newBoundSession(t)
	if err := s.EnableBLT(context.Background()); err != nil {
		t.Fatalf("EnableBLT() error = %v", err)
	}
	if err := s.Bind(testFB); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	if len(f.outputs) == 0 || f.outputs[len(f.outputs)-1] != testWritebackBase {
		t.Errorf("overlay outputs = %#x, want last %#x", f.outputs, testWritebackBase)
	}
	last := f.configured[len(f.configured)-1]
	if last.BltAddr != testWritebackBase {
		t.Errorf("configured BltAddr = %#x, want %#x", last.BltAddr, testWritebackBase)
	}
}

func TestSet3D(t *testing.T) {
	ctx := context.Background()

	s, _ := newTestSession(t, Config{})
	if err := s.Set3D(ctx, true, 960, 540); !IsCode(err, ErrCodeNotBound) {
		t.Errorf("Set3D() unbound error = %v, want %s", err, ErrCodeNotBound)
	}

	s, f := newBoundSession(t)
	if err := s.Set3D(ctx, true, 0, 540); !IsCode(err, ErrCodeInvalidConfig) {
		t.Errorf("Set3D() zero width error = %v, want %s", err, ErrCodeInvalidConfig)
	}

	if err := s.Set3D(ctx, true, 960, 540); err != nil {
		t.Fatalf("Set3D(true) error = %v", err)
	}
	last := f.configured[len(f.configured)-1]
	if !last.Is3D || last.SrcWidth != 960 || last.SrcHeight != 540 || last.Stride != overlay.LineLength(0, 960, 4) {
		t.Errorf("3D pipe = %+v", last)
	}

	if err := s.Set3D(ctx, false, 0, 0); err != nil {
		t.Fatalf("Set3D(false) error = %v", err)
	}
	last = f.configured[len(f.configured)-1]
	if last.Is3D || last.SrcWidth != testFB.XRes || last.Stride != testFB.LineLength {
		t.Errorf("2D pipe = %+v", last)
	}
}

func TestSet3DWaitsForTransfer(t *testing.T) {
	s, _ := newBoundSession(t)
	ctx := context.Background()
	if err := s.CommitFrame(ctx); err != nil {
		t.Fatalf("CommitFrame() error = %v", err)
	}
	s.OverlayDone()

	if err := s.Set3D(ctx, true, 960, 540); err != nil {
		t.Fatalf("Set3D() error = %v", err)
	}
}

func TestSuspendStagesDown(t *testing.T) {
	s, f := newTestSession(t, Config{})
	s.Suspend()
	if f.stageDowns != 0 {
		t.Fatal("Suspend() staged down without a pipe")
	}

	s.SetPanelPower(true)
	if err := s.Bind(testFB); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	s.Suspend()
	if f.stageDowns != 1 {
		t.Errorf("stageDowns = %d, want 1", f.stageDowns)
	}

	if err := s.Bind(testFB); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	if last := f.configured[len(f.configured)-1]; last.MixerStage != overlay.StageBase {
		t.Errorf("MixerStage = %d after re-bind, want base", last.MixerStage)
	}
}
