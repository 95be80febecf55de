package led

import (
	"slices"
	"testing"
)

func TestForModel(t *testing.T) {
	tests := []struct {
		model     string
		wantSysfs bool
		wantLEDs  []string
	}{
		{"FriendlyElec NanoPC-T6", true, []string{Status, System}},
		{"Xunlong Orange Pi 5", true, []string{Status, System}},
		{"Raspberry Pi 4 Model B Rev 1.4", true, []string{Status, System}},
		{"unknown", false, []string{Status, System}},
	}
	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			ctrl := forModel(tt.model, discardLogger())
			_, isSysfs := ctrl.(*sysfs)
			if isSysfs != tt.wantSysfs {
				t.Fatalf("forModel(%q) = %T", tt.model, ctrl)
			}
			if got := ctrl.Available(); !slices.Equal(got, tt.wantLEDs) {
				t.Errorf("Available() = %v, want %v", got, tt.wantLEDs)
			}
		})
	}
}

func TestNew(t *testing.T) {
	ctrl := New(discardLogger())
	if ctrl == nil {
		t.Fatal("New() returned nil")
	}
	if ctrl.Available() == nil || ctrl.Patterns() == nil {
		t.Error("Available() and Patterns() must not be nil")
	}
}

func TestDetectBoard(t *testing.T) {
	if model := detectBoard(); model == "" {
		t.Error("detectBoard() returned empty string")
	}
}
