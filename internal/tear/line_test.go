package tear

import (
	"testing"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestLineWait(t *testing.T) {
	pin := &gpiotest.Pin{N: "TE", Num: 17, EdgesChan: make(chan gpio.Level, 1)}
	line, err := NewLine(pin)
	if err != nil {
		t.Fatalf("NewLine() error = %v", err)
	}
	if line.Name() != "TE" {
		t.Errorf("Name() = %q, want TE", line.Name())
	}

	if line.Wait(10 * time.Millisecond) {
		t.Error("Wait() reported a pulse without an edge")
	}

	pin.EdgesChan <- gpio.High
	if !line.Wait(time.Second) {
		t.Error("Wait() missed a pulse")
	}
}

func TestNewLineWithoutEdges(t *testing.T) {
	pin := &gpiotest.Pin{N: "TE", Num: 17}
	if _, err := NewLine(pin); err == nil {
		t.Error("NewLine() should fail when the pin cannot report edges")
	}
}
