package led

import (
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// board maps a device-tree model substring to its LED entries.
type board struct {
	model string
	leds  map[string]string
}

var boards = []board{
	{"NanoPC-T6", map[string]string{System: "sys_led", Status: "usr_led"}},
	{"Orange Pi", map[string]string{System: "green_led", Status: "blue_led"}},
	{"Raspberry Pi", map[string]string{System: "ACT", Status: "PWR"}},
}

// New creates a controller for the running board, or a virtual one when
// the board has no known LEDs.
func New(logger *slog.Logger) Controller {
	return forModel(detectBoard(), logger)
}

func forModel(model string, logger *slog.Logger) Controller {
	for _, b := range boards {
		if strings.Contains(model, b.model) {
			logger.Info("Using sysfs LED controller", "board_model", model)
			return newSysfs(b.leds)
		}
	}
	logger.Info("No LED support detected, using virtual LEDs", "board_model", model)
	return newVirtual(logger)
}

// detectBoard reads the device tree model to identify the board.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	// Device tree strings are NUL terminated.
	return strings.TrimRight(string(data), "\x00")
}
