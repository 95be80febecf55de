package led

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

const sysfsLEDPath = "/sys/class/leds"

// triggers maps patterns to kernel LED triggers.
var triggers = map[string]string{
	PatternSolid:     "none",
	PatternBlink:     "timer",
	PatternHeartbeat: "heartbeat",
}

// sysfs implements Controller through /sys/class/leds.
type sysfs struct {
	base string
	leds map[string]string // LED name -> sysfs entry
}

func newSysfs(leds map[string]string) *sysfs {
	return newSysfsAt(sysfsLEDPath, leds)
}

func newSysfsAt(base string, leds map[string]string) *sysfs {
	return &sysfs{base: base, leds: leds}
}

// Set writes the trigger for pattern, then the brightness.
func (s *sysfs) Set(name string, enabled bool, pattern string) error {
	entry, ok := s.leds[name]
	if !ok {
		return fmt.Errorf("LED %q not supported on this board", name)
	}

	ledPath := filepath.Join(s.base, entry)
	if _, err := os.Stat(ledPath); err != nil {
		return fmt.Errorf("LED %q not found at %s: %w", name, ledPath, err)
	}

	if pattern != "" {
		trigger, known := triggers[pattern]
		if !known {
			trigger = pattern // raw trigger name
		}
		if err := os.WriteFile(filepath.Join(ledPath, "trigger"), []byte(trigger), 0o644); err != nil {
			return fmt.Errorf("failed to set LED trigger: %w", err)
		}
	}

	brightness := "0"
	if enabled {
		brightness = "1"
	}
	if err := os.WriteFile(filepath.Join(ledPath, "brightness"), []byte(brightness), 0o644); err != nil {
		return fmt.Errorf("failed to set LED brightness: %w", err)
	}
	return nil
}

func (s *sysfs) Available() []string {
	names := make([]string, 0, len(s.leds))
	for name := range s.leds {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (s *sysfs) Patterns() []string {
	return []string{PatternSolid, PatternBlink, PatternHeartbeat}
}
