// Package led mirrors the panel state on board LEDs.
package led

// LED names understood by the manager. Boards map them to their own sysfs
// entries.
const (
	System = "system"
	Status = "status"
)

// Patterns accepted by Controller.Set.
const (
	PatternSolid     = "solid"
	PatternBlink     = "blink"
	PatternHeartbeat = "heartbeat"
)

// Controller abstracts LED hardware control across different SBC boards.
type Controller interface {
	// Set switches an LED and optionally changes its pattern. An empty
	// pattern leaves the trigger untouched.
	Set(name string, enabled bool, pattern string) error

	// Available returns the LED names supported by this controller.
	Available() []string

	// Patterns returns the patterns supported by this controller.
	Patterns() []string
}
