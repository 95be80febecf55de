// Package logging wires slog for the panel daemon: one cached logger per
// module, each with its own runtime-adjustable level.
//
// Call Initialize once after configuration is loaded, then ask for loggers
// by module name:
//
//	logging.Initialize(logging.Config{
//		Level:   "info",
//		Format:  "text",
//		Modules: map[string]string{"dsicmd": "debug", "sim": "warn"},
//	})
//	logger := logging.GetLogger("dsicmd").With("panel", "dsi0")
//	logger.Debug("Overlay kicked", "frame", n)
//
// Module levels can also be changed while running with SetModuleLevel; the
// HTTP API exposes this under /api/logs/levels.
//
// # Sinks
//
// Each record goes to every sink that is present:
//
//   - stdout, as text or JSON, unless stdout is /dev/null
//   - the systemd journal, when its socket exists
//   - an in-memory ring buffer (buffer_size entries, default 1000) that backs
//     /api/logs and the log event stream
//
// The "module" and "panel" attributes are lifted out of the attribute map in
// buffered entries and become MODULE and PANEL journal fields, so one panel
// can be followed with:
//
//	journalctl -t dsicmd PANEL=dsi0 -f
//
// # Configuration
//
//	[logging]
//	level = "info"
//	format = "json"
//	buffer_size = 2000
//	dsicmd = "debug"
//	compositor = "warn"
package logging
