package logging

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const defaultBufferSize = 1000

// Config represents logging configuration.
type Config struct {
	Level      string            `toml:"level"`
	Format     string            `toml:"format"`
	BufferSize int               `toml:"buffer_size"`
	Modules    map[string]string `toml:"modules"`
}

// registry holds every module logger and the shared sinks. Loggers are
// cached forever; Initialize re-levels and re-wires the ones created before
// it ran.
type registry struct {
	mu          sync.RWMutex
	cfg         Config
	initialized bool
	loggers     map[string]*slog.Logger
	levels      map[string]*slog.LevelVar
	global      slog.LevelVar
	buffer      *RingBuffer
	callback    LogCallback
}

var reg = newRegistry()

func newRegistry() *registry {
	return &registry{
		loggers: make(map[string]*slog.Logger),
		levels:  make(map[string]*slog.LevelVar),
	}
}

// levelFor resolves the configured level of module. Caller holds mu.
func (r *registry) levelFor(module string) slog.Level {
	level := slog.LevelInfo
	if !r.initialized {
		return level
	}
	if l, ok := parseLevel(r.cfg.Level); ok {
		level = l
	}
	if l, ok := parseLevel(r.cfg.Modules[module]); ok {
		level = l
	}
	return level
}

// format returns the stdout format. Caller holds mu.
func (r *registry) format() string {
	if r.initialized {
		return r.cfg.Format
	}
	return "text"
}

// sinks returns the buffer and callback the buffer handler writes to.
func (r *registry) sinks() (*RingBuffer, LogCallback) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.buffer, r.callback
}

// Initialize sets up the logging system.
func Initialize(config Config) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.cfg = config
	reg.initialized = true

	size := config.BufferSize
	if size <= 0 {
		size = defaultBufferSize
	}
	reg.buffer = NewRingBuffer(size)

	global, ok := parseLevel(config.Level)
	if !ok {
		global = slog.LevelInfo
	}
	reg.global.Set(global)

	// Loggers handed out earlier share the module LevelVar and follow it.
	for module, lv := range reg.levels {
		lv.Set(reg.levelFor(module))
		reg.loggers[module] = slog.New(createHandler(config.Format, lv)).With("module", module)
	}

	slog.SetDefault(slog.New(createHandler(config.Format, &reg.global)))
}

// GetBuffer returns the log ring buffer for reading historical logs.
func GetBuffer() *RingBuffer {
	buffer, _ := reg.sinks()
	return buffer
}

// SetLogCallback sets a callback to be called for each new log entry.
// Used for publishing log events to SSE clients.
func SetLogCallback(callback LogCallback) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.callback = callback
}

// GetLogger returns a logger for the specified module, creating it if needed.
func GetLogger(module string) *slog.Logger {
	reg.mu.RLock()
	logger, ok := reg.loggers[module]
	reg.mu.RUnlock()
	if ok {
		return logger
	}

	reg.mu.Lock()
	defer reg.mu.Unlock()
	if logger, ok := reg.loggers[module]; ok {
		return logger
	}

	lv := &slog.LevelVar{}
	lv.Set(reg.levelFor(module))
	logger = slog.New(createHandler(reg.format(), lv)).With("module", module)
	reg.loggers[module] = logger
	reg.levels[module] = lv
	return logger
}

// SetModuleLevel changes the level of one module at runtime.
func SetModuleLevel(module, level string) error {
	parsed, ok := parseLevel(level)
	if !ok {
		return fmt.Errorf("unknown log level %q", level)
	}

	GetLogger(module)

	reg.mu.Lock()
	defer reg.mu.Unlock()
	reg.levels[module].Set(parsed)
	if reg.cfg.Modules == nil {
		reg.cfg.Modules = make(map[string]string)
	}
	reg.cfg.Modules[module] = levelToString(parsed)
	return nil
}

// ModuleLevels returns the current level of every module logger.
func ModuleLevels() map[string]string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	levels := make(map[string]string, len(reg.levels))
	for module, lv := range reg.levels {
		levels[module] = levelToString(lv.Level())
	}
	return levels
}

// createHandler builds the handler chain for one level: stdout when it goes
// somewhere, the journal when running under systemd, and always the ring
// buffer.
func createHandler(format string, level slog.Leveler) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	var stdout slog.Handler
	if format == "json" {
		stdout = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		stdout = slog.NewTextHandler(os.Stdout, opts)
	}

	var handlers MultiHandler
	if isStdoutAvailable() {
		handlers = append(handlers, stdout)
	}
	if IsJournalAvailable() {
		handlers = append(handlers, NewJournalHandler(level))
	}
	handlers = append(handlers, NewBufferHandler(level))

	if len(handlers) == 1 {
		return handlers[0]
	}
	return handlers
}

// isStdoutAvailable reports whether stdout is a terminal, pipe, socket or
// regular file rather than /dev/null.
func isStdoutAvailable() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	mode := fi.Mode()
	return mode&(os.ModeCharDevice|os.ModeNamedPipe|os.ModeSocket) != 0 || mode.IsRegular()
}

// parseLevel converts a level name to slog.Level.
func parseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return 0, false
	}
}
