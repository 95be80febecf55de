package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
	"periph.io/x/conn/v3/physic"

	"github.com/smazurov/dsicmd/internal/dsicmd"
	"github.com/smazurov/dsicmd/internal/overlay"
	"github.com/smazurov/dsicmd/internal/tear"
)

// DefaultFramebufferAddr is the scanout address handed to the pipe when the
// framebuffer is not allocated by a real display driver.
const DefaultFramebufferAddr = 0x10000000

// PanelSettings is the [panel] table of the configuration file.
type PanelSettings struct {
	Name             string `toml:"name" json:"name"`
	Width            int    `toml:"width" json:"width"`
	Height           int    `toml:"height" json:"height"`
	BitsPerPixel     int    `toml:"bits_per_pixel" json:"bits_per_pixel"`
	RefreshRate      string `toml:"refresh_rate" json:"refresh_rate"`
	TotalLines       int    `toml:"total_lines" json:"total_lines"`
	TimeoutPolicy    string `toml:"timeout_policy" json:"timeout_policy"`
	ClockIdleTimeout string `toml:"clock_idle_timeout" json:"clock_idle_timeout"`
	BltFormat        string `toml:"blt_format" json:"blt_format"`
	TearCheck        bool   `toml:"tear_check" json:"tear_check"`
	VsyncAdjust      int    `toml:"vsync_adjust" json:"vsync_adjust"`
	TEPin            string `toml:"te_pin" json:"te_pin,omitempty"`
	Mode             string `toml:"mode" json:"mode"`
}

// BltSettings is the [blt] table. It is the only part of the file that is
// reloaded while the daemon runs.
type BltSettings struct {
	Enabled bool `toml:"enabled" json:"enabled"`
}

// File is the subset of the configuration file describing the panel.
type File struct {
	Panel PanelSettings `toml:"panel"`
	Blt   BltSettings   `toml:"blt"`
}

// DefaultPanelSettings returns a 480x800 60Hz panel in UI mode.
func DefaultPanelSettings() PanelSettings {
	return PanelSettings{
		Name:          dsicmd.DefaultPanelName,
		Width:         480,
		Height:        800,
		BitsPerPixel:  32,
		RefreshRate:   "60Hz",
		TimeoutPolicy: string(dsicmd.TimeoutReturnError),
		BltFormat:     overlay.BltRGB888.String(),
		TearCheck:     true,
		VsyncAdjust:   tear.DefaultAdjust,
		Mode:          "ui",
	}
}

// LoadFile reads the [panel] and [blt] tables of path over the defaults. A
// missing file yields the defaults.
func LoadFile(path string) (File, error) {
	f := File{Panel: DefaultPanelSettings()}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return f, nil
	}
	if err != nil {
		return f, err
	}
	if err := toml.Unmarshal(data, &f); err != nil {
		return f, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return f, nil
}

// LoadBltConfig reads only the [blt] table. It is the loader of the runtime
// config watcher.
func LoadBltConfig(path string) (BltSettings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BltSettings{}, err
	}
	var raw struct {
		Blt BltSettings `toml:"blt"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return BltSettings{}, fmt.Errorf("failed to parse TOML config: %w", err)
	}
	return raw.Blt, nil
}

// Frequency parses RefreshRate ("60Hz", "59.94Hz").
func (p PanelSettings) Frequency() (physic.Frequency, error) {
	var f physic.Frequency
	if p.RefreshRate == "" {
		return 60 * physic.Hertz, nil
	}
	if err := f.Set(p.RefreshRate); err != nil {
		return 0, fmt.Errorf("refresh_rate %q: %w", p.RefreshRate, err)
	}
	if f <= 0 {
		return 0, fmt.Errorf("refresh_rate %q must be positive", p.RefreshRate)
	}
	return f, nil
}

// SessionConfig converts the settings into a panel session configuration.
func (p PanelSettings) SessionConfig() (dsicmd.Config, error) {
	var cfg dsicmd.Config

	rate, err := p.Frequency()
	if err != nil {
		return cfg, dsicmd.NewError(dsicmd.ErrCodeInvalidConfig, "invalid refresh rate", err)
	}
	policy, err := dsicmd.ParseTimeoutPolicy(p.TimeoutPolicy)
	if err != nil {
		return cfg, err
	}
	format, err := overlay.ParseBltFormat(p.BltFormat)
	if err != nil {
		return cfg, dsicmd.NewError(dsicmd.ErrCodeInvalidConfig, "invalid blt format", err)
	}

	cfg = dsicmd.Config{
		Name:          p.Name,
		VsyncPeriod:   rate.Period(),
		TimeoutPolicy: policy,
		BltFormat:     format,
	}
	if p.ClockIdleTimeout != "" {
		d, parseErr := time.ParseDuration(p.ClockIdleTimeout)
		if parseErr != nil {
			return cfg, dsicmd.NewError(dsicmd.ErrCodeInvalidConfig, "invalid clock_idle_timeout", parseErr)
		}
		cfg.ClockIdleTimeout = d
	}
	return cfg, nil
}

// TearConfig returns the tear-check setup. All vsync sources follow
// TearCheck.
func (p PanelSettings) TearConfig() tear.Config {
	total := p.TotalLines
	if total == 0 {
		total = p.Height
	}
	return tear.Config{
		ProcessorVsync: p.TearCheck,
		InterfaceVsync: p.TearCheck,
		PanelVsync:     p.TearCheck,
		Adjust:         p.VsyncAdjust,
		TotalLines:     total,
		Which:          tear.Primary,
	}
}

// Framebuffer describes fb0 for the panel resolution.
func (p PanelSettings) Framebuffer() overlay.Framebuffer {
	bpp := p.BitsPerPixel / 8
	return overlay.Framebuffer{
		Index:        0,
		XRes:         p.Width,
		YRes:         p.Height,
		BitsPerPixel: p.BitsPerPixel,
		LineLength:   overlay.LineLength(0, p.Width, bpp),
		Addr:         DefaultFramebufferAddr,
		Format:       dsicmd.DefaultPipeFormat,
	}
}

// Validate checks the settings and the session configuration they produce.
func (p PanelSettings) Validate() error {
	if p.Width <= 0 || p.Height <= 0 {
		return dsicmd.NewError(dsicmd.ErrCodeInvalidConfig,
			fmt.Sprintf("panel size %dx%d must be positive", p.Width, p.Height), nil)
	}
	switch p.BitsPerPixel {
	case 16, 24, 32:
	default:
		return dsicmd.NewError(dsicmd.ErrCodeInvalidConfig,
			fmt.Sprintf("bits_per_pixel %d not supported", p.BitsPerPixel), nil)
	}
	if p.TotalLines != 0 && p.TotalLines < p.Height {
		return dsicmd.NewError(dsicmd.ErrCodeInvalidConfig,
			fmt.Sprintf("total_lines %d shorter than height %d", p.TotalLines, p.Height), nil)
	}
	switch p.Mode {
	case "", "ui", "video":
	default:
		return dsicmd.NewError(dsicmd.ErrCodeInvalidConfig, fmt.Sprintf("unknown mode %q", p.Mode), nil)
	}
	cfg, err := p.SessionConfig()
	if err != nil {
		return err
	}
	return dsicmd.ValidateConfig(cfg)
}
