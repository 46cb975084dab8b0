package app

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ternreader/tern/pkg/fb"
	"github.com/ternreader/tern/pkg/render"
)

// Config is ternd's TOML configuration.
type Config struct {
	// Library is the media root (mounted SD card or a host dir).
	Library string `toml:"library"`

	Display struct {
		Width    int    `toml:"width"`
		Height   int    `toml:"height"`
		Rotation string `toml:"rotation"`
	} `toml:"display"`

	Input struct {
		// Device is the evdev node on hardware; ignored by the
		// simulator.
		Device string `toml:"device"`
		Keymap map[string]string `toml:"keymap"`
	} `toml:"input"`

	Serial struct {
		Port string `toml:"port"`
	} `toml:"serial"`

	IdleTimeoutMs int      `toml:"idle_timeout_ms"`
	FitMode       string   `toml:"fit_mode"`
	Filters       []string `toml:"filters"`

	// WakeRestoreOnly defers full chrome redraws after wake until
	// the next input, repainting only preserved content.
	WakeRestoreOnly bool `toml:"wake_restore_only"`
}

// DefaultConfig matches the 480x800 portrait panel the converter
// targets by default.
func DefaultConfig() Config {
	var c Config
	c.Library = "/media/sd"
	c.Display.Width = 800
	c.Display.Height = 480
	c.Display.Rotation = "90"
	c.Serial.Port = ""
	c.IdleTimeoutMs = 300000
	c.FitMode = "contain"
	c.WakeRestoreOnly = true
	return c
}

// LoadConfig reads path over the defaults. Unknown keys are rejected;
// a silently ignored typo in an idle timeout is a support ticket.
func LoadConfig(path string) (Config, error) {
	c := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("could not read config: %w", err)
	}
	md, err := toml.Decode(string(data), &c)
	if err != nil {
		return c, fmt.Errorf("could not parse config: %w", err)
	}
	if und := md.Undecoded(); len(und) > 0 {
		keys := make([]string, len(und))
		for i, k := range und {
			keys[i] = k.String()
		}
		return c, fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return c, c.Validate()
}

func (c *Config) Validate() error {
	if _, err := fb.ParseRotation(c.Display.Rotation); err != nil {
		return err
	}
	if _, err := render.ParseFitMode(c.FitMode); err != nil {
		return err
	}
	if c.Display.Width <= 0 || c.Display.Height <= 0 || c.Display.Width%8 != 0 {
		return fmt.Errorf("invalid display geometry %dx%d", c.Display.Width, c.Display.Height)
	}
	if c.IdleTimeoutMs < 1000 {
		return fmt.Errorf("idle timeout %dms too short", c.IdleTimeoutMs)
	}
	return nil
}

func (c *Config) Rotation() fb.Rotation {
	r, _ := fb.ParseRotation(c.Display.Rotation)
	return r
}

func (c *Config) Fit() render.FitMode {
	m, _ := render.ParseFitMode(c.FitMode)
	return m
}
