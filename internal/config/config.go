// SPDX-License-Identifier: GPL-3.0-only

// Package config loads daemon settings from the environment and .env files.
// Command-line flags override these values.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/shini4i/lightnight-daemon/internal/display"
	"github.com/shini4i/lightnight-daemon/internal/sensor"
	"github.com/shini4i/lightnight-daemon/internal/theme"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "LIGHTNIGHT_"

// Config holds the daemon settings.
type Config struct {
	// IIORoot is the sysfs directory scanned for light sensors.
	IIORoot string
	// SensorName selects a sensor by driver name.
	SensorName string
	// SensorType selects a sensor by type ("illuminance" or "intensity").
	SensorType string
	// PollInterval is the sensor polling cadence.
	PollInterval time.Duration

	// BacklightRoot is the sysfs directory holding backlight devices.
	BacklightRoot string
	// BacklightDevice names the backlight device; empty picks the first one.
	BacklightDevice string
	// Backlight enables the sysfs backlight output.
	Backlight bool
	// StudioDisplay enables the Apple Studio Display output.
	StudioDisplay bool
	// DryRun computes levels without writing them anywhere.
	DryRun bool

	// AutoBrightness is the initial state of automatic brightness.
	AutoBrightness bool
	// AutoTheme is the initial state of the time-based theme switch.
	AutoTheme bool
	// Schedule is the dark period used by the theme switch.
	Schedule theme.Schedule

	// Verbose enables debug logging.
	Verbose bool
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		IIORoot:       sensor.DefaultIIORoot,
		PollInterval:  sensor.DefaultInterval,
		BacklightRoot: display.DefaultBacklightRoot,
		Backlight:     true,
		StudioDisplay: true,
		Schedule:      theme.DefaultSchedule(),
	}
}

// Load reads the given .env files (missing files are ignored) and then the
// environment on top of the defaults. Variables already set in the
// environment take precedence over .env files.
func Load(envFiles ...string) (Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	cfg := Default()
	var errs []error

	lookupString(&cfg.IIORoot, "IIO_ROOT")
	lookupString(&cfg.SensorName, "SENSOR_NAME")
	lookupString(&cfg.SensorType, "SENSOR_TYPE")
	errs = append(errs, lookupDuration(&cfg.PollInterval, "POLL_INTERVAL"))

	lookupString(&cfg.BacklightRoot, "BACKLIGHT_ROOT")
	lookupString(&cfg.BacklightDevice, "BACKLIGHT_DEVICE")
	errs = append(errs,
		lookupBool(&cfg.Backlight, "BACKLIGHT"),
		lookupBool(&cfg.StudioDisplay, "STUDIO_DISPLAY"),
		lookupBool(&cfg.DryRun, "DRY_RUN"),
		lookupBool(&cfg.AutoBrightness, "AUTO_BRIGHTNESS"),
		lookupBool(&cfg.AutoTheme, "AUTO_THEME"),
		lookupInt(&cfg.Schedule.DarkFrom, "DARK_FROM"),
		lookupInt(&cfg.Schedule.LightFrom, "LIGHT_FROM"),
		lookupBool(&cfg.Verbose, "VERBOSE"),
	)

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings for consistency.
func (c Config) Validate() error {
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	if c.IIORoot == "" {
		return errors.New("IIO root cannot be empty")
	}
	if c.Backlight && c.BacklightRoot == "" {
		return errors.New("backlight root cannot be empty")
	}
	return c.Schedule.Validate()
}

func lookupString(dst *string, key string) {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok {
		*dst = v
	}
}

func lookupBool(dst *bool, key string) error {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = b
	return nil
}

func lookupInt(dst *int, key string) error {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = n
	return nil
}

func lookupDuration(dst *time.Duration, key string) error {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s%s: %w", EnvPrefix, key, err)
	}
	*dst = d
	return nil
}
