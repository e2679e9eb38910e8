// SPDX-License-Identifier: GPL-3.0-only

// Package main provides the entry point for the Light & Night daemon.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/lightnight-daemon/internal/config"
)

var (
	verbose bool
	envFile string
	cfg     config.Config

	rootCmd = &cobra.Command{
		Use:   "lightnight-daemon",
		Short: "Ambient-light auto-brightness and day/night theme daemon",
		Long: `lightnight-daemon reads an ambient light sensor and adjusts screen
brightness automatically. It can also switch the desktop between light and
dark color schemes by time of day.

The daemon exposes its switches on the session bus; the toggle, enable,
disable, status and theme subcommands talk to a running instance.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if err := applyFlags(cmd, &loaded); err != nil {
				return err
			}
			if err := loaded.Validate(); err != nil {
				return err
			}
			cfg = loaded
			setupLogging(os.Stderr, verbose || cfg.Verbose)
			return nil
		},
	}
)

func init() {
	defaults := config.Default()

	pf := rootCmd.PersistentFlags()
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	pf.StringVar(&envFile, "env-file", ".env", "Optional dotenv file with LIGHTNIGHT_* settings")
	pf.String("iio-root", defaults.IIORoot, "sysfs directory scanned for light sensors")
	pf.String("sensor-name", "", "Select the light sensor by driver name")
	pf.String("sensor-type", "", "Select the light sensor by type (illuminance, intensity)")

	rootCmd.AddCommand(
		newRunCmd(defaults),
		newToggleCmd(),
		newSetCmd("enable", true),
		newSetCmd("disable", false),
		newStatusCmd(),
		newThemeCmd(),
		newSensorsCmd(),
	)
}

// setupLogging configures the global zerolog logger.
func setupLogging(out io.Writer, debug bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = zerolog.New(out).With().Timestamp().Logger()
	}
}

// applyFlags overrides loaded settings with flags set on the command line.
func applyFlags(cmd *cobra.Command, c *config.Config) error {
	fs := cmd.Flags()
	var err error

	str := func(name string, dst *string) {
		if err == nil && fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, err = fs.GetString(name)
		}
	}
	boolean := func(name string, dst *bool) {
		if err == nil && fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, err = fs.GetBool(name)
		}
	}
	integer := func(name string, dst *int) {
		if err == nil && fs.Lookup(name) != nil && fs.Changed(name) {
			*dst, err = fs.GetInt(name)
		}
	}

	str("iio-root", &c.IIORoot)
	str("sensor-name", &c.SensorName)
	str("sensor-type", &c.SensorType)
	if err == nil && fs.Lookup("poll-interval") != nil && fs.Changed("poll-interval") {
		c.PollInterval, err = fs.GetDuration("poll-interval")
	}
	str("backlight-root", &c.BacklightRoot)
	str("backlight-device", &c.BacklightDevice)
	boolean("backlight", &c.Backlight)
	boolean("studio-display", &c.StudioDisplay)
	boolean("dry-run", &c.DryRun)
	boolean("auto-brightness", &c.AutoBrightness)
	boolean("auto-theme", &c.AutoTheme)
	integer("dark-from", &c.Schedule.DarkFrom)
	integer("light-from", &c.Schedule.LightFrom)

	if err != nil {
		return fmt.Errorf("invalid flag: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Failed to execute command")
	}
}
