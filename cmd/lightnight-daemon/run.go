// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/shini4i/lightnight-daemon/internal/autobrightness"
	"github.com/shini4i/lightnight-daemon/internal/brightness"
	"github.com/shini4i/lightnight-daemon/internal/config"
	"github.com/shini4i/lightnight-daemon/internal/dbus"
	"github.com/shini4i/lightnight-daemon/internal/display"
	"github.com/shini4i/lightnight-daemon/internal/hid"
	"github.com/shini4i/lightnight-daemon/internal/sensor"
	"github.com/shini4i/lightnight-daemon/internal/state"
	"github.com/shini4i/lightnight-daemon/internal/theme"
	"github.com/shini4i/lightnight-daemon/internal/udev"
	"github.com/shini4i/lightnight-daemon/internal/ui"
)

func newRunCmd(defaults config.Config) *cobra.Command {
	var (
		withUI  bool
		logFile string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon",
		Long: `Run the daemon in the foreground. With --ui an interactive terminal view
is shown; automatic brightness keeps running while it is open and the view
pauses its own listener while the terminal is unfocused.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if withUI {
				closeLog, err := redirectLogs(logFile)
				if err != nil {
					return err
				}
				defer closeLog()
			}
			return runDaemon(cmd.Context(), cfg, withUI)
		},
	}

	f := cmd.Flags()
	f.BoolVar(&withUI, "ui", false, "Show the interactive terminal view")
	f.StringVar(&logFile, "log-file", "", "Write logs to this file while the terminal view is shown")
	f.Duration("poll-interval", defaults.PollInterval, "Light sensor polling interval")
	f.String("backlight-root", defaults.BacklightRoot, "sysfs directory holding backlight devices")
	f.String("backlight-device", "", "Backlight device name (default: first one found)")
	f.Bool("backlight", defaults.Backlight, "Write brightness to the sysfs backlight")
	f.Bool("studio-display", defaults.StudioDisplay, "Write brightness to Apple Studio Displays")
	f.Bool("dry-run", false, "Compute brightness without writing it")
	f.Bool("auto-brightness", defaults.AutoBrightness, "Enable automatic brightness at startup")
	f.Bool("auto-theme", defaults.AutoTheme, "Enable the time-based theme at startup")
	f.Int("dark-from", defaults.Schedule.DarkFrom, "Hour the dark theme starts")
	f.Int("light-from", defaults.Schedule.LightFrom, "Hour the light theme starts")
	return cmd
}

// redirectLogs keeps log output off the terminal view.
func redirectLogs(path string) (func(), error) {
	if path == "" {
		setupLogging(io.Discard, verbose || cfg.Verbose)
		return func() {}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	setupLogging(f, verbose || cfg.Verbose)
	return func() { _ = f.Close() }, nil
}

func runDaemon(parent context.Context, cfg config.Config, withUI bool) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().
		Bool("autoBrightness", cfg.AutoBrightness).
		Bool("autoTheme", cfg.AutoTheme).
		Bool("dryRun", cfg.DryRun).
		Msg("Starting lightnight-daemon")

	st := state.New(cfg.AutoBrightness, cfg.AutoTheme)

	source := sensor.NewIIOSource(
		sensor.WithRoot(cfg.IIORoot),
		sensor.WithSelector(sensor.FromConfig(cfg.SensorName, cfg.SensorType)),
		sensor.WithInterval(cfg.PollInterval),
	)
	defer func() {
		if err := source.Close(); err != nil {
			log.Error().Err(err).Msg("Failed to close sensor source")
		}
	}()
	if desc, ok := source.Rescan(); ok {
		log.Info().Str("sensor", desc.Name).Str("type", desc.Type).Str("path", desc.Path).Msg("Using light sensor")
	}

	var manager *hid.Manager
	if cfg.StudioDisplay && !cfg.DryRun {
		manager = hid.NewManager()
		if _, err := refreshDisplaysWithRetry(manager, 0); err != nil {
			log.Error().Err(err).Msg("Failed to enumerate displays")
		}
		if n := manager.Count(); n == 0 {
			log.Info().Msg("No Apple Studio Displays found")
		} else {
			log.Info().Int("count", n).Msg("Found Apple Studio Displays")
		}
		defer func() {
			if err := manager.Close(); err != nil {
				log.Error().Err(err).Msg("Failed to close display manager")
			}
		}()
	}

	sink := buildSinks(cfg, manager)

	var server *dbus.Server
	serviceGate := autobrightness.NewGate(st.AutoBrightness, sink,
		autobrightness.WithOnApplied(func(ev sensor.Event, level brightness.Level) {
			server.EmitBrightnessApplied(ev.Primary(), level)
		}),
	)

	opts := dbus.Options{
		AutoBrightness: st.AutoBrightness,
		AutoTheme:      st.AutoTheme,
		Sensor:         source,
		Readings:       serviceGate,
	}
	if manager != nil {
		opts.Displays = manager
	}
	server = dbus.NewServer(opts)
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start D-Bus server: %w", err)
	}
	defer func() {
		if err := server.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop D-Bus server")
		}
	}()

	if manager != nil {
		server.SetDeviceErrorHandler(func(serial string, err error) {
			createRecoveryHandler(source, manager, server)()
		})
	}

	service := autobrightness.NewHost("service", source, serviceGate)
	service.Start()
	defer service.Stop()

	go source.Run(ctx)

	scheduler := theme.NewScheduler(cfg.Schedule, st.AutoTheme, theme.NewGSettings())
	go scheduler.Run(ctx)

	monitor := udev.NewMonitor(createHotplugHandler(source, manager, server))
	monitor.SetRecoveryHandler(createRecoveryHandler(source, manager, server))
	if err := monitor.Start(); err != nil {
		log.Error().Err(err).Msg("Failed to start udev monitor (hot-plug detection disabled)")
	}
	defer func() {
		if err := monitor.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop udev monitor")
		}
	}()

	if withUI {
		foregroundGate := autobrightness.NewGate(st.AutoBrightness, sink)
		foreground := autobrightness.NewHost("foreground", source, foregroundGate)
		foreground.Start()
		defer foreground.Stop()

		err := ui.Run(ui.Deps{
			AutoBrightness: st.AutoBrightness,
			AutoTheme:      st.AutoTheme,
			Readings:       foregroundGate,
			Sensor:         source,
			Foreground:     foreground,
			Schedule:       cfg.Schedule,
		})
		log.Info().Msg("Shutting down...")
		return err
	}

	log.Info().Msg("Daemon running, press Ctrl+C to stop")
	<-ctx.Done()
	log.Info().Msg("Shutting down...")
	return nil
}

// buildSinks assembles the brightness outputs selected by cfg. manager may
// be nil when Studio Display support is off.
func buildSinks(cfg config.Config, manager *hid.Manager) display.Sink {
	if cfg.DryRun {
		log.Info().Msg("Dry run: brightness levels are computed but not written")
		return display.Discard{}
	}

	var sinks display.Multi
	if cfg.Backlight {
		bl, err := display.OpenBacklight(cfg.BacklightRoot, cfg.BacklightDevice)
		switch {
		case errors.Is(err, display.ErrNoBacklight):
			log.Info().Str("root", cfg.BacklightRoot).Msg("No backlight device found")
		case err != nil:
			log.Warn().Err(err).Msg("Failed to open backlight")
		default:
			if !bl.CanWrite() {
				log.Warn().
					Str("device", bl.Name()).
					Msg("No permission to write the backlight; add a udev rule or join the video group")
			}
			sinks = append(sinks, bl)
		}
	}
	if cfg.StudioDisplay && manager != nil {
		sinks = append(sinks, display.NewStudio(manager))
	}

	if len(sinks) == 0 {
		log.Warn().Msg("No brightness outputs available, levels will not be written")
		return display.Discard{}
	}
	for _, s := range sinks {
		log.Info().Str("sink", s.Name()).Msg("Brightness output enabled")
	}
	return sinks
}
