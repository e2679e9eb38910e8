// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/shini4i/lightnight-daemon/internal/brightness"
	"github.com/shini4i/lightnight-daemon/internal/dbus"
	"github.com/shini4i/lightnight-daemon/internal/sensor"
)

// callTimeout bounds every call made to a running daemon.
const callTimeout = 5 * time.Second

// controller is the subset of dbus.Client used by the control commands.
type controller interface {
	ToggleAutoBrightness(ctx context.Context) (bool, error)
	SetAutoBrightness(ctx context.Context, enabled bool) error
	SetAutoTheme(ctx context.Context, enabled bool) error
	Status(ctx context.Context) (dbus.Status, error)
	Close() error
}

// connect is replaced in tests.
var connect = func() (controller, error) {
	return dbus.Connect()
}

func withController(cmd *cobra.Command, fn func(ctx context.Context, c controller) error) error {
	c, err := connect()
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	ctx, cancel := context.WithTimeout(cmd.Context(), callTimeout)
	defer cancel()
	return fn(ctx, c)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func newToggleCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "toggle",
		Short: "Toggle automatic brightness on a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, func(ctx context.Context, c controller) error {
				enabled, err := c.ToggleAutoBrightness(ctx)
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "auto-brightness: %s\n", onOff(enabled))
				return err
			})
		},
	}
}

func newSetCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: fmt.Sprintf("%s automatic brightness on a running daemon", strings.ToUpper(use[:1])+use[1:]),
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, func(ctx context.Context, c controller) error {
				if err := c.SetAutoBrightness(ctx, enabled); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "auto-brightness: %s\n", onOff(enabled))
				return err
			})
		},
	}
}

func newThemeCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "theme on|off",
		Short:     "Switch the time-based theme on a running daemon",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			enabled := args[0] == "on"
			return withController(cmd, func(ctx context.Context, c controller) error {
				if err := c.SetAutoTheme(ctx, enabled); err != nil {
					return err
				}
				_, err := fmt.Fprintf(cmd.OutOrStdout(), "auto-theme: %s\n", onOff(enabled))
				return err
			})
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running daemon",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(cmd, func(ctx context.Context, c controller) error {
				st, err := c.Status(ctx)
				if err != nil {
					return err
				}
				return printStatus(cmd.OutOrStdout(), st)
			})
		},
	}
}

func printStatus(w io.Writer, st dbus.Status) error {
	sensorLine := "not found"
	if st.SensorFound {
		sensorLine = fmt.Sprintf("%s (%s)", st.SensorName, st.SensorType)
	}

	values := "not found"
	if len(st.Values) > 0 {
		parts := make([]string, len(st.Values))
		for i, v := range st.Values {
			parts[i] = fmt.Sprintf("%.2f", v)
		}
		values = strings.Join(parts, ", ")
	}

	level := "-"
	if st.Level > 0 {
		level = fmt.Sprintf("%d / %d", st.Level, brightness.MaxLevel)
	}

	_, err := fmt.Fprintf(w,
		"auto-brightness: %s\nauto-theme:      %s\nsensor:          %s\nreading:         %s\nbrightness:      %s\n",
		onOff(st.AutoBrightness), onOff(st.AutoTheme), sensorLine, values, level)
	return err
}

func newSensorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sensors",
		Short: "List light sensors and mark the one that would be used",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			source := sensor.NewIIOSource(sensor.WithRoot(cfg.IIORoot))
			defer func() { _ = source.Close() }()

			descs, err := source.List()
			if err != nil {
				return err
			}
			return printSensors(cmd.OutOrStdout(), descs, sensor.FromConfig(cfg.SensorName, cfg.SensorType))
		},
	}
}

func printSensors(w io.Writer, descs []sensor.Descriptor, sel sensor.Selector) error {
	if len(descs) == 0 {
		_, err := fmt.Fprintln(w, "no light sensors found")
		return err
	}

	selected, ok := sensor.Select(descs, sel)
	for _, d := range descs {
		mark := " "
		if ok && d.Path == selected.Path {
			mark = "*"
		}
		if _, err := fmt.Fprintf(w, "%s %s\t%s\t%s\t%s\n", mark, d.Name, d.Type, d.Path, strings.Join(d.Channels, ",")); err != nil {
			return err
		}
	}
	return nil
}
