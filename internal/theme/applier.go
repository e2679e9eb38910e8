// SPDX-License-Identifier: GPL-3.0-only

package theme

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Applier switches the desktop to a color scheme.
type Applier interface {
	Apply(ctx context.Context, mode Mode) error
}

// Runner executes an external command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// GSettings applies the scheme through the GNOME interface settings.
type GSettings struct {
	run Runner
}

// NewGSettings creates an applier using the gsettings tool.
func NewGSettings() *GSettings {
	return &GSettings{run: execRunner}
}

// NewGSettingsWithRunner creates an applier with a custom command runner.
func NewGSettingsWithRunner(run Runner) *GSettings {
	return &GSettings{run: run}
}

// Apply sets org.gnome.desktop.interface color-scheme.
func (g *GSettings) Apply(ctx context.Context, mode Mode) error {
	scheme := "prefer-light"
	if mode == Dark {
		scheme = "prefer-dark"
	}
	out, err := g.run(ctx, "gsettings", "set", "org.gnome.desktop.interface", "color-scheme", scheme)
	if err != nil {
		return fmt.Errorf("failed to set color-scheme %s: %w: %s", scheme, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}
