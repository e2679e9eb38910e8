// SPDX-License-Identifier: GPL-3.0-only

package display

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/shini4i/lightnight-daemon/internal/brightness"
)

// DefaultBacklightRoot is where the kernel exposes backlight devices.
const DefaultBacklightRoot = "/sys/class/backlight"

// ErrNoBacklight is returned when no backlight device exists.
var ErrNoBacklight = errors.New("no backlight device found")

// Backlight writes to a sysfs backlight device, scaling levels to its
// max_brightness.
type Backlight struct {
	dir string
	max int
}

// OpenBacklight opens the named backlight device under root. An empty name
// picks the first device in lexical order.
func OpenBacklight(root, name string) (*Backlight, error) {
	if name == "" {
		entries, err := os.ReadDir(root)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to list backlight devices: %w", err)
		}
		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name())
		}
		if len(names) == 0 {
			return nil, ErrNoBacklight
		}
		sort.Strings(names)
		name = names[0]
	}

	dir := filepath.Join(root, name)
	data, err := os.ReadFile(filepath.Join(dir, "max_brightness"))
	if err != nil {
		return nil, fmt.Errorf("failed to read max_brightness of %s: %w", name, err)
	}
	maxBrightness, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || maxBrightness <= 0 {
		return nil, fmt.Errorf("invalid max_brightness of %s: %q", name, strings.TrimSpace(string(data)))
	}

	return &Backlight{dir: dir, max: maxBrightness}, nil
}

// SetBrightness writes level scaled to the device range.
func (b *Backlight) SetBrightness(level brightness.Level) error {
	value := strconv.Itoa(level.Scale(b.max))
	if err := os.WriteFile(filepath.Join(b.dir, "brightness"), []byte(value), 0o644); err != nil {
		return fmt.Errorf("failed to write brightness: %w", err)
	}
	return nil
}

// CanWrite reports whether the brightness attribute is writable by this
// process. Without it every write fails with a permission error.
func (b *Backlight) CanWrite() bool {
	f, err := os.OpenFile(filepath.Join(b.dir, "brightness"), os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	_ = f.Close()
	return true
}

// MaxBrightness returns the native maximum of the device.
func (b *Backlight) MaxBrightness() int {
	return b.max
}

// Name returns the backlight device name.
func (b *Backlight) Name() string {
	return "backlight:" + filepath.Base(b.dir)
}
