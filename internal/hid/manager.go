// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
)

// Manager tracks the connected Apple Studio Displays.
type Manager struct {
	displays   map[string]*Display // serial -> display
	mu         sync.RWMutex
	enumerator func() ([]DeviceInfo, error)
	opener     func(serial string) (Device, error)
}

// ManagerOption is a functional option for configuring a Manager.
type ManagerOption func(*Manager)

// WithEnumerator sets a custom device enumerator for testing.
func WithEnumerator(fn func() ([]DeviceInfo, error)) ManagerOption {
	return func(m *Manager) {
		m.enumerator = fn
	}
}

// WithOpener sets a custom device opener for testing.
func WithOpener(fn func(serial string) (Device, error)) ManagerOption {
	return func(m *Manager) {
		m.opener = fn
	}
}

// NewManager creates a new display manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		displays:   make(map[string]*Display),
		enumerator: EnumerateDisplays,
		opener:     func(serial string) (Device, error) { return OpenDisplay(serial) },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// ListDisplays returns information about all connected displays.
func (m *Manager) ListDisplays() []DeviceInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]DeviceInfo, 0, len(m.displays))
	for _, d := range m.displays {
		infos = append(infos, d.device.Info())
	}
	return infos
}

// GetDisplay returns a display by serial number.
func (m *Manager) GetDisplay(serial string) (*Display, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	display, ok := m.displays[serial]
	if !ok {
		return nil, fmt.Errorf("display with serial %s not found", serial)
	}
	return display, nil
}

// RefreshDisplays re-enumerates connected displays, opening new ones and
// closing those that disappeared.
func (m *Manager) RefreshDisplays() error {
	current, err := m.enumerator()
	if err != nil {
		return fmt.Errorf("failed to enumerate displays: %w", err)
	}

	present := make(map[string]DeviceInfo, len(current))
	for _, info := range current {
		present[info.Serial] = info
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for serial, display := range m.displays {
		if _, ok := present[serial]; ok {
			continue
		}
		log.Info().Str("serial", serial).Msg("Display disconnected")
		if err := display.Close(); err != nil {
			log.Warn().Err(err).Str("serial", serial).Msg("Failed to close disconnected display")
		}
		delete(m.displays, serial)
	}

	for serial, info := range present {
		if _, ok := m.displays[serial]; ok {
			continue
		}
		device, err := m.opener(serial)
		if err != nil {
			log.Error().Err(err).Str("serial", serial).Msg("Failed to open display")
			continue
		}
		m.displays[serial] = NewDisplay(device)
		log.Info().Str("serial", serial).Str("product", info.Product).Msg("Display connected")
	}

	return nil
}

// SetAllBrightness sets every connected display to percent (0-100).
// Failures on individual displays are joined; gone displays are dropped so
// the next refresh can reopen them.
func (m *Manager) SetAllBrightness(percent uint8) error {
	m.mu.RLock()
	displays := make(map[string]*Display, len(m.displays))
	for serial, d := range m.displays {
		displays[serial] = d
	}
	m.mu.RUnlock()

	if len(displays) == 0 {
		return ErrNoDisplays
	}

	var errs []error
	for serial, d := range displays {
		if err := d.SetBrightness(percent); err != nil {
			errs = append(errs, fmt.Errorf("display %s: %w", serial, err))
			if IsDeviceGoneError(err) {
				m.drop(serial, d)
			}
		}
	}
	return errors.Join(errs...)
}

// drop forgets a display whose handle stopped working.
func (m *Manager) drop(serial string, d *Display) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.displays[serial] != d {
		return
	}
	if err := d.Close(); err != nil {
		log.Debug().Err(err).Str("serial", serial).Msg("Failed to close gone display")
	}
	delete(m.displays, serial)
	log.Warn().Str("serial", serial).Msg("Display stopped responding")
}

// Close closes all open displays.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for serial, display := range m.displays {
		if err := display.Close(); err != nil {
			log.Error().Err(err).Str("serial", serial).Msg("Failed to close display")
		}
		delete(m.displays, serial)
	}
	return nil
}

// Count returns the number of connected displays.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.displays)
}
