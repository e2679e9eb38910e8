// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/shini4i/lightnight-daemon/internal/brightness"
)

const (
	// ReportID is the HID report ID for brightness control.
	ReportID byte = 0x01

	// ReportSize is the size of the HID feature report in bytes.
	ReportSize = 7

	// AppleVendorID is the USB vendor ID for Apple.
	AppleVendorID uint16 = 0x05ac

	// StudioDisplayProductID is the USB product ID for Apple Studio Display.
	StudioDisplayProductID uint16 = 0x1114

	// BrightnessInterface is the USB interface number for brightness control.
	BrightnessInterface = 0x07
)

// Display is an Apple Studio Display. All methods are safe for concurrent use.
type Display struct {
	device Device
	mu     sync.Mutex
	closed bool
}

// NewDisplay wraps the given HID device.
func NewDisplay(device Device) *Display {
	return &Display{device: device}
}

// GetBrightness reads the current brightness as a percentage (0-100).
func (d *Display) GetBrightness() (uint8, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return 0, ErrDisplayClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID

	if _, err := d.device.GetFeatureReport(data); err != nil {
		return 0, fmt.Errorf("failed to get feature report: %w", err)
	}

	nits := binary.LittleEndian.Uint32(data[1:5])
	return brightness.NitsToPercent(nits), nil
}

// SetBrightness sets the brightness to a percentage (0-100).
func (d *Display) SetBrightness(percent uint8) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDisplayClosed
	}

	data := make([]byte, ReportSize)
	data[0] = ReportID
	binary.LittleEndian.PutUint32(data[1:5], brightness.PercentToNits(percent))

	if _, err := d.device.SendFeatureReport(data); err != nil {
		return fmt.Errorf("failed to send feature report: %w", err)
	}
	return nil
}

// Serial returns the serial number of the display.
func (d *Display) Serial() string {
	return d.device.Info().Serial
}

// ProductName returns the product name of the display.
func (d *Display) ProductName() string {
	return d.device.Info().Product
}

// Close closes the underlying HID device. Closing twice is a no-op.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.device.Close()
}
