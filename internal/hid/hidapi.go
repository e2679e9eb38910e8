// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"fmt"

	karalabehid "github.com/karalabe/hid"
)

// HIDAPIDevice wraps a karalabe/hid device to implement the Device interface.
type HIDAPIDevice struct {
	device karalabehid.Device
	info   DeviceInfo
}

var _ Device = (*HIDAPIDevice)(nil)

// NewHIDAPIDevice creates a new HIDAPIDevice from an open hid.Device.
func NewHIDAPIDevice(device karalabehid.Device, info DeviceInfo) *HIDAPIDevice {
	return &HIDAPIDevice{device: device, info: info}
}

// GetFeatureReport reads a feature report from the device.
func (d *HIDAPIDevice) GetFeatureReport(data []byte) (int, error) {
	return d.device.GetFeatureReport(data)
}

// SendFeatureReport writes a feature report to the device.
func (d *HIDAPIDevice) SendFeatureReport(data []byte) (int, error) {
	return d.device.SendFeatureReport(data)
}

// Close closes the device handle.
func (d *HIDAPIDevice) Close() error {
	return d.device.Close()
}

// Info returns information about the device.
func (d *HIDAPIDevice) Info() DeviceInfo {
	return d.info
}

func toDeviceInfo(d karalabehid.DeviceInfo) DeviceInfo {
	return DeviceInfo{
		Path:         d.Path,
		VendorID:     d.VendorID,
		ProductID:    d.ProductID,
		Serial:       d.Serial,
		Manufacturer: d.Manufacturer,
		Product:      d.Product,
		Interface:    d.Interface,
	}
}

// EnumerateDisplays returns the brightness interfaces of all connected
// Apple Studio Displays.
func EnumerateDisplays() ([]DeviceInfo, error) {
	devices, err := karalabehid.Enumerate(AppleVendorID, StudioDisplayProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate HID devices: %w", err)
	}

	var displays []DeviceInfo
	for _, device := range devices {
		if device.Interface == BrightnessInterface {
			displays = append(displays, toDeviceInfo(device))
		}
	}
	return displays, nil
}

// OpenDisplay opens an Apple Studio Display by serial number.
// An empty serial opens the first display found.
func OpenDisplay(serial string) (*HIDAPIDevice, error) {
	devices, err := karalabehid.Enumerate(AppleVendorID, StudioDisplayProductID)
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	for _, info := range devices {
		if info.Interface != BrightnessInterface {
			continue
		}
		if serial != "" && info.Serial != serial {
			continue
		}

		device, err := info.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open display %s: %w", info.Serial, err)
		}
		return NewHIDAPIDevice(device, toDeviceInfo(info)), nil
	}

	if serial != "" {
		return nil, fmt.Errorf("display with serial %s not found", serial)
	}
	return nil, ErrNoDisplays
}
