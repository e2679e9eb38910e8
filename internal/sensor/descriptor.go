// SPDX-License-Identifier: GPL-3.0-only

// Package sensor discovers ambient-light sensors and delivers their readings
// to independently scheduled listeners.
package sensor

import "strings"

const (
	// TypeIlluminance identifies sensors exposing calibrated illuminance channels.
	TypeIlluminance = "illuminance"

	// TypeIntensity identifies sensors exposing only raw light intensity channels.
	TypeIntensity = "intensity"
)

// Descriptor describes an available light sensor.
type Descriptor struct {
	// Name is the driver-assigned sensor name (e.g. "acpi-als").
	Name string
	// Type is the sensor family, TypeIlluminance or TypeIntensity.
	Type string
	// Path is the sysfs directory of the sensor.
	Path string
	// Channels lists the channel names in reading order.
	Channels []string
}

// Selector decides whether a sensor should be used as the reading source.
type Selector func(Descriptor) bool

// ByName matches sensors whose name equals name.
func ByName(name string) Selector {
	return func(d Descriptor) bool {
		return d.Name == name
	}
}

// ByType matches sensors of the given type (case-insensitive).
func ByType(typ string) Selector {
	return func(d Descriptor) bool {
		return strings.EqualFold(d.Type, typ)
	}
}

// HasIlluminance matches any sensor with at least one light channel.
func HasIlluminance() Selector {
	return func(d Descriptor) bool {
		return len(d.Channels) > 0
	}
}

// AnyOf matches when at least one selector matches.
func AnyOf(selectors ...Selector) Selector {
	return func(d Descriptor) bool {
		for _, s := range selectors {
			if s(d) {
				return true
			}
		}
		return false
	}
}

// AllOf matches when every selector matches.
func AllOf(selectors ...Selector) Selector {
	return func(d Descriptor) bool {
		for _, s := range selectors {
			if !s(d) {
				return false
			}
		}
		return true
	}
}

// FromConfig builds the selection strategy from configured identifiers.
// A sensor is chosen when its name or its type matches; with neither set,
// the first sensor with a light channel is used.
func FromConfig(name, typ string) Selector {
	var selectors []Selector
	if name != "" {
		selectors = append(selectors, ByName(name))
	}
	if typ != "" {
		selectors = append(selectors, ByType(typ))
	}
	if len(selectors) == 0 {
		return HasIlluminance()
	}
	return AllOf(HasIlluminance(), AnyOf(selectors...))
}

// Select returns the first descriptor accepted by sel.
func Select(descriptors []Descriptor, sel Selector) (Descriptor, bool) {
	for _, d := range descriptors {
		if sel(d) {
			return d, true
		}
	}
	return Descriptor{}, false
}
