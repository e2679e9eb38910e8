// SPDX-License-Identifier: GPL-3.0-only

// Package brightness maps ambient-light readings to screen brightness levels
// and converts levels to the native ranges of the supported outputs.
package brightness

import "math"

const (
	// MinReading is the lowest sensor reading taken into account.
	MinReading = 0.0

	// MaxReading is the sensor reading at which brightness saturates.
	MaxReading = 100.0

	// MinLevel is the brightness level produced for a dark room.
	MinLevel Level = 15

	// MaxLevel is the brightness level produced at full ambient light.
	MaxLevel Level = 255

	// levelScale is the historical 8-bit brightness range of the output.
	levelScale = 255
)

// Level is a screen brightness value in the range [MinLevel, MaxLevel].
type Level int

// Compute maps a raw ambient-light reading to a brightness level.
// The reading is clamped to [MinReading, MaxReading], rescaled linearly to
// [MinLevel, MaxLevel] and truncated. NaN maps to MinLevel.
func Compute(reading float64) Level {
	clamped := ClampReading(reading)
	out := clamped/MaxReading*float64(MaxLevel-MinLevel) + float64(MinLevel)
	return Level(out)
}

// ClampReading limits a reading to [MinReading, MaxReading].
func ClampReading(reading float64) float64 {
	if math.IsNaN(reading) || reading < MinReading {
		return MinReading
	}
	if reading > MaxReading {
		return MaxReading
	}
	return reading
}

// Clamp ensures the level is within [MinLevel, MaxLevel].
func (l Level) Clamp() Level {
	if l < MinLevel {
		return MinLevel
	}
	if l > MaxLevel {
		return MaxLevel
	}
	return l
}

// Scale converts the level to a device-native range [0, deviceMax], where
// deviceMax corresponds to a level of 255. Results are truncated like Compute.
func (l Level) Scale(deviceMax int) int {
	if deviceMax <= 0 {
		return 0
	}
	return int(l.Clamp()) * deviceMax / levelScale
}

// Percent converts the level to a 0-100 percentage of the 8-bit range.
func (l Level) Percent() uint8 {
	// #nosec G115 -- Scale(100) is within 0-100
	return uint8(l.Scale(100))
}
