// SPDX-License-Identifier: GPL-3.0-only

package brightness

import "math"

const (
	// MinNits is the minimum brightness in nits accepted by the Apple Studio Display.
	MinNits uint32 = 400

	// MaxNits is the maximum brightness in nits accepted by the Apple Studio Display.
	MaxNits uint32 = 60000

	// NitsRange is the difference between maximum and minimum brightness.
	NitsRange uint32 = MaxNits - MinNits
)

// NitsToPercent converts a brightness in nits to a percentage (0-100).
// Out-of-range values are clamped first; the result is rounded so that it
// round-trips with PercentToNits.
func NitsToPercent(nits uint32) uint8 {
	nits = ClampNits(nits)
	percent := float64(nits-MinNits) / float64(NitsRange) * 100
	return uint8(math.Round(percent))
}

// PercentToNits converts a percentage (0-100) to a brightness in nits.
// Percentages above 100 are treated as 100%.
func PercentToNits(percent uint8) uint32 {
	if percent > 100 {
		percent = 100
	}
	nits := uint32(float64(percent)*float64(NitsRange)/100) + MinNits
	return ClampNits(nits)
}

// ClampNits ensures the value is within [MinNits, MaxNits].
func ClampNits(nits uint32) uint32 {
	if nits < MinNits {
		return MinNits
	}
	if nits > MaxNits {
		return MaxNits
	}
	return nits
}
