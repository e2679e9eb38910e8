// SPDX-License-Identifier: GPL-3.0-only

package sensor

import "errors"

var (
	// ErrNoSensor is returned when no sensor matches the selection strategy.
	ErrNoSensor = errors.New("no matching light sensor found")

	// ErrInvalidChannel is returned when a channel file does not hold a number.
	ErrInvalidChannel = errors.New("invalid channel value")
)
