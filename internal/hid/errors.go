// SPDX-License-Identifier: GPL-3.0-only

package hid

import (
	"errors"
	"strings"
	"syscall"
)

// ErrDisplayClosed is returned when an operation is attempted on a closed display.
var ErrDisplayClosed = errors.New("display is closed")

// ErrNoDisplays is returned by SetAllBrightness when no display is connected.
var ErrNoDisplays = errors.New("no Apple Studio Display connected")

// IsDeviceGoneError reports whether err indicates that the display was unplugged
// or its handle became unusable, so that the caller should re-enumerate.
func IsDeviceGoneError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDisplayClosed) || errors.Is(err, syscall.ENODEV) || errors.Is(err, syscall.EIO) {
		return true
	}
	// hidapi reports errors as plain strings.
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "no such device") || strings.Contains(msg, "input/output error")
}
