// SPDX-License-Identifier: GPL-3.0-only

package display

import (
	"github.com/shini4i/lightnight-daemon/internal/brightness"
)

// DisplayGroup sets every display of a group at once.
type DisplayGroup interface {
	SetAllBrightness(percent uint8) error
}

// Studio drives connected Apple Studio Displays.
type Studio struct {
	group DisplayGroup
}

// NewStudio creates a sink writing to every display of group.
func NewStudio(group DisplayGroup) *Studio {
	return &Studio{group: group}
}

// SetBrightness converts level to a percentage and applies it to all displays.
func (s *Studio) SetBrightness(level brightness.Level) error {
	return s.group.SetAllBrightness(level.Percent())
}

// Name returns "studio-display".
func (s *Studio) Name() string {
	return "studio-display"
}
