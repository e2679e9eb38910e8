// SPDX-License-Identifier: GPL-3.0-only

// Package theme switches between a light and a dark desktop color scheme
// by time of day.
package theme

import (
	"fmt"
	"time"
)

// Mode is a color scheme.
type Mode int

const (
	// Light is the daytime color scheme.
	Light Mode = iota
	// Dark is the night color scheme.
	Dark
)

// String returns "light" or "dark".
func (m Mode) String() string {
	if m == Dark {
		return "dark"
	}
	return "light"
}

const (
	// DefaultDarkFrom is the hour at which the dark scheme starts.
	DefaultDarkFrom = 17

	// DefaultLightFrom is the hour at which the light scheme starts.
	DefaultLightFrom = 6
)

// Schedule defines the dark period as [DarkFrom, LightFrom) in local hours,
// wrapping around midnight.
type Schedule struct {
	DarkFrom  int
	LightFrom int
}

// DefaultSchedule is dark from 17:00 until 05:59.
func DefaultSchedule() Schedule {
	return Schedule{DarkFrom: DefaultDarkFrom, LightFrom: DefaultLightFrom}
}

// Validate checks that both hours are within 0-23.
func (s Schedule) Validate() error {
	if s.DarkFrom < 0 || s.DarkFrom > 23 {
		return fmt.Errorf("dark-from hour %d out of range 0-23", s.DarkFrom)
	}
	if s.LightFrom < 0 || s.LightFrom > 23 {
		return fmt.Errorf("light-from hour %d out of range 0-23", s.LightFrom)
	}
	return nil
}

// IsDark reports whether t falls in the dark period.
func (s Schedule) IsDark(t time.Time) bool {
	hour := t.Hour()
	if s.DarkFrom == s.LightFrom {
		return false
	}
	if s.DarkFrom > s.LightFrom {
		return hour >= s.DarkFrom || hour < s.LightFrom
	}
	return hour >= s.DarkFrom && hour < s.LightFrom
}

// ModeAt returns the scheduled mode at t.
func (s Schedule) ModeAt(t time.Time) Mode {
	if s.IsDark(t) {
		return Dark
	}
	return Light
}

// Resolve picks the scheme to use: the schedule when auto is enabled,
// the system preference otherwise.
func (s Schedule) Resolve(auto bool, now time.Time, systemDark bool) Mode {
	if auto {
		return s.ModeAt(now)
	}
	if systemDark {
		return Dark
	}
	return Light
}
