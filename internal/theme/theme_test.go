// SPDX-License-Identifier: GPL-3.0-only

package theme_test

import (
	"testing"
	"time"

	"github.com/shini4i/lightnight-daemon/internal/theme"
	"github.com/stretchr/testify/assert"
)

func at(hour, minute int) time.Time {
	return time.Date(2026, time.October, 14, hour, minute, 0, 0, time.Local)
}

func TestSchedule_IsDark(t *testing.T) {
	s := theme.DefaultSchedule()

	tests := []struct {
		name     string
		time     time.Time
		expected bool
	}{
		{name: "midnight is dark", time: at(0, 0), expected: true},
		{name: "05:59 is dark", time: at(5, 59), expected: true},
		{name: "06:00 is light", time: at(6, 0), expected: false},
		{name: "noon is light", time: at(12, 0), expected: false},
		{name: "16:59 is light", time: at(16, 59), expected: false},
		{name: "17:00 is dark", time: at(17, 0), expected: true},
		{name: "23:30 is dark", time: at(23, 30), expected: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, s.IsDark(tt.time))
		})
	}
}

func TestSchedule_IsDark_NonWrapping(t *testing.T) {
	// Night-shift setup: dark from 08:00 to 16:00.
	s := theme.Schedule{DarkFrom: 8, LightFrom: 16}
	assert.False(t, s.IsDark(at(7, 0)))
	assert.True(t, s.IsDark(at(8, 0)))
	assert.True(t, s.IsDark(at(15, 59)))
	assert.False(t, s.IsDark(at(16, 0)))
}

func TestSchedule_IsDark_EmptyPeriod(t *testing.T) {
	s := theme.Schedule{DarkFrom: 6, LightFrom: 6}
	for h := 0; h < 24; h++ {
		assert.False(t, s.IsDark(at(h, 0)))
	}
}

func TestSchedule_Validate(t *testing.T) {
	assert.NoError(t, theme.DefaultSchedule().Validate())
	assert.Error(t, theme.Schedule{DarkFrom: 24, LightFrom: 6}.Validate())
	assert.Error(t, theme.Schedule{DarkFrom: 17, LightFrom: -1}.Validate())
}

func TestSchedule_Resolve(t *testing.T) {
	s := theme.DefaultSchedule()

	assert.Equal(t, theme.Dark, s.Resolve(true, at(20, 0), false), "auto follows the clock")
	assert.Equal(t, theme.Light, s.Resolve(true, at(10, 0), true), "auto ignores system preference")
	assert.Equal(t, theme.Dark, s.Resolve(false, at(10, 0), true), "manual follows system preference")
	assert.Equal(t, theme.Light, s.Resolve(false, at(20, 0), false))
}

func TestMode_String(t *testing.T) {
	assert.Equal(t, "light", theme.Light.String())
	assert.Equal(t, "dark", theme.Dark.String())
}
