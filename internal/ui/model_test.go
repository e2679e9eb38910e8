// SPDX-License-Identifier: GPL-3.0-only

package ui

import (
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shini4i/lightnight-daemon/internal/brightness"
	"github.com/shini4i/lightnight-daemon/internal/sensor"
	"github.com/shini4i/lightnight-daemon/internal/state"
	"github.com/shini4i/lightnight-daemon/internal/theme"
)

type fakeReadings struct {
	ev       sensor.Event
	hasEv    bool
	level    brightness.Level
	hasLevel bool
}

func (f *fakeReadings) Last() (sensor.Event, bool) { return f.ev, f.hasEv }
func (f *fakeReadings) LastLevel() (brightness.Level, bool) { return f.level, f.hasLevel }

type fakeSensor struct {
	desc sensor.Descriptor
	ok   bool
}

func (f fakeSensor) Selected() (sensor.Descriptor, bool) { return f.desc, f.ok }

type fakeLifecycle struct {
	starts int
	stops  int
}

func (f *fakeLifecycle) Start() { f.starts++ }
func (f *fakeLifecycle) Stop() { f.stops++ }

func noon() time.Time {
	return time.Date(2024, 6, 1, 12, 0, 0, 0, time.Local)
}

func newDeps() (Deps, *state.State, *fakeReadings, *fakeLifecycle) {
	st := state.New(false, false)
	readings := &fakeReadings{}
	fg := &fakeLifecycle{}
	return Deps{
		AutoBrightness: st.AutoBrightness,
		AutoTheme:      st.AutoTheme,
		Readings:       readings,
		Sensor:         fakeSensor{},
		Foreground:     fg,
		Schedule:       theme.DefaultSchedule(),
		Now:            noon,
	}, st, readings, fg
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func update(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(Model)
	require.True(t, ok)
	return nm, cmd
}

func TestView_Initial(t *testing.T) {
	deps, _, _, _ := newDeps()
	view := New(deps).View()

	assert.Contains(t, view, Title)
	assert.Contains(t, view, "Auto brightness")
	assert.Contains(t, view, "[ OFF ]")
	assert.Contains(t, view, "Sensor 1")
	assert.Contains(t, view, "Sensor 2")
	assert.Contains(t, view, NotFound)
	assert.Contains(t, view, "Following the system theme")
}

func TestUpdate_ToggleAutoBrightness(t *testing.T) {
	for _, k := range []string{" ", "b"} {
		t.Run(k, func(t *testing.T) {
			deps, st, _, _ := newDeps()
			m := New(deps)

			m, _ = update(t, m, key(k))
			assert.True(t, st.AutoBrightness.Enabled())
			assert.True(t, m.autoBrightness)
			assert.Contains(t, m.View(), "[ ON ]")

			m, _ = update(t, m, key(k))
			assert.False(t, st.AutoBrightness.Enabled())
			assert.False(t, st.AutoTheme.Enabled())
		})
	}
}

func TestUpdate_ToggleAutoTheme(t *testing.T) {
	deps, st, _, _ := newDeps()
	m := New(deps)

	m, _ = update(t, m, key("t"))
	assert.True(t, st.AutoTheme.Enabled())
	assert.False(t, st.AutoBrightness.Enabled())
	assert.Contains(t, m.View(), "Light 06:00 - 17:00 | Dark 17:00 - 06:00")
}

func TestUpdate_Quit(t *testing.T) {
	deps, _, _, _ := newDeps()
	_, cmd := update(t, New(deps), key("q"))
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestUpdate_FocusPausesForeground(t *testing.T) {
	deps, _, _, fg := newDeps()
	m := New(deps)

	m, _ = update(t, m, tea.BlurMsg{})
	assert.Equal(t, 1, fg.stops)
	assert.Contains(t, m.View(), "paused")

	m, _ = update(t, m, tea.BlurMsg{})
	assert.Equal(t, 1, fg.stops, "repeated blur must not stop twice")

	m, _ = update(t, m, tea.FocusMsg{})
	assert.Equal(t, 1, fg.starts)
	assert.NotContains(t, m.View(), "paused")

	_, _ = update(t, m, tea.FocusMsg{})
	assert.Equal(t, 1, fg.starts, "repeated focus must not start twice")
}

func TestUpdate_TickRefreshesReadings(t *testing.T) {
	deps, st, readings, _ := newDeps()
	deps.Sensor = fakeSensor{desc: sensor.Descriptor{Name: "als", Type: sensor.TypeIlluminance}, ok: true}
	m := New(deps)

	readings.ev = sensor.Event{Values: []float64{50}}
	readings.hasEv = true
	readings.level = brightness.Compute(50)
	readings.hasLevel = true
	st.AutoBrightness.Set(true)

	m, cmd := update(t, m, tickMsg(noon()))
	assert.NotNil(t, cmd)

	view := m.View()
	assert.Contains(t, view, "als (illuminance)")
	assert.Contains(t, view, "50.00")
	assert.Contains(t, view, NotFound, "second value is missing")
	assert.Contains(t, view, "135 / 255")
	assert.Contains(t, view, "[ ON ]")
}

func TestMode(t *testing.T) {
	deps, st, _, _ := newDeps()
	deps.Now = func() time.Time { return time.Date(2024, 6, 1, 22, 0, 0, 0, time.Local) }

	deps.SystemDark = false
	assert.Equal(t, theme.Light, New(deps).Mode(), "follows the system while auto-theme is off")

	st.AutoTheme.Set(true)
	assert.Equal(t, theme.Dark, New(deps).Mode(), "22:00 is dark")
}

func TestPaletteFor(t *testing.T) {
	assert.Equal(t, darkPalette, paletteFor(theme.Dark))
	assert.Equal(t, lightPalette, paletteFor(theme.Light))
}
