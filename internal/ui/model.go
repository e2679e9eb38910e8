// SPDX-License-Identifier: GPL-3.0-only

// Package ui implements the interactive terminal front end of the daemon.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/shini4i/lightnight-daemon/internal/brightness"
	"github.com/shini4i/lightnight-daemon/internal/sensor"
	"github.com/shini4i/lightnight-daemon/internal/theme"
)

const (
	// Title is shown in the title bar.
	Title = "Light & Night"

	// NotFound is shown in place of sensor values before any reading.
	NotFound = "not found"

	refreshInterval = 250 * time.Millisecond
)

// Flag is a shared on/off switch.
type Flag interface {
	Enabled() bool
	Toggle() bool
}

// Readings reports the last reading and the last applied level.
type Readings interface {
	Last() (sensor.Event, bool)
	LastLevel() (brightness.Level, bool)
}

// SensorInfo reports the selected light sensor.
type SensorInfo interface {
	Selected() (sensor.Descriptor, bool)
}

// Lifecycle is started while the UI has focus and stopped while it does not.
type Lifecycle interface {
	Start()
	Stop()
}

// Deps groups the collaborators of the model.
type Deps struct {
	AutoBrightness Flag
	AutoTheme      Flag
	Readings       Readings
	Sensor         SensorInfo
	Foreground     Lifecycle
	Schedule       theme.Schedule
	SystemDark     bool
	Now            func() time.Time
}

type tickMsg time.Time

// Model is the Bubble Tea model of the UI.
type Model struct {
	deps Deps

	autoBrightness bool
	autoTheme      bool
	sensor         sensor.Descriptor
	sensorFound    bool
	event          sensor.Event
	hasEvent       bool
	level          brightness.Level
	hasLevel       bool
	focused        bool
	now            time.Time
	width          int
}

// New creates the model. The foreground lifecycle is expected to be started
// by the caller; the model only pauses and resumes it on focus changes.
func New(deps Deps) Model {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	m := Model{deps: deps, focused: true}
	return m.refresh(deps.Now())
}

func tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the refresh ticker.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles key presses, focus changes and refresh ticks.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case " ", "space", "b":
			m.autoBrightness = m.deps.AutoBrightness.Toggle()
		case "t":
			m.autoTheme = m.deps.AutoTheme.Toggle()
		}

	case tea.FocusMsg:
		if !m.focused && m.deps.Foreground != nil {
			m.deps.Foreground.Start()
		}
		m.focused = true

	case tea.BlurMsg:
		if m.focused && m.deps.Foreground != nil {
			m.deps.Foreground.Stop()
		}
		m.focused = false

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		return m.refresh(time.Time(msg)), tickCmd()
	}

	return m, nil
}

// refresh pulls the current state from the collaborators.
func (m Model) refresh(now time.Time) Model {
	m.now = now
	m.autoBrightness = m.deps.AutoBrightness.Enabled()
	m.autoTheme = m.deps.AutoTheme.Enabled()
	if m.deps.Sensor != nil {
		m.sensor, m.sensorFound = m.deps.Sensor.Selected()
	}
	if m.deps.Readings != nil {
		m.event, m.hasEvent = m.deps.Readings.Last()
		m.level, m.hasLevel = m.deps.Readings.LastLevel()
	}
	return m
}

// Mode returns the palette mode the view is rendered with.
func (m Model) Mode() theme.Mode {
	return m.deps.Schedule.Resolve(m.autoTheme, m.now, m.deps.SystemDark)
}

// View renders the model.
func (m Model) View() string {
	p := paletteFor(m.Mode())

	var b strings.Builder
	b.WriteString(p.title.Render(" " + Title + " "))
	b.WriteString("\n\n")

	b.WriteString(m.row(p, "Auto brightness", p.switchState(m.autoBrightness)))
	b.WriteString(m.row(p, "Auto theme", p.switchState(m.autoTheme)))
	b.WriteString(p.dim.Render("  " + m.themeHint()))
	b.WriteString("\n\n")

	b.WriteString(m.row(p, "Sensor", m.sensorLabel()))
	for i, v := range m.sensorValues() {
		b.WriteString(m.row(p, fmt.Sprintf("Sensor %d", i+1), v))
	}
	b.WriteString(m.row(p, "Brightness", m.levelLabel()))
	b.WriteString("\n")

	footer := "space/b brightness • t theme • q quit"
	if !m.focused {
		footer += " • paused"
	}
	b.WriteString(p.dim.Render(footer))
	b.WriteString("\n")
	return b.String()
}

func (m Model) row(p palette, label, value string) string {
	return p.label.Render(fmt.Sprintf("  %-16s", label)) + " " + value + "\n"
}

func (m Model) themeHint() string {
	if !m.autoTheme {
		return "Following the system theme"
	}
	s := m.deps.Schedule
	return fmt.Sprintf("Light %02d:00 - %02d:00 | Dark %02d:00 - %02d:00",
		s.LightFrom, s.DarkFrom, s.DarkFrom, s.LightFrom)
}

func (m Model) sensorLabel() string {
	if !m.sensorFound {
		return NotFound
	}
	if m.sensor.Type == "" {
		return m.sensor.Name
	}
	return fmt.Sprintf("%s (%s)", m.sensor.Name, m.sensor.Type)
}

// sensorValues formats the first two values of the last reading; missing
// ones are shown as NotFound.
func (m Model) sensorValues() []string {
	out := []string{NotFound, NotFound}
	if !m.hasEvent {
		return out
	}
	for i := range out {
		if i < len(m.event.Values) {
			out[i] = fmt.Sprintf("%.2f", m.event.Values[i])
		}
	}
	return out
}

func (m Model) levelLabel() string {
	if !m.hasLevel {
		return "-"
	}
	return fmt.Sprintf("%d / %d", m.level, brightness.MaxLevel)
}

type palette struct {
	title lipgloss.Style
	label lipgloss.Style
	on    lipgloss.Style
	off   lipgloss.Style
	dim   lipgloss.Style
}

func (p palette) switchState(on bool) string {
	if on {
		return p.on.Render("[ ON ]")
	}
	return p.off.Render("[ OFF ]")
}

var (
	darkPalette = palette{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("51")).Background(lipgloss.Color("17")),
		label: lipgloss.NewStyle().Foreground(lipgloss.Color("252")),
		on:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("75")),
		off:   lipgloss.NewStyle().Foreground(lipgloss.Color("243")),
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
	lightPalette = palette{
		title: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255")).Background(lipgloss.Color("25")),
		label: lipgloss.NewStyle().Foreground(lipgloss.Color("235")),
		on:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("21")),
		off:   lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		dim:   lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
)

func paletteFor(mode theme.Mode) palette {
	if mode == theme.Dark {
		return darkPalette
	}
	return lightPalette
}

// Run starts the UI on the terminal and blocks until the user quits.
func Run(deps Deps) error {
	deps.SystemDark = lipgloss.HasDarkBackground()
	p := tea.NewProgram(New(deps), tea.WithAltScreen(), tea.WithReportFocus())
	_, err := p.Run()
	return err
}
