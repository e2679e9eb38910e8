// SPDX-License-Identifier: GPL-3.0-only

// Package autobrightness turns sensor readings into brightness writes while
// automatic mode is enabled.
package autobrightness

import (
	"errors"
	"os"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/lightnight-daemon/internal/brightness"
	"github.com/shini4i/lightnight-daemon/internal/display"
	"github.com/shini4i/lightnight-daemon/internal/sensor"
)

// Switch reports whether automatic brightness is enabled.
type Switch interface {
	Enabled() bool
}

// AppliedFunc is called after a level derived from ev was handed to the sink.
type AppliedFunc func(ev sensor.Event, level brightness.Level)

// Gate maps readings to brightness levels and writes them to a sink while
// its switch is on. While off, readings are still recorded but never written.
//
// A Gate is a sensor.Listener and is safe for concurrent use.
type Gate struct {
	enabled   Switch
	sink      display.Sink
	onApplied AppliedFunc

	mu        sync.RWMutex
	last      sensor.Event
	hasLast   bool
	lastLevel brightness.Level
	applied   bool

	permissionOnce sync.Once
}

// GateOption is a functional option for configuring a Gate.
type GateOption func(*Gate)

// WithOnApplied registers a hook for every applied level.
func WithOnApplied(fn AppliedFunc) GateOption {
	return func(g *Gate) {
		g.onApplied = fn
	}
}

// NewGate creates a gate writing to sink whenever enabled reports true.
func NewGate(enabled Switch, sink display.Sink, opts ...GateOption) *Gate {
	g := &Gate{enabled: enabled, sink: sink}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// OnReading records ev and, when enabled, applies the mapped level.
func (g *Gate) OnReading(ev sensor.Event) {
	g.mu.Lock()
	g.last = ev
	g.hasLast = true
	g.mu.Unlock()

	if !g.enabled.Enabled() {
		return
	}

	level := brightness.Compute(ev.Primary())
	if err := g.sink.SetBrightness(level); err != nil {
		g.reportWriteError(err)
	}

	g.mu.Lock()
	g.lastLevel = level
	g.applied = true
	g.mu.Unlock()

	log.Debug().
		Float64("reading", ev.Primary()).
		Int("level", int(level)).
		Str("sink", g.sink.Name()).
		Msg("Applied brightness")

	if g.onApplied != nil {
		g.onApplied(ev, level)
	}
}

// Last returns the most recent reading seen by the gate.
func (g *Gate) Last() (sensor.Event, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.last, g.hasLast
}

// LastLevel returns the most recently applied level.
func (g *Gate) LastLevel() (brightness.Level, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastLevel, g.applied
}

// reportWriteError logs a failed write. A missing permission is reported once
// since it will not resolve itself; other failures only show in debug logs.
func (g *Gate) reportWriteError(err error) {
	if errors.Is(err, os.ErrPermission) {
		g.permissionOnce.Do(func() {
			log.Warn().
				Err(err).
				Str("sink", g.sink.Name()).
				Msg("Not allowed to change brightness; writes are ignored")
		})
		return
	}
	log.Debug().Err(err).Str("sink", g.sink.Name()).Msg("Failed to apply brightness")
}
