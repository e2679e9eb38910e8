// SPDX-License-Identifier: GPL-3.0-only

package autobrightness

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/lightnight-daemon/internal/sensor"
)

// Source delivers sensor events to subscribed listeners.
type Source interface {
	Subscribe(l sensor.Listener) (unsubscribe func())
}

// Host binds listeners to a lifecycle: they receive readings between Start
// and Stop. The daemon runs a long-lived "service" host and, with the UI, a
// "foreground" host paused whenever the UI loses focus.
type Host struct {
	name      string
	source    Source
	listeners []sensor.Listener

	mu     sync.Mutex
	unsubs []func()
}

// NewHost creates a stopped host.
func NewHost(name string, source Source, listeners ...sensor.Listener) *Host {
	return &Host{name: name, source: source, listeners: listeners}
}

// Start subscribes the listeners. Starting a running host is a no-op.
func (h *Host) Start() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unsubs != nil {
		return
	}
	h.unsubs = make([]func(), 0, len(h.listeners))
	for _, l := range h.listeners {
		h.unsubs = append(h.unsubs, h.source.Subscribe(l))
	}
	log.Debug().Str("host", h.name).Int("listeners", len(h.listeners)).Msg("Sensor listeners registered")
}

// Stop unsubscribes the listeners. Stopping a stopped host is a no-op.
func (h *Host) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.unsubs == nil {
		return
	}
	for _, unsubscribe := range h.unsubs {
		unsubscribe()
	}
	h.unsubs = nil
	log.Debug().Str("host", h.name).Msg("Sensor listeners unregistered")
}

// Running reports whether the host is started.
func (h *Host) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.unsubs != nil
}

// Name returns the host name.
func (h *Host) Name() string {
	return h.name
}
