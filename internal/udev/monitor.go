// SPDX-License-Identifier: GPL-3.0-only

// Package udev watches netlink uevents for light sensors and Apple Studio
// Displays being plugged in or removed.
package udev

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/pilebones/go-udev/netlink"
	"github.com/rs/zerolog/log"
)

const (
	// netlinkBufferSize is the receive buffer size for the netlink socket.
	// USB hot-plug bursts overflow the default buffer (ENOBUFS).
	netlinkBufferSize = 2 * 1024 * 1024

	// removeDebounceWindow collapses the per-interface REMOVE events a single
	// display unplug produces.
	removeDebounceWindow = 500 * time.Millisecond

	// removeHistoryTTL bounds how long REMOVE timestamps are kept.
	removeHistoryTTL = time.Minute
)

const (
	// AppleVendorIDPattern matches the Apple USB vendor ID as found in the
	// PRODUCT variable, which drops leading zeros and may vary in case.
	AppleVendorIDPattern = "0?5[aA][cC]"

	// StudioDisplayProductID is the USB product ID for Apple Studio Display.
	StudioDisplayProductID = "1114"

	// SensorSubsystem is the kernel subsystem of industrial I/O devices.
	SensorSubsystem = "iio"
)

// EventType represents the type of device event.
type EventType int

const (
	// EventAdd indicates a device was connected.
	EventAdd EventType = iota
	// EventRemove indicates a device was disconnected.
	EventRemove
)

// Kind tells which device family an event is about.
type Kind int

const (
	// KindSensor is an IIO device, possibly a light sensor.
	KindSensor Kind = iota
	// KindDisplay is an Apple Studio Display.
	KindDisplay
)

// String returns a name for logs.
func (k Kind) String() string {
	if k == KindDisplay {
		return "display"
	}
	return "sensor"
}

// Event represents a device hot-plug event.
type Event struct {
	Type EventType
	Kind Kind
}

// EventHandler is called when a device event occurs.
type EventHandler func(event Event)

// RecoveryHandler is called after events may have been lost (netlink buffer
// overflow); it should rescan every device family.
type RecoveryHandler func()

// Monitor watches for light sensor and Studio Display hot-plug events.
type Monitor struct {
	conn            *netlink.UEventConn
	handler         EventHandler
	recoveryHandler RecoveryHandler
	quit            chan struct{}
	stopped         bool
	lastRemoveTime  map[string]time.Time
	mu              sync.Mutex
}

// NewMonitor creates a new udev monitor with the given event handler.
func NewMonitor(handler EventHandler) *Monitor {
	return &Monitor{
		handler:        handler,
		lastRemoveTime: make(map[string]time.Time),
	}
}

// SetRecoveryHandler sets the handler called when events may have been lost.
func (m *Monitor) SetRecoveryHandler(handler RecoveryHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recoveryHandler = handler
}

// Start begins monitoring in a background goroutine.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil {
		return fmt.Errorf("monitor already started")
	}

	m.conn = &netlink.UEventConn{}
	if err := m.conn.Connect(netlink.UdevEvent); err != nil {
		m.conn = nil
		return fmt.Errorf("failed to connect to netlink: %w", err)
	}

	if err := setSocketBufferSize(m.conn.Fd, netlinkBufferSize); err != nil {
		log.Warn().Err(err).Int("size", netlinkBufferSize).Msg("Failed to set netlink buffer size")
	} else {
		log.Debug().Int("size", netlinkBufferSize).Msg("Netlink socket buffer size configured")
	}

	queue := make(chan netlink.UEvent)
	errs := make(chan error)

	m.quit = m.conn.Monitor(queue, errs, m.createMatcher())
	m.stopped = false

	go m.processEvents(queue, errs)

	log.Info().Msg("udev monitor started")
	return nil
}

// Stop stops the monitor and releases resources.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.stopped {
		return nil
	}
	m.stopped = true

	select {
	case m.quit <- struct{}{}:
	default:
	}

	if err := m.conn.Close(); err != nil {
		return fmt.Errorf("failed to close netlink connection: %w", err)
	}

	m.conn = nil
	log.Info().Msg("udev monitor stopped")
	return nil
}

// createMatcher matches add/remove events of IIO devices and Studio Displays.
func (m *Monitor) createMatcher() *netlink.RuleDefinitions {
	rules := &netlink.RuleDefinitions{}

	// PRODUCT is "vendorId/productId/bcdDevice", e.g. "5ac/1114/157".
	productPattern := fmt.Sprintf("^%s/%s/[^/]+$", AppleVendorIDPattern, StudioDisplayProductID)

	for _, action := range []string{"add", "remove"} {
		action := action
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env: map[string]string{
				"SUBSYSTEM": "^usb$",
				"PRODUCT":   productPattern,
			},
		})
		rules.AddRule(netlink.RuleDefinition{
			Action: &action,
			Env: map[string]string{
				"SUBSYSTEM": "^" + SensorSubsystem + "$",
			},
		})
	}

	return rules
}

func (m *Monitor) processEvents(queue chan netlink.UEvent, errs chan error) {
	for {
		select {
		case event, ok := <-queue:
			if !ok {
				return
			}
			m.handleEvent(event)
		case err, ok := <-errs:
			if !ok {
				return
			}
			m.mu.Lock()
			stopped := m.stopped
			recoveryHandler := m.recoveryHandler
			m.mu.Unlock()
			if stopped {
				return
			}

			if isBufferOverflowError(err) {
				log.Warn().Msg("Netlink buffer overflow detected, triggering recovery rescan")
				if recoveryHandler != nil {
					go recoveryHandler()
				}
				continue
			}

			log.Error().Err(err).Msg("udev monitor error")
		}
	}
}

// setSocketBufferSize tries SO_RCVBUFFORCE (needs CAP_NET_ADMIN) and falls
// back to SO_RCVBUF, which the kernel caps at net.core.rmem_max.
func setSocketBufferSize(fd int, size int) error {
	if err := syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUFFORCE, size); err == nil {
		return nil
	}
	return syscall.SetsockoptInt(fd, syscall.SOL_SOCKET, syscall.SO_RCVBUF, size)
}

// isBufferOverflowError checks if the error is a netlink buffer overflow (ENOBUFS).
func isBufferOverflowError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ENOBUFS) {
		return true
	}
	// The udev library does not always wrap the errno.
	return strings.Contains(strings.ToLower(err.Error()), "no buffer space available")
}

// handleEvent classifies a uevent and forwards it to the handler.
func (m *Monitor) handleEvent(uevent netlink.UEvent) {
	var eventType EventType
	switch uevent.Action {
	case netlink.ADD:
		eventType = EventAdd
	case netlink.REMOVE:
		eventType = EventRemove
	default:
		return
	}

	var kind Kind
	switch uevent.Env["SUBSYSTEM"] {
	case SensorSubsystem:
		kind = KindSensor
	case "usb", "":
		// Only the usb_device node is interesting on add; its interfaces
		// follow as separate events. DEVTYPE may be gone on remove.
		if eventType == EventAdd && uevent.Env["DEVTYPE"] != "usb_device" {
			return
		}
		kind = KindDisplay
		if eventType == EventRemove && m.shouldDebounceRemove(uevent.Env["PRODUCT"]) {
			log.Debug().Str("devpath", uevent.KObj).Msg("Debounced duplicate display remove event")
			return
		}
	default:
		return
	}

	log.Debug().
		Str("action", string(uevent.Action)).
		Str("devpath", uevent.KObj).
		Str("kind", kind.String()).
		Msg("Device event")

	if m.handler != nil {
		m.handler(Event{Type: eventType, Kind: kind})
	}
}

// shouldDebounceRemove reports whether a REMOVE for product was already seen
// within removeDebounceWindow, and records this one otherwise.
func (m *Monitor) shouldDebounceRemove(product string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for p, ts := range m.lastRemoveTime {
		if now.Sub(ts) > removeHistoryTTL {
			delete(m.lastRemoveTime, p)
		}
	}

	if ts, ok := m.lastRemoveTime[product]; ok && now.Sub(ts) < removeDebounceWindow {
		return true
	}
	m.lastRemoveTime[product] = now
	return false
}
