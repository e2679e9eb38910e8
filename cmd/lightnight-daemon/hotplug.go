// SPDX-License-Identifier: GPL-3.0-only

package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/shini4i/lightnight-daemon/internal/hid"
	"github.com/shini4i/lightnight-daemon/internal/sensor"
	"github.com/shini4i/lightnight-daemon/internal/udev"
)

const (
	// hotplugRetries is how many extra refresh attempts follow a failed one.
	hotplugRetries = 3

	// settleDelay gives a freshly attached USB device time to expose its
	// HID interface.
	settleDelay = 500 * time.Millisecond
)

// refreshMu serializes display refreshes between hot-plug and recovery
// handlers.
var refreshMu sync.Mutex

// sleep is replaced in tests.
var sleep = time.Sleep

// displayRefresher is the subset of hid.Manager used on hot-plug.
type displayRefresher interface {
	RefreshDisplays() error
	ListDisplays() []hid.DeviceInfo
	Count() int
}

// sensorRescanner reselects the light sensor.
type sensorRescanner interface {
	Rescan() (sensor.Descriptor, bool)
}

// displayNotifier publishes display changes on the bus.
type displayNotifier interface {
	EmitDisplayAdded(serial, productName string)
	EmitDisplayRemoved(serial string)
}

// displayChanges lists the displays that appeared and disappeared.
type displayChanges struct {
	added   []hid.DeviceInfo
	removed []string
}

// getDisplaysSnapshot indexes the connected displays by serial.
func getDisplaysSnapshot(manager displayRefresher) map[string]hid.DeviceInfo {
	snapshot := make(map[string]hid.DeviceInfo)
	for _, d := range manager.ListDisplays() {
		snapshot[d.Serial] = d
	}
	return snapshot
}

// diffDisplays compares two snapshots.
func diffDisplays(oldDisplays, newDisplays map[string]hid.DeviceInfo) displayChanges {
	var changes displayChanges
	for serial, info := range newDisplays {
		if _, exists := oldDisplays[serial]; !exists {
			changes.added = append(changes.added, info)
		}
	}
	for serial := range oldDisplays {
		if _, exists := newDisplays[serial]; !exists {
			changes.removed = append(changes.removed, serial)
		}
	}
	return changes
}

// emitDisplayChanges emits one signal per change.
func emitDisplayChanges(notifier displayNotifier, changes displayChanges) {
	for _, info := range changes.added {
		notifier.EmitDisplayAdded(info.Serial, info.Product)
	}
	for _, serial := range changes.removed {
		notifier.EmitDisplayRemoved(serial)
	}
}

// refreshDisplaysWithRetry refreshes displays with linear backoff until at
// least one display is found or the retries run out. found is false when no
// display showed up; err is the last refresh error, if any.
func refreshDisplaysWithRetry(manager displayRefresher, maxRetries int) (found bool, err error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			// Linear backoff: 500ms, 1000ms, 1500ms, ...
			backoff := time.Duration(attempt) * settleDelay
			log.Debug().Int("attempt", attempt).Dur("backoff", backoff).Msg("Retrying display refresh")
			sleep(backoff)
		}

		if err := manager.RefreshDisplays(); err != nil {
			lastErr = err
			log.Warn().
				Err(err).
				Int("attempt", attempt+1).
				Int("maxRetries", maxRetries+1).
				Msg("Display refresh failed")
			continue
		}
		lastErr = nil

		if manager.Count() > 0 {
			if attempt > 0 {
				log.Info().Int("attempts", attempt+1).Msg("Display refresh succeeded after retry")
			}
			return true, nil
		}
	}
	return false, lastErr
}

// refreshDisplays refreshes after a display event and emits the resulting
// changes. An add that finds nothing emits nothing: enumeration may simply
// not be ready yet.
func refreshDisplays(manager displayRefresher, notifier displayNotifier, eventType udev.EventType) {
	refreshMu.Lock()
	defer refreshMu.Unlock()

	oldDisplays := getDisplaysSnapshot(manager)

	if eventType == udev.EventAdd {
		sleep(settleDelay)
		found, err := refreshDisplaysWithRetry(manager, hotplugRetries)
		if err != nil {
			log.Error().Err(err).Msg("Failed to refresh displays after hot-plug event (all retries exhausted)")
			return
		}
		if !found {
			log.Debug().Msg("No display found after add event")
			return
		}
	} else if err := manager.RefreshDisplays(); err != nil {
		log.Error().Err(err).Msg("Failed to refresh displays after remove event")
		return
	}

	emitDisplayChanges(notifier, diffDisplays(oldDisplays, getDisplaysSnapshot(manager)))
}

// rescanSensor reselects the light sensor and logs the outcome.
func rescanSensor(source sensorRescanner) {
	if desc, ok := source.Rescan(); ok {
		log.Info().Str("sensor", desc.Name).Str("type", desc.Type).Msg("Light sensor selected")
	}
}

// createHotplugHandler routes udev events to a sensor rescan or a display
// refresh. manager may be nil when Studio Display support is disabled.
func createHotplugHandler(source sensorRescanner, manager displayRefresher, notifier displayNotifier) udev.EventHandler {
	return func(event udev.Event) {
		switch event.Kind {
		case udev.KindSensor:
			rescanSensor(source)
		case udev.KindDisplay:
			if isNil(manager) {
				return
			}
			refreshDisplays(manager, notifier, event.Type)
		}
	}
}

// createRecoveryHandler rescans everything after events may have been lost.
func createRecoveryHandler(source sensorRescanner, manager displayRefresher, notifier displayNotifier) udev.RecoveryHandler {
	return func() {
		log.Info().Msg("Performing recovery rescan")
		rescanSensor(source)

		if isNil(manager) {
			return
		}

		refreshMu.Lock()
		defer refreshMu.Unlock()

		oldDisplays := getDisplaysSnapshot(manager)
		sleep(settleDelay)

		if _, err := refreshDisplaysWithRetry(manager, hotplugRetries); err != nil {
			log.Error().Err(err).Msg("Recovery refresh failed (all retries exhausted)")
			return
		}

		newDisplays := getDisplaysSnapshot(manager)
		emitDisplayChanges(notifier, diffDisplays(oldDisplays, newDisplays))
		log.Info().Int("displays", len(newDisplays)).Msg("Recovery refresh completed")
	}
}

// isNil reports whether the refresher is absent, including a nil *hid.Manager.
func isNil(manager displayRefresher) bool {
	if manager == nil {
		return true
	}
	m, ok := manager.(*hid.Manager)
	return ok && m == nil
}
