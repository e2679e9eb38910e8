// SPDX-License-Identifier: GPL-3.0-only

// Package state holds the process-wide toggles shared between the sensor
// listeners, the D-Bus service and the interactive UI.
package state

import (
	"sync"
	"sync/atomic"
)

// Flag is an atomically updated on/off toggle with change notification.
// The zero value is a disabled flag ready for use.
//
// Every Set or Toggle happens-before any later Enabled call, in any goroutine.
// Watchers are invoked synchronously after each effective transition, outside
// the watcher lock; concurrent transitions may notify watchers out of order.
type Flag struct {
	value atomic.Bool

	mu       sync.RWMutex
	watchers map[int]func(bool)
	nextID   int
}

// NewFlag creates a flag with the given initial value.
func NewFlag(initial bool) *Flag {
	f := &Flag{}
	f.value.Store(initial)
	return f
}

// Enabled reports whether the flag is currently on.
func (f *Flag) Enabled() bool {
	return f.value.Load()
}

// Set stores v and reports whether the value changed.
func (f *Flag) Set(v bool) bool {
	if f.value.Swap(v) == v {
		return false
	}
	f.notify(v)
	return true
}

// Toggle inverts the flag and returns the new value.
func (f *Flag) Toggle() bool {
	for {
		old := f.value.Load()
		if f.value.CompareAndSwap(old, !old) {
			f.notify(!old)
			return !old
		}
	}
}

// Watch registers fn to be called with the new value after every transition.
// The returned function removes the watcher; calling it more than once is safe.
func (f *Flag) Watch(fn func(bool)) (cancel func()) {
	f.mu.Lock()
	if f.watchers == nil {
		f.watchers = make(map[int]func(bool))
	}
	id := f.nextID
	f.nextID++
	f.watchers[id] = fn
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			delete(f.watchers, id)
			f.mu.Unlock()
		})
	}
}

func (f *Flag) notify(v bool) {
	f.mu.RLock()
	fns := make([]func(bool), 0, len(f.watchers))
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.RUnlock()

	for _, fn := range fns {
		fn(v)
	}
}

// State is the set of toggles shared by every component of the daemon.
type State struct {
	// AutoBrightness gates whether sensor readings are applied to the screen.
	AutoBrightness *Flag

	// AutoTheme switches the desktop color scheme by time of day.
	AutoTheme *Flag
}

// New creates the shared state with both toggles at their initial values.
func New(autoBrightness, autoTheme bool) *State {
	return &State{
		AutoBrightness: NewFlag(autoBrightness),
		AutoTheme:      NewFlag(autoTheme),
	}
}
