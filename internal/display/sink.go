// SPDX-License-Identifier: GPL-3.0-only

// Package display writes brightness levels to the screens of the machine.
package display

import (
	"errors"
	"fmt"

	"github.com/shini4i/lightnight-daemon/internal/brightness"
)

//go:generate mockgen -source=sink.go -destination=mocks/sink_mock.go -package=mocks

// Sink accepts brightness writes. Writes are fire-and-forget for the gate:
// errors are reported for logging only.
type Sink interface {
	// SetBrightness applies a brightness level.
	SetBrightness(level brightness.Level) error
	// Name identifies the sink in logs.
	Name() string
}

// Multi fans every write out to several sinks.
type Multi []Sink

// SetBrightness writes level to every sink and joins their errors.
func (m Multi) SetBrightness(level brightness.Level) error {
	var errs []error
	for _, s := range m {
		if err := s.SetBrightness(level); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Name returns "multi".
func (m Multi) Name() string {
	return "multi"
}

// Discard drops every write. It backs dry runs.
type Discard struct{}

// SetBrightness does nothing.
func (Discard) SetBrightness(brightness.Level) error { return nil }

// Name returns "discard".
func (Discard) Name() string { return "discard" }
