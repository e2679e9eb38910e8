// SPDX-License-Identifier: GPL-3.0-only

package theme

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Toggle is an observable on/off switch.
type Toggle interface {
	Enabled() bool
	Watch(fn func(bool)) (cancel func())
}

// Scheduler applies the scheduled mode while auto theme is enabled.
type Scheduler struct {
	schedule Schedule
	toggle   Toggle
	applier  Applier
	interval time.Duration
	now      func() time.Time

	applied    Mode
	hasApplied bool
}

// SchedulerOption is a functional option for configuring a Scheduler.
type SchedulerOption func(*Scheduler)

// WithClock overrides the time source.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithCheckInterval overrides how often the schedule is re-evaluated.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// NewScheduler creates a scheduler checking once a minute.
func NewScheduler(schedule Schedule, toggle Toggle, applier Applier, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		schedule: schedule,
		toggle:   toggle,
		applier:  applier,
		interval: time.Minute,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run evaluates the schedule on every tick and whenever the toggle changes,
// until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	changed := make(chan bool, 1)
	cancel := s.toggle.Watch(func(v bool) {
		select {
		case changed <- v:
		default:
		}
	})
	defer cancel()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Check(ctx)
		case enabled := <-changed:
			if !enabled {
				// The user may change the scheme by hand while disabled;
				// re-apply on the next enable.
				s.hasApplied = false
			}
			s.Check(ctx)
		}
	}
}

// Check applies the scheduled mode if auto theme is enabled and the mode
// differs from the last one applied. Run calls it; it is not safe for
// concurrent use with Run.
func (s *Scheduler) Check(ctx context.Context) {
	if !s.toggle.Enabled() {
		return
	}

	mode := s.schedule.ModeAt(s.now())
	if s.hasApplied && mode == s.applied {
		return
	}

	if err := s.applier.Apply(ctx, mode); err != nil {
		log.Error().Err(err).Str("mode", mode.String()).Msg("Failed to apply color scheme")
		return
	}

	s.applied = mode
	s.hasApplied = true
	log.Info().Str("mode", mode.String()).Msg("Applied color scheme")
}
