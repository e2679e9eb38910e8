// SPDX-License-Identifier: GPL-3.0-only

package sensor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultIIORoot is where the kernel exposes industrial I/O devices.
	DefaultIIORoot = "/sys/bus/iio/devices"

	// DefaultInterval is the polling cadence, matching a "normal" sensor delay.
	DefaultInterval = 200 * time.Millisecond
)

// channelPattern matches light channel files such as in_illuminance_raw,
// in_illuminance0_input or in_intensity_ir_raw.
var channelPattern = regexp.MustCompile(`^in_(illuminance|intensity)\d*(?:_[a-z0-9]+)*?_(raw|input)$`)

// channel is a single readable light channel of an IIO device.
type channel struct {
	name   string // file name without the _raw/_input suffix
	kind   string // TypeIlluminance or TypeIntensity
	file   string
	scale  string // optional scale file
	offset string // optional offset file
}

// device is a discovered IIO light sensor.
type device struct {
	desc     Descriptor
	channels []channel
}

// IIOSource reads ambient light from Linux industrial I/O sysfs devices.
type IIOSource struct {
	hub      *Hub
	root     string
	selector Selector
	interval time.Duration

	mu              sync.RWMutex
	selected        *device
	last            []float64
	reportedMissing bool
}

// IIOOption is a functional option for configuring an IIOSource.
type IIOOption func(*IIOSource)

// WithRoot sets the sysfs directory scanned for devices.
func WithRoot(root string) IIOOption {
	return func(s *IIOSource) {
		s.root = root
	}
}

// WithSelector sets the sensor selection strategy.
func WithSelector(sel Selector) IIOOption {
	return func(s *IIOSource) {
		s.selector = sel
	}
}

// WithInterval sets the polling interval.
func WithInterval(d time.Duration) IIOOption {
	return func(s *IIOSource) {
		s.interval = d
	}
}

// NewIIOSource creates a source. No sensor is selected until Rescan or Run.
func NewIIOSource(opts ...IIOOption) *IIOSource {
	s := &IIOSource{
		hub:      NewHub(),
		root:     DefaultIIORoot,
		selector: HasIlluminance(),
		interval: DefaultInterval,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Subscribe registers a listener for readings of the selected sensor.
func (s *IIOSource) Subscribe(l Listener) (unsubscribe func()) {
	return s.hub.Subscribe(l)
}

// List enumerates every IIO device exposing at least one light channel,
// sorted by path.
func (s *IIOSource) List() ([]Descriptor, error) {
	devices, err := s.scan()
	if err != nil {
		return nil, err
	}
	descs := make([]Descriptor, len(devices))
	for i, d := range devices {
		descs[i] = d.desc
	}
	return descs, nil
}

// Rescan reruns sensor selection. It reports the chosen sensor, or false when
// none matches; a missing sensor is logged once and is not an error.
func (s *IIOSource) Rescan() (Descriptor, bool) {
	devices, err := s.scan()
	if err != nil {
		log.Error().Err(err).Str("root", s.root).Msg("Failed to enumerate light sensors")
	}

	var chosen *device
	for i := range devices {
		if s.selector(devices[i].desc) {
			chosen = &devices[i]
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.selected
	s.selected = chosen
	if chosen == nil {
		s.last = nil
		if !s.reportedMissing {
			log.Warn().Str("root", s.root).Msg("No matching light sensor found")
			s.reportedMissing = true
		}
		return Descriptor{}, false
	}

	s.reportedMissing = false
	if prev == nil || prev.desc.Path != chosen.desc.Path {
		s.last = nil
		log.Info().
			Str("name", chosen.desc.Name).
			Str("type", chosen.desc.Type).
			Str("path", chosen.desc.Path).
			Strs("channels", chosen.desc.Channels).
			Msg("Light sensor selected")
	}
	return chosen.desc, true
}

// Selected returns the currently selected sensor.
func (s *IIOSource) Selected() (Descriptor, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected == nil {
		return Descriptor{}, false
	}
	return s.selected.desc, true
}

// Poll reads the selected sensor once and publishes the reading if any value
// changed since the previous poll. It returns the reading and whether it was
// published. Without a selected sensor it returns ErrNoSensor.
func (s *IIOSource) Poll() (Event, bool, error) {
	s.mu.RLock()
	dev := s.selected
	s.mu.RUnlock()

	if dev == nil {
		return Event{}, false, ErrNoSensor
	}

	values := make([]float64, 0, len(dev.channels))
	for _, ch := range dev.channels {
		v, err := ch.read()
		if err != nil {
			return Event{}, false, fmt.Errorf("failed to read %s: %w", ch.file, err)
		}
		values = append(values, v)
	}

	ev := Event{Sensor: dev.desc, Values: values, Timestamp: time.Now()}

	s.mu.Lock()
	if s.selected != dev {
		// Selection changed while reading.
		s.mu.Unlock()
		return ev, false, nil
	}
	changed := !slices.Equal(s.last, values)
	if changed {
		s.last = values
	}
	s.mu.Unlock()

	if changed {
		s.hub.Publish(ev)
	}
	return ev, changed, nil
}

// Run polls the sensor until ctx is cancelled. A sensor that disappears is
// deselected and looked up again on the next tick.
func (s *IIOSource) Run(ctx context.Context) {
	log.Info().Dur("interval", s.interval).Msg("Starting light sensor polling")

	if _, ok := s.Selected(); !ok {
		s.Rescan()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Stopping light sensor polling")
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *IIOSource) tick() {
	_, _, err := s.Poll()
	switch {
	case err == nil:
	case errors.Is(err, ErrNoSensor):
		s.Rescan()
	case errors.Is(err, os.ErrNotExist):
		log.Warn().Err(err).Msg("Light sensor disappeared")
		s.Rescan()
	default:
		log.Debug().Err(err).Msg("Failed to poll light sensor")
	}
}

// Close stops delivery to every listener.
func (s *IIOSource) Close() error {
	s.hub.Close()
	return nil
}

// scan reads the device tree under root.
func (s *IIOSource) scan() ([]device, error) {
	matches, err := filepath.Glob(filepath.Join(s.root, "iio:device*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list IIO devices: %w", err)
	}
	sort.Strings(matches)

	var devices []device
	for _, dir := range matches {
		channels, err := discoverChannels(dir)
		if err != nil {
			log.Debug().Err(err).Str("path", dir).Msg("Skipping IIO device")
			continue
		}
		if len(channels) == 0 {
			continue
		}

		desc := Descriptor{
			Name: readString(filepath.Join(dir, "name")),
			Type: channels[0].kind,
			Path: dir,
		}
		for _, ch := range channels {
			desc.Channels = append(desc.Channels, ch.name)
		}
		devices = append(devices, device{desc: desc, channels: channels})
	}
	return devices, nil
}

// discoverChannels returns the light channels of dir, illuminance first.
// When a channel offers both _input and _raw, the processed _input wins.
func discoverChannels(dir string) ([]channel, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	byName := make(map[string]channel)
	for _, e := range entries {
		m := channelPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		kind, suffix := m[1], m[2]
		name := strings.TrimSuffix(e.Name(), "_"+suffix)

		if existing, ok := byName[name]; ok && strings.HasSuffix(existing.file, "_input") {
			continue
		}

		ch := channel{
			name: name,
			kind: kind,
			file: filepath.Join(dir, e.Name()),
		}
		if suffix == "raw" {
			ch.scale = firstExisting(filepath.Join(dir, name+"_scale"), filepath.Join(dir, "in_"+kind+"_scale"))
			ch.offset = firstExisting(filepath.Join(dir, name+"_offset"), filepath.Join(dir, "in_"+kind+"_offset"))
		}
		byName[name] = ch
	}

	channels := make([]channel, 0, len(byName))
	for _, ch := range byName {
		channels = append(channels, ch)
	}
	sort.Slice(channels, func(i, j int) bool {
		if channels[i].kind != channels[j].kind {
			return channels[i].kind == TypeIlluminance
		}
		return channels[i].name < channels[j].name
	})
	return channels, nil
}

// read returns the channel value, applying offset and scale to raw channels.
func (c channel) read() (float64, error) {
	v, err := readFloat(c.file)
	if err != nil {
		return 0, err
	}
	if c.offset != "" {
		off, err := readFloat(c.offset)
		if err != nil {
			return 0, err
		}
		v += off
	}
	if c.scale != "" {
		scale, err := readFloat(c.scale)
		if err != nil {
			return 0, err
		}
		v *= scale
	}
	return v, nil
}

func readFloat(path string) (float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrInvalidChannel, path)
	}
	return v, nil
}

func readString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
