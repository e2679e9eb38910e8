// SPDX-License-Identifier: GPL-3.0-only

// Package dbus exposes the auto-brightness and auto-theme switches on the
// session bus and provides a client for them.
package dbus

import (
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
	"github.com/rs/zerolog/log"
	"github.com/shini4i/lightnight-daemon/internal/brightness"
	"github.com/shini4i/lightnight-daemon/internal/hid"
	"github.com/shini4i/lightnight-daemon/internal/sensor"
	"golang.org/x/time/rate"
)

// ErrRateLimitExceeded is returned when mutating requests exceed the rate limit.
var ErrRateLimitExceeded = errors.New("rate limit exceeded")

// ErrEmptySerial is returned when an empty serial number is provided.
var ErrEmptySerial = errors.New("serial cannot be empty")

// ErrNoDisplayManager is returned by display calls when the Studio Display
// sink is disabled.
var ErrNoDisplayManager = errors.New("studio display support is disabled")

const (
	// rateLimitPerSecond is the maximum number of mutating calls per second.
	rateLimitPerSecond = 20

	// rateLimitBurst is the maximum burst size for mutating calls.
	rateLimitBurst = 5
)

const (
	// ServiceName is the D-Bus service name.
	ServiceName = "io.github.shini4i.LightNight"

	// ObjectPath is the D-Bus object path.
	ObjectPath = "/io/github/shini4i/LightNight"

	// InterfaceName is the D-Bus interface name.
	InterfaceName = "io.github.shini4i.LightNight"
)

// IntrospectXML is the D-Bus introspection XML for the service.
const IntrospectXML = `
<node name="` + ObjectPath + `">
  <interface name="` + InterfaceName + `">
    <method name="GetAutoBrightness">
      <arg name="enabled" type="b" direction="out"/>
    </method>
    <method name="SetAutoBrightness">
      <arg name="enabled" type="b" direction="in"/>
    </method>
    <method name="ToggleAutoBrightness">
      <arg name="enabled" type="b" direction="out"/>
    </method>
    <method name="GetAutoTheme">
      <arg name="enabled" type="b" direction="out"/>
    </method>
    <method name="SetAutoTheme">
      <arg name="enabled" type="b" direction="in"/>
    </method>
    <method name="GetSensor">
      <arg name="name" type="s" direction="out"/>
      <arg name="type" type="s" direction="out"/>
      <arg name="found" type="b" direction="out"/>
    </method>
    <method name="GetLastReading">
      <arg name="values" type="ad" direction="out"/>
      <arg name="level" type="u" direction="out"/>
    </method>
    <method name="ListDisplays">
      <arg name="displays" type="a(ss)" direction="out"/>
    </method>
    <method name="SetDisplayBrightness">
      <arg name="serial" type="s" direction="in"/>
      <arg name="brightness" type="u" direction="in"/>
    </method>
    <signal name="AutoBrightnessChanged">
      <arg name="enabled" type="b"/>
    </signal>
    <signal name="AutoThemeChanged">
      <arg name="enabled" type="b"/>
    </signal>
    <signal name="BrightnessApplied">
      <arg name="reading" type="d"/>
      <arg name="level" type="u"/>
    </signal>
    <signal name="DisplayAdded">
      <arg name="serial" type="s"/>
      <arg name="productName" type="s"/>
    </signal>
    <signal name="DisplayRemoved">
      <arg name="serial" type="s"/>
    </signal>
  </interface>
  ` + introspect.IntrospectDataString + `
</node>
`

// Flag is a shared on/off switch.
type Flag interface {
	Enabled() bool
	Set(v bool) (changed bool)
	Toggle() bool
	Watch(fn func(bool)) (cancel func())
}

// SensorInfo reports the currently selected light sensor.
type SensorInfo interface {
	Selected() (sensor.Descriptor, bool)
}

// Readings reports the last reading and the last applied level.
type Readings interface {
	Last() (sensor.Event, bool)
	LastLevel() (brightness.Level, bool)
}

// DisplayManager is the subset of hid.Manager used for manual overrides.
type DisplayManager interface {
	ListDisplays() []hid.DeviceInfo
	GetDisplay(serial string) (*hid.Display, error)
}

// DeviceErrorHandler is called when a display turned out to be disconnected.
type DeviceErrorHandler func(serial string, err error)

// DisplayInfo serializes to the D-Bus struct (ss).
type DisplayInfo struct {
	Serial      string
	ProductName string
}

// Options groups the collaborators of a Server. Sensor, Readings and
// Displays may be nil.
type Options struct {
	AutoBrightness Flag
	AutoTheme      Flag
	Sensor         SensorInfo
	Readings       Readings
	Displays       DisplayManager
}

// Server implements the LightNight D-Bus service.
//
// The connMu mutex protects conn for signal emission; handlerMu protects
// deviceErrorHandler. Flags are safe for concurrent use on their own.
type Server struct {
	conn               *dbus.Conn
	connMu             sync.RWMutex
	opts               Options
	rateLimiter        *rate.Limiter
	cancelWatches      []func()
	handlerMu          sync.RWMutex
	deviceErrorHandler DeviceErrorHandler
}

// NewServer creates a new D-Bus server.
func NewServer(opts Options) *Server {
	return &Server{
		opts:        opts,
		rateLimiter: rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}
}

// Start connects to the session bus, exports the service and starts
// forwarding flag changes as signals.
func (s *Server) Start() error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}

	success := false
	defer func() {
		if !success {
			if closeErr := conn.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("Failed to close D-Bus connection during cleanup")
			}
		}
	}()

	if err := conn.Export(s, ObjectPath, InterfaceName); err != nil {
		return fmt.Errorf("failed to export server: %w", err)
	}

	if err := conn.Export(introspect.Introspectable(IntrospectXML), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspectable: %w", err)
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request name: %w", err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("name %s already taken", ServiceName)
	}

	s.connMu.Lock()
	s.conn = conn
	s.cancelWatches = s.watchFlags()
	s.connMu.Unlock()

	success = true
	log.Info().Str("service", ServiceName).Msg("D-Bus service started")
	return nil
}

// Stop stops forwarding signals and disconnects from the session bus.
func (s *Server) Stop() error {
	s.connMu.Lock()
	conn := s.conn
	cancels := s.cancelWatches
	s.conn = nil
	s.cancelWatches = nil
	s.connMu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}

	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (s *Server) watchFlags() []func() {
	var cancels []func()
	if s.opts.AutoBrightness != nil {
		cancels = append(cancels, s.opts.AutoBrightness.Watch(func(v bool) {
			s.emit("AutoBrightnessChanged", v)
		}))
	}
	if s.opts.AutoTheme != nil {
		cancels = append(cancels, s.opts.AutoTheme.Watch(func(v bool) {
			s.emit("AutoThemeChanged", v)
		}))
	}
	return cancels
}

// SetDeviceErrorHandler sets the callback invoked when a display write
// fails because the device is gone.
func (s *Server) SetDeviceErrorHandler(handler DeviceErrorHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.deviceErrorHandler = handler
}

func (s *Server) handleDeviceError(serial string, err error) bool {
	if err == nil || !hid.IsDeviceGoneError(err) {
		return false
	}

	log.Warn().Err(err).Str("serial", serial).Msg("Device error detected, triggering recovery")

	s.handlerMu.RLock()
	handler := s.deviceErrorHandler
	s.handlerMu.RUnlock()

	if handler != nil {
		go handler(serial, err)
	}
	return true
}

// GetAutoBrightness reports whether automatic brightness is enabled.
func (s *Server) GetAutoBrightness() (bool, *dbus.Error) {
	return s.opts.AutoBrightness.Enabled(), nil
}

// SetAutoBrightness enables or disables automatic brightness.
func (s *Server) SetAutoBrightness(enabled bool) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetAutoBrightness")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if s.opts.AutoBrightness.Set(enabled) {
		log.Info().Bool("enabled", enabled).Msg("Auto-brightness changed")
	}
	return nil
}

// ToggleAutoBrightness flips automatic brightness and returns the new value.
func (s *Server) ToggleAutoBrightness() (bool, *dbus.Error) {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for ToggleAutoBrightness")
		return false, dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	enabled := s.opts.AutoBrightness.Toggle()
	log.Info().Bool("enabled", enabled).Msg("Auto-brightness toggled")
	return enabled, nil
}

// GetAutoTheme reports whether the time-based theme is enabled.
func (s *Server) GetAutoTheme() (bool, *dbus.Error) {
	return s.opts.AutoTheme.Enabled(), nil
}

// SetAutoTheme enables or disables the time-based theme.
func (s *Server) SetAutoTheme(enabled bool) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetAutoTheme")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}

	if s.opts.AutoTheme.Set(enabled) {
		log.Info().Bool("enabled", enabled).Msg("Auto-theme changed")
	}
	return nil
}

// GetSensor returns the name and type of the selected light sensor.
func (s *Server) GetSensor() (string, string, bool, *dbus.Error) {
	if s.opts.Sensor == nil {
		return "", "", false, nil
	}
	desc, ok := s.opts.Sensor.Selected()
	if !ok {
		return "", "", false, nil
	}
	return desc.Name, desc.Type, true, nil
}

// GetLastReading returns the values of the last reading and the last level
// written. Both are empty when nothing has been seen or applied yet.
func (s *Server) GetLastReading() ([]float64, uint32, *dbus.Error) {
	values := []float64{}
	var level uint32
	if s.opts.Readings == nil {
		return values, level, nil
	}
	if ev, ok := s.opts.Readings.Last(); ok {
		values = append(values, ev.Values...)
	}
	if l, ok := s.opts.Readings.LastLevel(); ok {
		// #nosec G115 -- levels are clamped to 15-255
		level = uint32(l.Clamp())
	}
	return values, level, nil
}

// ListDisplays returns the connected Apple Studio Displays.
func (s *Server) ListDisplays() ([]DisplayInfo, *dbus.Error) {
	result := []DisplayInfo{}
	if s.opts.Displays == nil {
		return result, nil
	}
	for _, d := range s.opts.Displays.ListDisplays() {
		result = append(result, DisplayInfo{Serial: d.Serial, ProductName: d.Product})
	}
	log.Debug().Int("count", len(result)).Msg("Listed displays")
	return result, nil
}

// SetDisplayBrightness sets one Studio Display to a percentage (0-100).
// Automatic brightness overrides it on the next reading while enabled.
func (s *Server) SetDisplayBrightness(serial string, percent uint32) *dbus.Error {
	if !s.rateLimiter.Allow() {
		log.Warn().Msg("Rate limit exceeded for SetDisplayBrightness")
		return dbus.MakeFailedError(ErrRateLimitExceeded)
	}
	if s.opts.Displays == nil {
		return dbus.MakeFailedError(ErrNoDisplayManager)
	}
	if serial == "" {
		return dbus.MakeFailedError(ErrEmptySerial)
	}

	display, err := s.opts.Displays.GetDisplay(serial)
	if err != nil {
		log.Error().Err(err).Str("serial", serial).Msg("Failed to get display")
		return dbus.MakeFailedError(err)
	}

	if percent > 100 {
		percent = 100
	}

	// #nosec G115 -- percent is clamped to 0-100
	if err := display.SetBrightness(uint8(percent)); err != nil {
		s.handleDeviceError(serial, err)
		log.Error().Err(err).Str("serial", serial).Msg("Failed to set brightness")
		return dbus.MakeFailedError(err)
	}

	log.Debug().Str("serial", serial).Uint32("brightness", percent).Msg("Set display brightness")
	return nil
}

// EmitBrightnessApplied emits the BrightnessApplied signal.
func (s *Server) EmitBrightnessApplied(reading float64, level brightness.Level) {
	// #nosec G115 -- levels are clamped to 15-255
	s.emit("BrightnessApplied", reading, uint32(level.Clamp()))
}

// EmitDisplayAdded emits the DisplayAdded signal.
func (s *Server) EmitDisplayAdded(serial, productName string) {
	s.emit("DisplayAdded", serial, productName)
	log.Info().Str("serial", serial).Str("product", productName).Msg("Display added")
}

// EmitDisplayRemoved emits the DisplayRemoved signal.
func (s *Server) EmitDisplayRemoved(serial string) {
	s.emit("DisplayRemoved", serial)
	log.Info().Str("serial", serial).Msg("Display removed")
}

func (s *Server) emit(signal string, values ...interface{}) {
	s.connMu.RLock()
	conn := s.conn
	s.connMu.RUnlock()

	if conn == nil {
		return
	}

	if err := conn.Emit(ObjectPath, InterfaceName+"."+signal, values...); err != nil {
		log.Error().Err(err).Str("signal", signal).Msg("Failed to emit signal")
	}
}
