// SPDX-License-Identifier: GPL-3.0-only

package dbus

import (
	"errors"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/shini4i/lightnight-daemon/internal/brightness"
	"github.com/shini4i/lightnight-daemon/internal/hid"
	"github.com/shini4i/lightnight-daemon/internal/hid/mocks"
	"github.com/shini4i/lightnight-daemon/internal/sensor"
	"github.com/shini4i/lightnight-daemon/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type mockDisplayManager struct {
	displays   []hid.DeviceInfo
	displayMap map[string]*hid.Display
	getErr     error
}

func (m *mockDisplayManager) ListDisplays() []hid.DeviceInfo {
	return m.displays
}

func (m *mockDisplayManager) GetDisplay(serial string) (*hid.Display, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	display, ok := m.displayMap[serial]
	if !ok {
		return nil, errors.New("display not found")
	}
	return display, nil
}

type fakeSensor struct {
	desc sensor.Descriptor
	ok   bool
}

func (f fakeSensor) Selected() (sensor.Descriptor, bool) { return f.desc, f.ok }

type fakeReadings struct {
	ev       sensor.Event
	hasEv    bool
	level    brightness.Level
	hasLevel bool
}

func (f fakeReadings) Last() (sensor.Event, bool) { return f.ev, f.hasEv }
func (f fakeReadings) LastLevel() (brightness.Level, bool) { return f.level, f.hasLevel }

func newTestServer(opts Options) *Server {
	if opts.AutoBrightness == nil {
		opts.AutoBrightness = state.NewFlag(false)
	}
	if opts.AutoTheme == nil {
		opts.AutoTheme = state.NewFlag(false)
	}
	return NewServer(opts)
}

func newMockDisplay(t *testing.T, serial string, sendErr error) *hid.Display {
	t.Helper()
	ctrl := gomock.NewController(t)
	device := mocks.NewMockDevice(ctrl)
	device.EXPECT().Info().Return(hid.DeviceInfo{Serial: serial}).AnyTimes()
	device.EXPECT().SendFeatureReport(gomock.Any()).Return(hid.ReportSize, sendErr).AnyTimes()
	return hid.NewDisplay(device)
}

func TestServer_Constants(t *testing.T) {
	assert.Equal(t, "io.github.shini4i.LightNight", ServiceName)
	assert.Equal(t, "/io/github/shini4i/LightNight", ObjectPath)
	assert.Equal(t, "io.github.shini4i.LightNight", InterfaceName)
	assert.Contains(t, IntrospectXML, `<method name="ToggleAutoBrightness">`)
	assert.Contains(t, IntrospectXML, `<signal name="BrightnessApplied">`)
}

func TestServer_AutoBrightness(t *testing.T) {
	flag := state.NewFlag(false)
	server := newTestServer(Options{AutoBrightness: flag})

	enabled, err := server.GetAutoBrightness()
	require.Nil(t, err)
	assert.False(t, enabled)

	require.Nil(t, server.SetAutoBrightness(true))
	assert.True(t, flag.Enabled())

	enabled, err = server.GetAutoBrightness()
	require.Nil(t, err)
	assert.True(t, enabled)
}

func TestServer_ToggleAutoBrightness(t *testing.T) {
	flag := state.NewFlag(false)
	server := newTestServer(Options{AutoBrightness: flag})

	enabled, err := server.ToggleAutoBrightness()
	require.Nil(t, err)
	assert.True(t, enabled)
	assert.True(t, flag.Enabled())

	enabled, err = server.ToggleAutoBrightness()
	require.Nil(t, err)
	assert.False(t, enabled)
	assert.False(t, flag.Enabled())
}

func TestServer_AutoTheme(t *testing.T) {
	brightnessFlag := state.NewFlag(false)
	themeFlag := state.NewFlag(false)
	server := newTestServer(Options{AutoBrightness: brightnessFlag, AutoTheme: themeFlag})

	require.Nil(t, server.SetAutoTheme(true))
	enabled, err := server.GetAutoTheme()
	require.Nil(t, err)
	assert.True(t, enabled)
	assert.False(t, brightnessFlag.Enabled(), "auto-theme must not touch auto-brightness")

	_, err = server.ToggleAutoBrightness()
	require.Nil(t, err)
	assert.True(t, themeFlag.Enabled(), "toggle must not touch auto-theme")
}

func TestServer_GetSensor(t *testing.T) {
	tests := []struct {
		name      string
		info      SensorInfo
		wantName  string
		wantType  string
		wantFound bool
	}{
		{name: "no source"},
		{name: "not found", info: fakeSensor{}},
		{
			name:      "selected",
			info:      fakeSensor{desc: sensor.Descriptor{Name: "als", Type: sensor.TypeIlluminance}, ok: true},
			wantName:  "als",
			wantType:  sensor.TypeIlluminance,
			wantFound: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(Options{Sensor: tt.info})
			name, typ, found, err := server.GetSensor()
			require.Nil(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantType, typ)
			assert.Equal(t, tt.wantFound, found)
		})
	}
}

func TestServer_GetLastReading(t *testing.T) {
	t.Run("nothing seen", func(t *testing.T) {
		server := newTestServer(Options{Readings: fakeReadings{}})
		values, level, err := server.GetLastReading()
		require.Nil(t, err)
		assert.Empty(t, values)
		assert.NotNil(t, values)
		assert.Equal(t, uint32(0), level)
	})

	t.Run("reading and level", func(t *testing.T) {
		server := newTestServer(Options{Readings: fakeReadings{
			ev:       sensor.Event{Values: []float64{50, 3}},
			hasEv:    true,
			level:    135,
			hasLevel: true,
		}})
		values, level, err := server.GetLastReading()
		require.Nil(t, err)
		assert.Equal(t, []float64{50, 3}, values)
		assert.Equal(t, uint32(135), level)
	})

	t.Run("no readings source", func(t *testing.T) {
		server := newTestServer(Options{})
		values, level, err := server.GetLastReading()
		require.Nil(t, err)
		assert.Empty(t, values)
		assert.Equal(t, uint32(0), level)
	})
}

func TestServer_ListDisplays(t *testing.T) {
	manager := &mockDisplayManager{
		displays: []hid.DeviceInfo{
			{Serial: "ABC123", Product: "Apple Studio Display"},
			{Serial: "DEF456", Product: "Apple Studio Display"},
		},
	}
	server := newTestServer(Options{Displays: manager})

	result, err := server.ListDisplays()
	require.Nil(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, DisplayInfo{Serial: "ABC123", ProductName: "Apple Studio Display"}, result[0])
	assert.Equal(t, DisplayInfo{Serial: "DEF456", ProductName: "Apple Studio Display"}, result[1])
}

func TestServer_ListDisplays_NoManager(t *testing.T) {
	server := newTestServer(Options{})
	result, err := server.ListDisplays()
	require.Nil(t, err)
	assert.Empty(t, result)
}

func TestServer_SetDisplayBrightness(t *testing.T) {
	manager := &mockDisplayManager{
		displayMap: map[string]*hid.Display{"ABC123": newMockDisplay(t, "ABC123", nil)},
	}
	server := newTestServer(Options{Displays: manager})

	assert.Nil(t, server.SetDisplayBrightness("ABC123", 75))
	assert.Nil(t, server.SetDisplayBrightness("ABC123", 150))
}

func TestServer_SetDisplayBrightness_Errors(t *testing.T) {
	t.Run("no manager", func(t *testing.T) {
		server := newTestServer(Options{})
		err := server.SetDisplayBrightness("ABC123", 50)
		require.NotNil(t, err)
		assert.Contains(t, err.Error(), ErrNoDisplayManager.Error())
	})

	t.Run("empty serial", func(t *testing.T) {
		server := newTestServer(Options{Displays: &mockDisplayManager{}})
		err := server.SetDisplayBrightness("", 50)
		require.NotNil(t, err)
		assert.Contains(t, err.Error(), ErrEmptySerial.Error())
	})

	t.Run("unknown display", func(t *testing.T) {
		server := newTestServer(Options{Displays: &mockDisplayManager{}})
		assert.NotNil(t, server.SetDisplayBrightness("missing", 50))
	})
}

func TestServer_SetDisplayBrightness_DeviceGoneTriggersRecovery(t *testing.T) {
	manager := &mockDisplayManager{
		displayMap: map[string]*hid.Display{"ABC123": newMockDisplay(t, "ABC123", syscall.ENODEV)},
	}
	server := newTestServer(Options{Displays: manager})

	called := make(chan string, 1)
	server.SetDeviceErrorHandler(func(serial string, err error) {
		called <- serial
	})

	assert.NotNil(t, server.SetDisplayBrightness("ABC123", 50))

	select {
	case serial := <-called:
		assert.Equal(t, "ABC123", serial)
	case <-time.After(time.Second):
		t.Fatal("handler was not called within timeout")
	}
}

func TestServer_RateLimiting(t *testing.T) {
	server := newTestServer(Options{})

	var rateLimitHit bool
	for i := 0; i < 20; i++ {
		if _, err := server.ToggleAutoBrightness(); err != nil {
			rateLimitHit = true
			assert.Contains(t, err.Error(), "rate limit exceeded")
			break
		}
	}
	assert.True(t, rateLimitHit, "rate limiter should have been triggered")

	// Reads are never limited.
	_, err := server.GetAutoBrightness()
	assert.Nil(t, err)
}

func TestServer_handleDeviceError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		triggered bool
	}{
		{"nil", nil, false},
		{"generic", errors.New("random error"), false},
		{"ENODEV", syscall.ENODEV, true},
		{"EIO", syscall.EIO, true},
		{"message", errors.New("ioctl: No such device"), true},
		{"closed", hid.ErrDisplayClosed, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := newTestServer(Options{})
			called := make(chan struct{}, 1)
			server.SetDeviceErrorHandler(func(string, error) {
				called <- struct{}{}
			})

			assert.Equal(t, tt.triggered, server.handleDeviceError("ABC123", tt.err))

			if tt.triggered {
				select {
				case <-called:
				case <-time.After(time.Second):
					t.Fatal("handler was not called within timeout")
				}
			}
		})
	}
}

func TestServer_handleDeviceError_NilHandler(t *testing.T) {
	server := newTestServer(Options{})
	assert.True(t, server.handleDeviceError("ABC123", syscall.ENODEV))
}

func TestServer_WatchFlags(t *testing.T) {
	brightnessFlag := state.NewFlag(false)
	themeFlag := state.NewFlag(false)
	server := newTestServer(Options{AutoBrightness: brightnessFlag, AutoTheme: themeFlag})

	cancels := server.watchFlags()
	assert.Len(t, cancels, 2)

	// Emission is a no-op without a connection.
	assert.NotPanics(t, func() {
		brightnessFlag.Toggle()
		themeFlag.Toggle()
	})

	for _, cancel := range cancels {
		cancel()
	}
}

func TestServer_ConcurrentSetDeviceErrorHandler(t *testing.T) {
	server := newTestServer(Options{})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			server.SetDeviceErrorHandler(func(string, error) {})
		}()
		go func() {
			defer wg.Done()
			server.handleDeviceError("ABC123", syscall.ENODEV)
		}()
	}
	wg.Wait()
}

func TestServer_ConcurrentStopAndEmit(t *testing.T) {
	server := newTestServer(Options{})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			server.EmitBrightnessApplied(42, brightness.Compute(42))
		}()
	}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			server.EmitDisplayAdded("ABC123", "Test Display")
			server.EmitDisplayRemoved("ABC123")
		}()
	}
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = server.Stop()
		}()
	}
	wg.Wait()
}
