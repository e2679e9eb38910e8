// SPDX-License-Identifier: GPL-3.0-only

package sensor_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shini4i/lightnight-daemon/internal/sensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeDevice creates a fake IIO device directory with the given files.
func writeDevice(t *testing.T, root, dev string, files map[string]string) string {
	t.Helper()
	dir := filepath.Join(root, dev)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content+"\n"), 0o644))
	}
	return dir
}

func setValue(t *testing.T, dir, file, value string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(value+"\n"), 0o644))
}

func TestIIOSource_List(t *testing.T) {
	root := t.TempDir()
	writeDevice(t, root, "iio:device0", map[string]string{
		"name":             "accel_3d",
		"in_accel_x_raw":   "12",
		"in_accel_y_raw":   "-3",
		"in_accel_x_scale": "0.1",
	})
	writeDevice(t, root, "iio:device1", map[string]string{
		"name":                  "back_als_str",
		"in_intensity_ir_raw":   "20",
		"in_intensity_both_raw": "40",
		"in_illuminance_input":  "55.5",
		"in_illuminance_raw":    "555",
	})
	writeDevice(t, root, "iio:device2", map[string]string{
		"name":               "acpi-als",
		"in_illuminance_raw": "30",
	})
	writeDevice(t, root, "trigger0", map[string]string{
		"name": "not-a-device",
	})

	src := sensor.NewIIOSource(sensor.WithRoot(root))
	descs, err := src.List()
	require.NoError(t, err)
	require.Len(t, descs, 2, "devices without light channels are skipped")

	assert.Equal(t, "back_als_str", descs[0].Name)
	assert.Equal(t, sensor.TypeIlluminance, descs[0].Type)
	assert.Equal(t, filepath.Join(root, "iio:device1"), descs[0].Path)
	assert.Equal(t, []string{"in_illuminance", "in_intensity_both", "in_intensity_ir"}, descs[0].Channels)

	assert.Equal(t, "acpi-als", descs[1].Name)
	assert.Equal(t, []string{"in_illuminance"}, descs[1].Channels)
}

func TestIIOSource_List_MissingRoot(t *testing.T) {
	src := sensor.NewIIOSource(sensor.WithRoot(filepath.Join(t.TempDir(), "absent")))
	descs, err := src.List()
	require.NoError(t, err)
	assert.Empty(t, descs)
}

func TestIIOSource_Rescan(t *testing.T) {
	root := t.TempDir()
	writeDevice(t, root, "iio:device0", map[string]string{
		"name":               "acpi-als",
		"in_illuminance_raw": "30",
	})
	writeDevice(t, root, "iio:device1", map[string]string{
		"name":                "back_als_str",
		"in_intensity_ir_raw": "20",
	})

	src := sensor.NewIIOSource(sensor.WithRoot(root), sensor.WithSelector(sensor.FromConfig("back_als_str", "")))

	_, ok := src.Selected()
	assert.False(t, ok, "nothing selected before the first scan")

	desc, ok := src.Rescan()
	require.True(t, ok)
	assert.Equal(t, "back_als_str", desc.Name)
	assert.Equal(t, sensor.TypeIntensity, desc.Type)

	selected, ok := src.Selected()
	require.True(t, ok)
	assert.Equal(t, desc, selected)
}

func TestIIOSource_Rescan_NotFound(t *testing.T) {
	root := t.TempDir()
	writeDevice(t, root, "iio:device0", map[string]string{
		"name":               "acpi-als",
		"in_illuminance_raw": "30",
	})

	src := sensor.NewIIOSource(sensor.WithRoot(root), sensor.WithSelector(sensor.ByName("front_als")))
	_, ok := src.Rescan()
	assert.False(t, ok)

	_, _, err := src.Poll()
	assert.ErrorIs(t, err, sensor.ErrNoSensor)
}

func TestIIOSource_Poll(t *testing.T) {
	root := t.TempDir()
	dir := writeDevice(t, root, "iio:device0", map[string]string{
		"name":                  "acpi-als",
		"in_illuminance_raw":    "30",
		"in_illuminance_scale":  "0.5",
		"in_illuminance_offset": "10",
		"in_intensity_ir_input": "7",
	})

	src := sensor.NewIIOSource(sensor.WithRoot(root))
	defer src.Close()
	_, ok := src.Rescan()
	require.True(t, ok)

	r := &recorder{}
	src.Subscribe(r)

	ev, published, err := src.Poll()
	require.NoError(t, err)
	assert.True(t, published, "first reading is always published")
	assert.Equal(t, []float64{20, 7}, ev.Values) // (30 + 10) * 0.5
	assert.Equal(t, 20.0, ev.Primary())
	assert.Equal(t, "acpi-als", ev.Sensor.Name)

	_, published, err = src.Poll()
	require.NoError(t, err)
	assert.False(t, published, "unchanged reading is not published")

	setValue(t, dir, "in_illuminance_raw", "90")
	ev, published, err = src.Poll()
	require.NoError(t, err)
	assert.True(t, published)
	assert.Equal(t, 50.0, ev.Primary())

	require.Eventually(t, func() bool { return r.count() >= 1 && r.last().Primary() == 50.0 }, time.Second, 5*time.Millisecond)
}

func TestIIOSource_Poll_InvalidValue(t *testing.T) {
	root := t.TempDir()
	writeDevice(t, root, "iio:device0", map[string]string{
		"name":               "acpi-als",
		"in_illuminance_raw": "garbage",
	})

	src := sensor.NewIIOSource(sensor.WithRoot(root))
	_, ok := src.Rescan()
	require.True(t, ok)

	_, published, err := src.Poll()
	assert.False(t, published)
	assert.ErrorIs(t, err, sensor.ErrInvalidChannel)
}

func TestIIOSource_Run(t *testing.T) {
	root := t.TempDir()
	src := sensor.NewIIOSource(sensor.WithRoot(root), sensor.WithInterval(10*time.Millisecond))
	defer src.Close()

	r := &recorder{}
	src.Subscribe(r)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		src.Run(ctx)
		close(done)
	}()

	// No sensor yet: nothing is delivered.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 0, r.count())

	// The sensor shows up later and is picked up by the polling loop.
	writeDevice(t, root, "iio:device0", map[string]string{
		"name":                 "acpi-als",
		"in_illuminance_input": "42",
	})
	require.Eventually(t, func() bool { return r.count() >= 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 42.0, r.last().Primary())

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
