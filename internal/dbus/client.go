// SPDX-License-Identifier: GPL-3.0-only

package dbus

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

// Caller is the subset of dbus.BusObject used by Client.
type Caller interface {
	CallWithContext(ctx context.Context, method string, flags dbus.Flags, args ...interface{}) *dbus.Call
}

// Status is a snapshot of the running daemon.
type Status struct {
	AutoBrightness bool
	AutoTheme      bool
	SensorName     string
	SensorType     string
	SensorFound    bool
	Values         []float64
	Level          uint32
}

// Client talks to a running daemon over the session bus.
type Client struct {
	conn *dbus.Conn
	obj  Caller
}

// Connect opens a session bus connection to the daemon.
func Connect() (*Client, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	return &Client{conn: conn, obj: conn.Object(ServiceName, ObjectPath)}, nil
}

// NewClient returns a client that issues calls through obj.
func NewClient(obj Caller) *Client {
	return &Client{obj: obj}
}

// Close releases the bus connection, if the client owns one.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) call(ctx context.Context, method string, args []interface{}, ret ...interface{}) error {
	call := c.obj.CallWithContext(ctx, InterfaceName+"."+method, 0, args...)
	if err := call.Store(ret...); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	return nil
}

// AutoBrightness reports whether automatic brightness is enabled.
func (c *Client) AutoBrightness(ctx context.Context) (bool, error) {
	var enabled bool
	err := c.call(ctx, "GetAutoBrightness", nil, &enabled)
	return enabled, err
}

// SetAutoBrightness enables or disables automatic brightness.
func (c *Client) SetAutoBrightness(ctx context.Context, enabled bool) error {
	return c.call(ctx, "SetAutoBrightness", []interface{}{enabled})
}

// ToggleAutoBrightness flips automatic brightness and returns the new value.
func (c *Client) ToggleAutoBrightness(ctx context.Context) (bool, error) {
	var enabled bool
	err := c.call(ctx, "ToggleAutoBrightness", nil, &enabled)
	return enabled, err
}

// AutoTheme reports whether the time-based theme is enabled.
func (c *Client) AutoTheme(ctx context.Context) (bool, error) {
	var enabled bool
	err := c.call(ctx, "GetAutoTheme", nil, &enabled)
	return enabled, err
}

// SetAutoTheme enables or disables the time-based theme.
func (c *Client) SetAutoTheme(ctx context.Context, enabled bool) error {
	return c.call(ctx, "SetAutoTheme", []interface{}{enabled})
}

// Status collects flags, sensor and last reading in one snapshot.
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	var err error

	if st.AutoBrightness, err = c.AutoBrightness(ctx); err != nil {
		return Status{}, err
	}
	if st.AutoTheme, err = c.AutoTheme(ctx); err != nil {
		return Status{}, err
	}
	if err := c.call(ctx, "GetSensor", nil, &st.SensorName, &st.SensorType, &st.SensorFound); err != nil {
		return Status{}, err
	}
	if err := c.call(ctx, "GetLastReading", nil, &st.Values, &st.Level); err != nil {
		return Status{}, err
	}
	return st, nil
}
