// Package systemd stops and inspects systemd units over D-Bus.
package systemd

import (
	"context"
	"fmt"

	"github.com/coreos/go-systemd/v22/dbus"
)

// jobDone is the job result systemd reports on success.
const jobDone = "done"

// Manager handles systemd unit operations via D-Bus.
type Manager struct {
	conn *dbus.Conn
}

// NewManager creates a manager on the user bus, or the system bus when
// user is false.
func NewManager(ctx context.Context, user bool) (*Manager, error) {
	var (
		conn *dbus.Conn
		err  error
	)
	if user {
		conn, err = dbus.NewUserConnectionContext(ctx)
	} else {
		conn, err = dbus.NewSystemConnectionContext(ctx)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &Manager{conn: conn}, nil
}

// UnitState retrieves the ActiveState property of a unit.
func (m *Manager) UnitState(ctx context.Context, name string) (string, error) {
	prop, err := m.conn.GetUnitPropertyContext(ctx, name, "ActiveState")
	if err != nil {
		return "", err
	}
	if s, ok := prop.Value.Value().(string); ok {
		return s, nil
	}
	return prop.Value.String(), nil
}

// StopUnit stops a unit using the replace mode and waits for the job.
func (m *Manager) StopUnit(ctx context.Context, name string) error {
	ch := make(chan string, 1)
	if _, err := m.conn.StopUnitContext(ctx, name, "replace", ch); err != nil {
		return fmt.Errorf("failed to stop %s: %w", name, err)
	}
	select {
	case result := <-ch:
		return jobResultError(name, result)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cleanly closes the D-Bus connection.
func (m *Manager) Close() {
	if m.conn != nil {
		m.conn.Close()
	}
}

func jobResultError(name, result string) error {
	if result == jobDone {
		return nil
	}
	return fmt.Errorf("stop job for %s finished with result %q", name, result)
}
