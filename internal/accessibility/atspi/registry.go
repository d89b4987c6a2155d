// Package atspi implements the accessibility backend over the AT-SPI2
// D-Bus protocol.
package atspi

import (
	"context"
	"fmt"
	"os"

	"github.com/bryanchriswhite/deskctl/internal/accessibility"
	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/godbus/dbus/v5"
)

const (
	a11yBusName      = "org.a11y.Bus"
	a11yBusPath      = "/org/a11y/bus"
	registryName     = "org.a11y.atspi.Registry"
	rootPath         = "/org/a11y/atspi/accessible/root"
	nullPath         = "/org/a11y/atspi/null"
	propertiesGet    = "org.freedesktop.DBus.Properties.Get"
	ifaceAccessible  = "org.a11y.atspi.Accessible"
	ifaceText        = "org.a11y.atspi.Text"
	ifaceValue       = "org.a11y.atspi.Value"
	ifaceComponent   = "org.a11y.atspi.Component"
	coordTypeScreen  = uint32(0)
	busAddressEnvVar = "AT_SPI_BUS_ADDRESS"
)

// Registry opens connections to the AT-SPI registry daemon
type Registry struct {
	busAddress string
}

// NewRegistry creates a registry. An empty busAddress is resolved per
// capture from $AT_SPI_BUS_ADDRESS or the org.a11y.Bus service.
func NewRegistry(busAddress string) *Registry {
	return &Registry{busAddress: busAddress}
}

// Open connects to the accessibility bus and returns a session rooted
// at the registry's desktop object
func (r *Registry) Open(ctx context.Context) (accessibility.Session, error) {
	addr, err := r.resolveAddress(ctx)
	if err != nil {
		return nil, err
	}

	conn, err := dbus.Connect(addr, dbus.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to accessibility bus: %w", err)
	}

	logger.WithComponent("atspi").Debug().
		Str("address", addr).
		Msg("Connected to accessibility bus")

	return &session{conn: conn}, nil
}

func (r *Registry) resolveAddress(ctx context.Context) (string, error) {
	if r.busAddress != "" {
		return r.busAddress, nil
	}
	if addr := os.Getenv(busAddressEnvVar); addr != "" {
		return addr, nil
	}
	return discoverBusAddress(ctx)
}

// discoverBusAddress asks the session bus where the accessibility bus lives
func discoverBusAddress(ctx context.Context) (string, error) {
	conn, err := dbus.ConnectSessionBus(dbus.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	var addr string
	obj := conn.Object(a11yBusName, dbus.ObjectPath(a11yBusPath))
	if err := obj.CallWithContext(ctx, a11yBusName+".GetAddress", 0).Store(&addr); err != nil {
		return "", fmt.Errorf("failed to get accessibility bus address: %w", err)
	}
	if addr == "" {
		return "", fmt.Errorf("accessibility bus reported an empty address")
	}
	return addr, nil
}

type session struct {
	conn *dbus.Conn
}

func (s *session) Desktop() accessibility.Accessible {
	return newNode(s.conn, registryName, rootPath)
}

func (s *session) Close() error {
	return s.conn.Close()
}
