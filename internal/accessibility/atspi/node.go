package atspi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bryanchriswhite/deskctl/internal/accessibility"
	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/godbus/dbus/v5"
)

var errNullReference = errors.New("null accessible reference")

// reference is the (so) pair AT-SPI uses to address an accessible
type reference struct {
	Name string
	Path dbus.ObjectPath
}

func (r reference) isNull() bool {
	return r.Name == "" || r.Path == "" || r.Path == nullPath
}

// extents mirrors the (iiii) reply of Component.GetExtents
type extents struct {
	X, Y, Width, Height int32
}

// node is a remote accessible object
type node struct {
	conn *dbus.Conn
	dest string
	path dbus.ObjectPath

	ifacesOnce sync.Once
	ifaces     map[string]bool
}

func newNode(conn *dbus.Conn, dest string, path dbus.ObjectPath) *node {
	return &node{conn: conn, dest: dest, path: path}
}

func (n *node) object() dbus.BusObject {
	return n.conn.Object(n.dest, n.path)
}

func (n *node) call(ctx context.Context, method string, out interface{}, args ...interface{}) error {
	return n.object().CallWithContext(ctx, method, 0, args...).Store(out)
}

func (n *node) property(ctx context.Context, iface, name string) (dbus.Variant, error) {
	var v dbus.Variant
	if err := n.call(ctx, propertiesGet, &v, iface, name); err != nil {
		return dbus.Variant{}, fmt.Errorf("failed to get %s.%s: %w", iface, name, err)
	}
	return v, nil
}

func (n *node) RoleName(ctx context.Context) (string, error) {
	var role string
	if err := n.call(ctx, ifaceAccessible+".GetRoleName", &role); err != nil {
		return "", err
	}
	return role, nil
}

func (n *node) Name(ctx context.Context) (string, error) {
	v, err := n.property(ctx, ifaceAccessible, "Name")
	if err != nil {
		return "", err
	}
	return variantString(v)
}

func (n *node) ChildCount(ctx context.Context) (int, error) {
	v, err := n.property(ctx, ifaceAccessible, "ChildCount")
	if err != nil {
		return 0, err
	}
	count, err := variantInt(v)
	if err != nil {
		return 0, err
	}
	if count < 0 {
		return 0, fmt.Errorf("negative child count %d", count)
	}
	return count, nil
}

func (n *node) ChildAt(ctx context.Context, i int) (accessibility.Accessible, error) {
	var ref reference
	if err := n.call(ctx, ifaceAccessible+".GetChildAtIndex", &ref, int32(i)); err != nil {
		return nil, err
	}
	if ref.isNull() {
		return nil, errNullReference
	}
	return newNode(n.conn, ref.Name, ref.Path), nil
}

// implements reports whether the object advertises iface. The list is
// fetched once per node.
func (n *node) implements(ctx context.Context, iface string) bool {
	n.ifacesOnce.Do(func() {
		var names []string
		if err := n.call(ctx, ifaceAccessible+".GetInterfaces", &names); err != nil {
			return
		}
		n.ifaces = make(map[string]bool, len(names))
		for _, name := range names {
			n.ifaces[name] = true
		}
	})
	return n.ifaces[iface]
}

func (n *node) QueryText(ctx context.Context) (accessibility.Text, bool) {
	if !n.implements(ctx, ifaceText) {
		return nil, false
	}
	return textIface{n}, true
}

func (n *node) QueryValue(ctx context.Context) (accessibility.Value, bool) {
	if !n.implements(ctx, ifaceValue) {
		return nil, false
	}
	return valueIface{n}, true
}

func (n *node) QueryComponent(ctx context.Context) (accessibility.Component, bool) {
	if !n.implements(ctx, ifaceComponent) {
		return nil, false
	}
	return componentIface{n}, true
}

type textIface struct{ n *node }

func (t textIface) Contents(ctx context.Context) (string, error) {
	var text string
	if err := t.n.call(ctx, ifaceText+".GetText", &text, int32(0), int32(-1)); err != nil {
		return "", err
	}
	return text, nil
}

type valueIface struct{ n *node }

func (v valueIface) Current(ctx context.Context) (float64, error) {
	variant, err := v.n.property(ctx, ifaceValue, "CurrentValue")
	if err != nil {
		return 0, err
	}
	return variantFloat(variant)
}

type componentIface struct{ n *node }

func (c componentIface) Extents(ctx context.Context) (element.Geometry, error) {
	var e extents
	if err := c.n.call(ctx, ifaceComponent+".GetExtents", &e, coordTypeScreen); err != nil {
		return element.Geometry{}, err
	}
	return e.geometry(), nil
}

func (e extents) geometry() element.Geometry {
	return element.Geometry{
		X:      int(e.X),
		Y:      int(e.Y),
		Width:  int(e.Width),
		Height: int(e.Height),
	}
}

func variantString(v dbus.Variant) (string, error) {
	switch val := v.Value().(type) {
	case string:
		return val, nil
	case dbus.ObjectPath:
		return string(val), nil
	default:
		return "", fmt.Errorf("unexpected string type %s", v.Signature())
	}
}

func variantInt(v dbus.Variant) (int, error) {
	switch val := v.Value().(type) {
	case int32:
		return int(val), nil
	case int64:
		return int(val), nil
	case uint32:
		return int(val), nil
	case int16:
		return int(val), nil
	case uint16:
		return int(val), nil
	case byte:
		return int(val), nil
	default:
		return 0, fmt.Errorf("unexpected integer type %s", v.Signature())
	}
}

func variantFloat(v dbus.Variant) (float64, error) {
	switch val := v.Value().(type) {
	case float64:
		return val, nil
	case int32:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case uint32:
		return float64(val), nil
	default:
		return 0, fmt.Errorf("unexpected numeric type %s", v.Signature())
	}
}
