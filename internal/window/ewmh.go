package window

import (
	"context"
	"encoding/binary"
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"
	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/logger"
)

// clientSource reads the window manager's client list and window titles
type clientSource interface {
	ClientList() ([]xproto.Window, error)
	Title(win xproto.Window) string
	Close() error
}

// EWMHLister lists windows from the root window's _NET_CLIENT_LIST,
// for desktops without the listing command installed. Each call opens
// and closes its own X connection.
type EWMHLister struct {
	open func() (clientSource, error)
}

// NewEWMHLister creates a lister on the default display
func NewEWMHLister() *EWMHLister {
	return &EWMHLister{
		open: func() (clientSource, error) { return newX11Clients() },
	}
}

// ListStubWindows returns one stub per titled client, in stacking-list
// order. Any failure yields an empty list.
func (l *EWMHLister) ListStubWindows(ctx context.Context) []*element.Element {
	log := logger.WithComponent("window-ewmh")
	stubs := []*element.Element{}

	src, err := l.open()
	if err != nil {
		log.Debug().Err(err).Msg("X server unavailable")
		return stubs
	}
	defer src.Close()

	clients, err := src.ClientList()
	if err != nil {
		log.Debug().Err(err).Msg("Failed to read client list")
		return stubs
	}

	for _, win := range clients {
		if ctx.Err() != nil {
			break
		}
		// untitled clients are usually docks and desktop windows
		if title := src.Title(win); title != "" {
			stubs = append(stubs, element.Stub(title))
		}
	}

	log.Debug().Int("clients", len(clients)).Int("windows", len(stubs)).Msg("Listed EWMH clients")
	return stubs
}

// x11Clients reads EWMH properties over an xgb connection
type x11Clients struct {
	conn  *xgb.Conn
	root  xproto.Window
	atoms map[string]xproto.Atom
}

func newX11Clients() (*x11Clients, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}
	return &x11Clients{
		conn:  conn,
		root:  xproto.Setup(conn).DefaultScreen(conn).Root,
		atoms: make(map[string]xproto.Atom),
	}, nil
}

func (c *x11Clients) Close() error {
	c.conn.Close()
	return nil
}

// atom gets an atom ID by name
func (c *x11Clients) atom(name string) (xproto.Atom, error) {
	if a, ok := c.atoms[name]; ok {
		return a, nil
	}
	reply, err := xproto.InternAtom(c.conn, true, uint16(len(name)), name).Reply()
	if err != nil {
		return 0, err
	}
	c.atoms[name] = reply.Atom
	return reply.Atom, nil
}

// property gets a property value as raw bytes
func (c *x11Clients) property(win xproto.Window, name string) ([]byte, error) {
	a, err := c.atom(name)
	if err != nil {
		return nil, err
	}
	if a == xproto.AtomNone {
		return nil, fmt.Errorf("%s is not supported by the window manager", name)
	}
	reply, err := xproto.GetProperty(c.conn, false, win, a,
		xproto.GetPropertyTypeAny, 0, (1<<32)-1).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (c *x11Clients) ClientList() ([]xproto.Window, error) {
	value, err := c.property(c.root, "_NET_CLIENT_LIST")
	if err != nil {
		return nil, fmt.Errorf("failed to get _NET_CLIENT_LIST: %w", err)
	}
	return decodeWindowIDs(value), nil
}

// Title prefers the UTF-8 _NET_WM_NAME over the legacy WM_NAME
func (c *x11Clients) Title(win xproto.Window) string {
	for _, name := range []string{"_NET_WM_NAME", "WM_NAME"} {
		if value, err := c.property(win, name); err == nil && len(value) > 0 {
			return string(value)
		}
	}
	return ""
}

// decodeWindowIDs parses a WINDOW[] property; xgb connects little-endian
func decodeWindowIDs(value []byte) []xproto.Window {
	ids := make([]xproto.Window, 0, len(value)/4)
	for i := 0; i+4 <= len(value); i += 4 {
		ids = append(ids, xproto.Window(binary.LittleEndian.Uint32(value[i:])))
	}
	return ids
}

// Lister produces stub windows
type Lister interface {
	ListStubWindows(ctx context.Context) []*element.Element
}

// Chain returns a lister that consults each lister in turn and yields the
// first non-empty list
func Chain(listers ...Lister) Lister {
	return chain(listers)
}

type chain []Lister

func (c chain) ListStubWindows(ctx context.Context) []*element.Element {
	for _, l := range c {
		if stubs := l.ListStubWindows(ctx); len(stubs) > 0 {
			return stubs
		}
	}
	return []*element.Element{}
}
