// Package remote drives a deskctl server over its WebSocket command channel.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bryanchriswhite/deskctl/internal/element"
	"github.com/bryanchriswhite/deskctl/internal/logger"
	"github.com/gorilla/websocket"
)

// DefaultPort is used when an address names no port
const DefaultPort = 8080

// ErrCommandFailed wraps the error message of an unsuccessful reply
var ErrCommandFailed = errors.New("remote command failed")

// Interface is the remote view of a controlled desktop
type Interface interface {
	OS() string
	GetWindows(ctx context.Context) ([]*element.Element, error)
	FindWindowByTitle(ctx context.Context, title string) (*element.Element, error)
	FindWindowByRole(ctx context.Context, role string) ([]*element.Element, error)
	FindWindowByValue(ctx context.Context, value string) (*element.Element, error)
	Run(ctx context.Context, command string, params interface{}) (json.RawMessage, error)
	Close() error
}

// NewInterface creates a client for the desktop at address, selected by
// the remote's operating system
func NewInterface(osType, address string, opts ...Option) (Interface, error) {
	switch osType {
	case "linux", "macos":
		return NewClient(osType, address, opts...), nil
	default:
		return nil, fmt.Errorf("unsupported OS type: %q", osType)
	}
}

// Client sends commands one at a time over a lazily dialed connection.
// A connection that fails is dropped and redialed by the next command.
type Client struct {
	os      string
	url     string
	timeout time.Duration
	dialer  *websocket.Dialer

	mu     sync.Mutex
	conn   *websocket.Conn
	nextID int64
}

// Option configures a Client
type Option func(*Client)

// WithTimeout bounds commands whose context carries no deadline
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// NewClient creates a client; no connection is made until the first command
func NewClient(osType, address string, opts ...Option) *Client {
	c := &Client{
		os:      osType,
		url:     wsURL(address),
		timeout: 30 * time.Second,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wsURL turns host, host:port or an http(s)/ws(s) URL into the /ws endpoint
func wsURL(address string) string {
	if u, err := url.Parse(address); err == nil && u.Host != "" {
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
		if u.Path == "" || u.Path == "/" {
			u.Path = "/ws"
		}
		return u.String()
	}

	host := strings.TrimSuffix(address, "/")
	if _, _, err := net.SplitHostPort(host); err != nil {
		host = net.JoinHostPort(host, strconv.Itoa(DefaultPort))
	}
	return "ws://" + host + "/ws"
}

// OS returns the operating system the client was created for
func (c *Client) OS() string { return c.os }

// URL returns the WebSocket endpoint
func (c *Client) URL() string { return c.url }

type request struct {
	ID      int64       `json:"id"`
	Command string      `json:"command"`
	Params  interface{} `json:"params,omitempty"`
}

type reply struct {
	ID      *int64 `json:"id"`
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// Run sends one command and returns its raw JSON reply. An unsuccessful
// reply is returned along with an error wrapping ErrCommandFailed.
func (c *Client) Run(ctx context.Context, command string, params interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	conn, err := c.connect(ctx)
	if err != nil {
		return nil, err
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.timeout)
	}
	_ = conn.SetWriteDeadline(deadline)
	_ = conn.SetReadDeadline(deadline)

	c.nextID++
	id := c.nextID
	if err := conn.WriteJSON(request{ID: id, Command: command, Params: params}); err != nil {
		c.drop()
		return nil, fmt.Errorf("failed to send %s: %w", command, err)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.drop()
			return nil, fmt.Errorf("failed to read %s reply: %w", command, err)
		}

		var r reply
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("invalid %s reply: %w", command, err)
		}
		if r.ID != nil && *r.ID != id {
			// reply to an earlier command that gave up waiting
			continue
		}
		if !r.Success {
			return data, fmt.Errorf("%w: %s: %s", ErrCommandFailed, command, r.Error)
		}
		return data, nil
	}
}

func (c *Client) connect(ctx context.Context) (*websocket.Conn, error) {
	if c.conn != nil {
		return c.conn, nil
	}
	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", c.url, err)
	}
	logger.WithComponent("remote").Debug().Str("url", c.url).Msg("Connected")
	c.conn = conn
	return conn, nil
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

// Close closes the connection, if any
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := c.conn.Close()
	c.conn = nil
	return err
}

// GetWindows lists the remote's top-level windows
func (c *Client) GetWindows(ctx context.Context) ([]*element.Element, error) {
	return c.windows(ctx, "get_windows", nil)
}

// FindWindowByTitle returns the first window whose title contains title
func (c *Client) FindWindowByTitle(ctx context.Context, title string) (*element.Element, error) {
	return c.window(ctx, "find_window_by_title", map[string]string{"title": title})
}

// FindWindowByRole returns the windows with the given role
func (c *Client) FindWindowByRole(ctx context.Context, role string) ([]*element.Element, error) {
	return c.windows(ctx, "find_window_by_role", map[string]string{"role": role})
}

// FindWindowByValue returns the first window holding value in its tree
func (c *Client) FindWindowByValue(ctx context.Context, value string) (*element.Element, error) {
	return c.window(ctx, "find_window_by_value", map[string]string{"value": value})
}

func (c *Client) windows(ctx context.Context, command string, params interface{}) ([]*element.Element, error) {
	data, err := c.Run(ctx, command, params)
	if err != nil {
		return nil, err
	}
	var body struct {
		Windows []*element.Element `json:"windows"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("invalid %s reply: %w", command, err)
	}
	if body.Windows == nil {
		body.Windows = []*element.Element{}
	}
	return body.Windows, nil
}

func (c *Client) window(ctx context.Context, command string, params interface{}) (*element.Element, error) {
	data, err := c.Run(ctx, command, params)
	if err != nil {
		return nil, err
	}
	var body struct {
		Window *element.Element `json:"window"`
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("invalid %s reply: %w", command, err)
	}
	return body.Window, nil
}
