// Package accessibility captures the desktop accessibility object graph
// into element trees.
package accessibility

import (
	"context"
	"errors"

	"github.com/bryanchriswhite/deskctl/internal/element"
)

// ErrBackendUnavailable is returned when the desktop accessibility root
// cannot be acquired. It is the only hard failure of a capture.
var ErrBackendUnavailable = errors.New("accessibility backend unavailable")

// Registry opens capture sessions against an accessibility backend
type Registry interface {
	// Open acquires the desktop root for one capture. The returned
	// session must be closed when the capture finishes.
	Open(ctx context.Context) (Session, error)
}

// Session holds the desktop root for the duration of a capture
type Session interface {
	// Desktop returns the root whose children are applications
	Desktop() Accessible

	// Close releases the backend connection
	Close() error
}

// Accessible is one node in the backend object graph.
// Every read may fail independently of the others.
type Accessible interface {
	// RoleName returns the backend's role label
	RoleName(ctx context.Context) (string, error)

	// Name returns the node's accessible name
	Name(ctx context.Context) (string, error)

	// ChildCount returns the number of reported children
	ChildCount(ctx context.Context) (int, error)

	// ChildAt returns the child at index i
	ChildAt(ctx context.Context, i int) (Accessible, error)

	// QueryText returns the text capability if the node implements it
	QueryText(ctx context.Context) (Text, bool)

	// QueryValue returns the scalar value capability if the node implements it
	QueryValue(ctx context.Context) (Value, bool)

	// QueryComponent returns the geometry capability if the node implements it
	QueryComponent(ctx context.Context) (Component, bool)
}

// Text exposes a node's text content
type Text interface {
	Contents(ctx context.Context) (string, error)
}

// Value exposes a node's current scalar value
type Value interface {
	Current(ctx context.Context) (float64, error)
}

// Component exposes a node's screen extents
type Component interface {
	Extents(ctx context.Context) (element.Geometry, error)
}
