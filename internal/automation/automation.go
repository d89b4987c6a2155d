// Package automation injects input and reads desktop state on behalf of
// remote commands.
package automation

import (
	"context"
	"fmt"
	"strings"
)

// Point is a screen coordinate
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Size is a screen dimension
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Input drives the pointer and keyboard
type Input interface {
	// Click presses button ("left", "right", "middle") at the given point,
	// or at the current position when at is nil
	Click(button string, double bool, at *Point) error

	// MoveCursor moves the pointer
	MoveCursor(x, y int) error

	// DragTo holds button while moving from the current position to x, y
	DragTo(x, y int, button string) error

	// TypeText types a string
	TypeText(text string) error

	// PressKey taps a single key
	PressKey(key string) error

	// Hotkey taps the last key while holding the preceding ones
	Hotkey(keys []string) error

	// Scroll scrolls by amount notches, positive up, optionally moving first
	Scroll(amount int, at *Point) error

	// CursorPosition returns the pointer position
	CursorPosition() (Point, error)

	// ScreenSize returns the primary screen size
	ScreenSize() (Size, error)
}

// Clipboard reads and writes the system clipboard
type Clipboard interface {
	Read() (string, error)
	Write(text string) error
}

// Screenshotter captures the screen as PNG
type Screenshotter interface {
	Screenshot(ctx context.Context, maxWidth int) ([]byte, error)
}

// Desktop bundles the collaborators a command dispatcher needs.
// Any member may be nil when the platform lacks it.
type Desktop struct {
	Input      Input
	Clipboard  Clipboard
	Screenshot Screenshotter
	Commands   *CommandRunner
}

// ValidButton normalizes a mouse button name
func ValidButton(button string) (string, error) {
	switch b := strings.ToLower(strings.TrimSpace(button)); b {
	case "", "left":
		return "left", nil
	case "right", "middle":
		return b, nil
	default:
		return "", fmt.Errorf("unknown mouse button %q", button)
	}
}
