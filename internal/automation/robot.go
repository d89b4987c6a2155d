package automation

import (
	"fmt"

	"github.com/go-vgo/robotgo"
)

// robotButton maps button names onto robotgo's, which calls the middle button "center"
func robotButton(button string) (string, error) {
	btn, err := ValidButton(button)
	if err != nil {
		return "", err
	}
	if btn == "middle" {
		return "center", nil
	}
	return btn, nil
}

// RobotInput implements Input and Clipboard with robotgo
type RobotInput struct{}

// NewRobotInput creates a robotgo-backed input driver
func NewRobotInput() *RobotInput {
	return &RobotInput{}
}

func (r *RobotInput) Click(button string, double bool, at *Point) error {
	btn, err := robotButton(button)
	if err != nil {
		return err
	}
	if at != nil {
		robotgo.Move(at.X, at.Y)
	}
	robotgo.Click(btn, double)
	return nil
}

func (r *RobotInput) MoveCursor(x, y int) error {
	robotgo.Move(x, y)
	return nil
}

func (r *RobotInput) DragTo(x, y int, button string) error {
	btn, err := robotButton(button)
	if err != nil {
		return err
	}
	if err := robotgo.Toggle(btn); err != nil {
		return fmt.Errorf("failed to press %s button: %w", btn, err)
	}
	robotgo.MoveSmooth(x, y)
	if err := robotgo.Toggle(btn, "up"); err != nil {
		return fmt.Errorf("failed to release %s button: %w", btn, err)
	}
	return nil
}

func (r *RobotInput) TypeText(text string) error {
	robotgo.TypeStr(text)
	return nil
}

func (r *RobotInput) PressKey(key string) error {
	if key == "" {
		return fmt.Errorf("key must not be empty")
	}
	return robotgo.KeyTap(key)
}

func (r *RobotInput) Hotkey(keys []string) error {
	switch len(keys) {
	case 0:
		return fmt.Errorf("hotkey needs at least one key")
	case 1:
		return robotgo.KeyTap(keys[0])
	default:
		return robotgo.KeyTap(keys[len(keys)-1], keys[:len(keys)-1])
	}
}

func (r *RobotInput) Scroll(amount int, at *Point) error {
	if at != nil {
		robotgo.Move(at.X, at.Y)
	}
	switch {
	case amount > 0:
		robotgo.ScrollDir(amount, "up")
	case amount < 0:
		robotgo.ScrollDir(-amount, "down")
	}
	return nil
}

func (r *RobotInput) CursorPosition() (Point, error) {
	x, y := robotgo.Location()
	return Point{X: x, Y: y}, nil
}

func (r *RobotInput) ScreenSize() (Size, error) {
	w, h := robotgo.GetScreenSize()
	if w <= 0 || h <= 0 {
		return Size{}, fmt.Errorf("screen size unavailable")
	}
	return Size{Width: w, Height: h}, nil
}

// Read returns the clipboard text
func (r *RobotInput) Read() (string, error) {
	return robotgo.ReadAll()
}

// Write replaces the clipboard text
func (r *RobotInput) Write(text string) error {
	return robotgo.WriteAll(text)
}
