// Package element defines the portable UI element tree produced by a
// desktop capture.
package element

import (
	"encoding/json"
	"strings"
)

// Element is one node of a captured accessibility tree.
//
// Role is lower-case. Title and Value are empty when unavailable and
// geometry is zero when the backend cannot report it. Children are
// owned exclusively by their parent and kept in backend order.
type Element struct {
	Role     string     `json:"role"`
	Title    string     `json:"title"`
	Value    string     `json:"value"`
	X        int        `json:"x"`
	Y        int        `json:"y"`
	Width    int        `json:"width"`
	Height   int        `json:"height"`
	Children []*Element `json:"children"`
}

// Geometry is an absolute screen rectangle
type Geometry struct {
	X, Y, Width, Height int
}

// Geometry returns the element's screen rectangle
func (e *Element) Geometry() Geometry {
	return Geometry{X: e.X, Y: e.Y, Width: e.Width, Height: e.Height}
}

// Stub returns a childless window element carrying only a title, used
// when the window list comes from the window manager rather than the
// accessibility tree.
func Stub(title string) *Element {
	return &Element{
		Role:     "window",
		Title:    title,
		Children: []*Element{},
	}
}

// MarshalJSON always emits children as an array, never null.
func (e Element) MarshalJSON() ([]byte, error) {
	type plain Element
	p := plain(e)
	if p.Children == nil {
		p.Children = []*Element{}
	}
	return json.Marshal(p)
}

// UnmarshalJSON normalizes a missing or null children list to empty.
func (e *Element) UnmarshalJSON(data []byte) error {
	type plain Element
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if p.Children == nil {
		p.Children = []*Element{}
	}
	*e = Element(p)
	return nil
}

// ContainsValue reports whether this element or any descendant has a
// non-empty value or title containing q, compared case-insensitively. Nodes are
// visited pre-order: own value, own title, then children in order.
func (e *Element) ContainsValue(q string) bool {
	return e.FindValue(q) != nil
}

// FindValue returns the first element, pre-order, whose value or title
// contains q case-insensitively.
func (e *Element) FindValue(q string) *Element {
	return e.find(strings.ToLower(q))
}

func (e *Element) find(lq string) *Element {
	if e == nil {
		return nil
	}
	if (e.Value != "" && strings.Contains(strings.ToLower(e.Value), lq)) ||
		(e.Title != "" && strings.Contains(strings.ToLower(e.Title), lq)) {
		return e
	}
	for _, c := range e.Children {
		if hit := c.find(lq); hit != nil {
			return hit
		}
	}
	return nil
}

// Walk visits e and its descendants pre-order until fn returns false.
func (e *Element) Walk(fn func(*Element) bool) bool {
	if e == nil {
		return true
	}
	if !fn(e) {
		return false
	}
	for _, c := range e.Children {
		if !c.Walk(fn) {
			return false
		}
	}
	return true
}

// Count returns the number of elements in the subtree rooted at e.
func (e *Element) Count() int {
	n := 0
	e.Walk(func(*Element) bool {
		n++
		return true
	})
	return n
}
