// Package avatar tracks the controllable marker and its hit tests
package avatar

import "github.com/lixenwraith/simon-task/vmath"

const (
	// DefaultSpeed is the per-frame step in normalized display units
	DefaultSpeed = 0.01
	DefaultSize  = 0.1
)

// Avatar is a box moved vertically in discrete steps
// No clamping: leaving the screen is observable through IsOnScreen
type Avatar struct {
	X, Y          float64
	Width, Height float64
	Speed         float64
}

// New returns an avatar at the origin; non-positive speed falls back to DefaultSpeed
func New(width, height, speed float64) *Avatar {
	if speed <= 0 {
		speed = DefaultSpeed
	}
	return &Avatar{Width: width, Height: height, Speed: speed}
}

func (a *Avatar) MoveUp()   { a.Y += a.Speed }
func (a *Avatar) MoveDown() { a.Y -= a.Speed }

// MoveTo places the avatar center, used when a trial respawns it
func (a *Avatar) MoveTo(x, y float64) {
	a.X, a.Y = x, y
}

func (a *Avatar) Rect() vmath.Rect {
	return vmath.Rect{CX: a.X, CY: a.Y, W: a.Width, H: a.Height}
}

// IsOnScreen reports whether the whole bounding box is inside [-1, 1] on both axes
func (a *Avatar) IsOnScreen() bool {
	return a.Rect().OnScreen()
}

// IsOverlapping tests bounding-box intersection with another rectangle
func (a *Avatar) IsOverlapping(other vmath.Rect) bool {
	return a.Rect().Overlaps(other)
}
