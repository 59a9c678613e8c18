package vmath

// Screen bounds in normalized display units
const (
	ScreenMin = -1.0
	ScreenMax = 1.0
)

// Rect is an axis-aligned box described by its center and size
// Y grows upward: Top = CY + H/2, Bottom = CY - H/2
type Rect struct {
	CX, CY float64
	W, H   float64
}

func (r Rect) Left() float64   { return r.CX - r.W/2 }
func (r Rect) Right() float64  { return r.CX + r.W/2 }
func (r Rect) Top() float64    { return r.CY + r.H/2 }
func (r Rect) Bottom() float64 { return r.CY - r.H/2 }

// Overlaps is the closed AABB intersection test; touching edges count as overlap
func (r Rect) Overlaps(o Rect) bool {
	return r.Left() <= o.Right() && o.Left() <= r.Right() &&
		r.Bottom() <= o.Top() && o.Bottom() <= r.Top()
}

// Within reports whether r lies entirely inside [lo, hi] on both axes
func (r Rect) Within(lo, hi float64) bool {
	return r.Left() >= lo && r.Right() <= hi &&
		r.Bottom() >= lo && r.Top() <= hi
}

// OnScreen is Within(ScreenMin, ScreenMax)
func (r Rect) OnScreen() bool {
	return r.Within(ScreenMin, ScreenMax)
}
