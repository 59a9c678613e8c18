package vmath

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFastRandSequence(t *testing.T) {
	r := NewFastRand(42)
	want := []uint64{11355432, 2889041884332, 781066217214251534}
	for i, w := range want {
		if got := r.Next(); got != w {
			t.Errorf("Next() #%d = %d, want %d", i, got, w)
		}
	}
}

func TestFastRandZeroSeed(t *testing.T) {
	// Zero maps to 1, which would otherwise be a fixed point
	a := NewFastRand(0)
	b := NewFastRand(1)
	assert.Equal(t, b.Next(), a.Next())
	assert.Equal(t, uint64(270369), NewFastRand(0).Next())
}

func TestFastRandShuffleGolden(t *testing.T) {
	items := []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}
	NewFastRand(42).Shuffle(len(items), func(i, j int) {
		items[i], items[j] = items[j], items[i]
	})
	assert.Equal(t, []int{4, 5, 3, 9, 0, 7, 1, 8, 6, 2}, items)
}

func TestFastRandRange(t *testing.T) {
	r := NewFastRand(7)
	for i := 0; i < 1000; i++ {
		v := r.Range(0.5, 1.5)
		if v < 0.5 || v > 1.5 {
			t.Fatalf("Range out of bounds: %f", v)
		}
	}
	assert.Equal(t, 2.0, r.Range(2, 2))
	assert.Equal(t, 3.0, r.Range(3, 1))
	assert.Equal(t, 0, r.Intn(0))
}

func TestRectEdges(t *testing.T) {
	r := Rect{CX: 0, CY: 0.3, W: 0.4, H: 0.2}
	assert.InDelta(t, -0.2, r.Left(), 1e-12)
	assert.InDelta(t, 0.2, r.Right(), 1e-12)
	assert.InDelta(t, 0.4, r.Top(), 1e-12)
	assert.InDelta(t, 0.2, r.Bottom(), 1e-12)
}

func TestRectOverlaps(t *testing.T) {
	base := Rect{CX: 0, CY: 0, W: 0.5, H: 0.5}
	tests := []struct {
		name  string
		other Rect
		want  bool
	}{
		{"Identical", base, true},
		{"Contained", Rect{CX: 0, CY: 0, W: 0.1, H: 0.1}, true},
		{"Partial", Rect{CX: 0.3, CY: 0.3, W: 0.5, H: 0.5}, true},
		{"Touching top edge", Rect{CX: 0, CY: 0.5, W: 0.5, H: 0.5}, true},
		{"Above", Rect{CX: 0, CY: 0.6, W: 0.1, H: 0.1}, false},
		{"Below", Rect{CX: 0, CY: -0.6, W: 0.1, H: 0.1}, false},
		{"Left", Rect{CX: -0.6, CY: 0, W: 0.1, H: 0.1}, false},
		{"Right", Rect{CX: 0.6, CY: 0, W: 0.1, H: 0.1}, false},
		{"Diagonal apart", Rect{CX: 0.6, CY: 0.6, W: 0.2, H: 0.2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, base.Overlaps(tt.other))
			assert.Equal(t, tt.want, tt.other.Overlaps(base), "overlap must be symmetric")
		})
	}
}

func TestRectOnScreen(t *testing.T) {
	const size = 0.1
	const eps = 1e-9

	tests := []struct {
		name string
		r    Rect
		want bool
	}{
		{"Center", Rect{W: size, H: size}, true},
		{"Right boundary", Rect{CX: 1 - size/2, W: size, H: size}, true},
		{"Past right boundary", Rect{CX: 1 - size/2 + eps, W: size, H: size}, false},
		{"Left boundary", Rect{CX: -1 + size/2, W: size, H: size}, true},
		{"Past top", Rect{CY: 1, W: size, H: size}, false},
		{"Past bottom", Rect{CY: -1.2, W: size, H: size}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.r.OnScreen())
		})
	}
}
