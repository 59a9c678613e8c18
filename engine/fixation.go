package engine

import "time"

// FixationShape selects the marker drawn between trials
type FixationShape uint8

const (
	FixationCross FixationShape = iota
	FixationPoint
)

func (s FixationShape) String() string {
	if s == FixationPoint {
		return "point"
	}
	return "cross"
}

// Fixation describes the marker geometry in normalized units
// Cross: horizontal and vertical lines through the center of [X1,X2]x[Y1,Y2]
// Point: a dot of Radius at (X, Y)
type Fixation struct {
	Shape          FixationShape
	X1, X2, Y1, Y2 float64
	X, Y           float64
	Radius         float64
}

// DefaultCross spans the central half of the screen
func DefaultCross() Fixation {
	return Fixation{Shape: FixationCross, X1: -0.5, X2: 0.5, Y1: -0.5, Y2: 0.5}
}

// DefaultPoint is a small dot at the origin
func DefaultPoint() Fixation {
	return Fixation{Shape: FixationPoint, Radius: 0.01}
}

// Center returns the crossing point of the marker
func (f Fixation) Center() (x, y float64) {
	if f.Shape == FixationPoint {
		return f.X, f.Y
	}
	return f.X1 + (f.X2-f.X1)/2, f.Y1 + (f.Y2-f.Y1)/2
}

// DefaultFramePeriod is assumed when a display reports none
const DefaultFramePeriod = time.Second / 60

// FixationFrames converts a duration into whole frames, truncating
func FixationFrames(d, framePeriod time.Duration) int {
	if framePeriod <= 0 {
		framePeriod = DefaultFramePeriod
	}
	if d <= 0 {
		return 0
	}
	return int(d / framePeriod)
}
