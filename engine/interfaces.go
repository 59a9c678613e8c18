package engine

import (
	"time"

	"github.com/lixenwraith/simon-task/stimulus"
	"github.com/lixenwraith/simon-task/trial"
	"github.com/lixenwraith/simon-task/vmath"
)

// Direction is a vertical input axis
type Direction uint8

const (
	DirUp Direction = iota
	DirDown
)

func (d Direction) String() string {
	if d == DirUp {
		return "up"
	}
	return "down"
}

// Handle is a loaded, drawable stimulus with its on-screen geometry
type Handle interface {
	Rect() vmath.Rect
}

// Display owns the window; the engine never manages its lifecycle
type Display interface {
	// Load prepares a stimulus for drawing; called for every trial before the first presentation
	Load(s stimulus.Stimulus) (Handle, error)
	Draw(h Handle)
	DrawAvatar(r vmath.Rect)
	DrawFixation(f Fixation)
	// Flip presents the frame and blocks until the next frame may start
	Flip() error
	FramePeriod() time.Duration
}

// Input reports level-triggered direction state, polled once per frame
type Input interface {
	Held(d Direction) bool
}

// InputResetter is implemented by inputs that latch presses between polls
// ResetInput is called when a stimulus appears so presses made during fixation are discarded
type InputResetter interface {
	ResetInput()
}

// ResultSink receives each resolved trial; a committed result is final
type ResultSink interface {
	Commit(r trial.Result) error
}

// Cues plays optional non-visual signals
type Cues interface {
	Onset()
	Feedback(correct bool)
}
