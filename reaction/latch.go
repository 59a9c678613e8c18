package reaction

import "github.com/lixenwraith/simon-task/condition"

// Latch keeps the first direction offered during a trial and its verdict
// Zero value is ready to use and starts at NoReaction
type Latch struct {
	state State
	frame int
}

// Offer latches dir if nothing was latched yet; returns true when this call latched
// Non-direction values are ignored
func (l *Latch) Offer(dir State, frame int) bool {
	if l.state != NoReaction || !dir.IsDirection() {
		return false
	}
	l.state = dir
	l.frame = frame
	return true
}

// Resolve validates the latched direction in place and returns the verdict
func (l *Latch) Resolve(p condition.Position, shouldApproach bool) (State, error) {
	v, err := Validate(l.state, p, shouldApproach)
	if err != nil {
		return l.state, err
	}
	l.state = v
	return v, nil
}

func (l *Latch) State() State { return l.state }

// Frame returns the frame index of the latch, -1 when nothing was latched
func (l *Latch) Frame() int {
	if l.state == NoReaction {
		return -1
	}
	return l.frame
}

func (l *Latch) Reset() {
	l.state = NoReaction
	l.frame = 0
}
