// Package trial builds the randomized trial sequence and holds per-trial results
package trial

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/lixenwraith/simon-task/condition"
	"github.com/lixenwraith/simon-task/reaction"
	"github.com/lixenwraith/simon-task/stimulus"
)

// PositionKey is the axis name the run loop reads the placement polarity from
const PositionKey = "position"

// NoFrame marks an unset reaction frame
const NoFrame = -1

var ErrMissingPosition = goerr.New("trial has no valid position")

// Trial is one stimulus under one combination of condition values
// Condition values live in the stimulus metadata under their axis names
type Trial struct {
	Index    int
	Stimulus stimulus.Stimulus
}

func (t Trial) Name() string { return t.Stimulus.Name }

// Condition returns the value assigned by the named axis
func (t Trial) Condition(axis string) (any, bool) {
	return t.Stimulus.Metadata.Get(axis)
}

// Position resolves the placement axis; accepts condition.Position or its text form
func (t Trial) Position() (condition.Position, error) {
	v, ok := t.Stimulus.Metadata.Get(PositionKey)
	if !ok {
		return 0, goerr.Wrap(ErrMissingPosition, "position axis not set", goerr.V("trial", t.Index), goerr.V("stimulus", t.Name()))
	}
	switch p := v.(type) {
	case condition.Position:
		if !p.Valid() {
			return 0, goerr.Wrap(ErrMissingPosition, "invalid position", goerr.V("trial", t.Index), goerr.V("value", uint8(p)))
		}
		return p, nil
	case string:
		pos, err := condition.ParsePosition(p)
		if err != nil {
			return 0, goerr.Wrap(ErrMissingPosition, "invalid position", goerr.V("trial", t.Index), goerr.V("value", p))
		}
		return pos, nil
	}
	return 0, goerr.Wrap(ErrMissingPosition, "unsupported position type", goerr.V("trial", t.Index))
}

// Result is the outcome of one presented trial
// Without a reaction: ReactionFrame = NoFrame, Correct = false, Reacted = false
type Result struct {
	Trial         Trial
	Position      condition.Position
	Reaction      reaction.State
	ReactionFrame int
	Reacted       bool
	Correct       bool
	// Duration in frames: termination frame minus reaction frame, or the termination frame without a reaction
	Duration int
	// Frames is the number of presented frames
	Frames   int
	TimedOut bool
}

// NewResult returns a result in the no-reaction state
func NewResult(t Trial, p condition.Position) Result {
	return Result{
		Trial:         t,
		Position:      p,
		Reaction:      reaction.NoReaction,
		ReactionFrame: NoFrame,
	}
}

// Fields flattens the result into the stimulus plain data followed by the outcome columns
func (r Result) Fields() []stimulus.Field {
	fields := append([]stimulus.Field{{Key: "trial", Value: r.Trial.Index}}, r.Trial.Stimulus.PlainData()...)
	return append(fields,
		stimulus.Field{Key: "reaction", Value: r.Reaction.String()},
		stimulus.Field{Key: "reaction_frame", Value: r.ReactionFrame},
		stimulus.Field{Key: "correct", Value: r.Correct},
		stimulus.Field{Key: "duration", Value: r.Duration},
		stimulus.Field{Key: "frames", Value: r.Frames},
		stimulus.Field{Key: "timed_out", Value: r.TimedOut},
	)
}
