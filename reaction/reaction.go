// Package reaction classifies a participant's first directional action
package reaction

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/lixenwraith/simon-task/condition"
)

// State of a trial's reaction; numeric values are part of the recorded event stream
type State uint8

const (
	NoReaction State = iota
	Up
	Down
	CorrectReaction
	IncorrectReaction
)

var (
	// ErrInvalidState is returned when validating anything but Up or Down
	ErrInvalidState = goerr.New("invalid reaction state")
	// ErrIndeterminateState is returned when asking a non-terminal state for its correctness
	ErrIndeterminateState = goerr.New("reaction correctness is not determined")
)

func (s State) String() string {
	switch s {
	case NoReaction:
		return "none"
	case Up:
		return "up"
	case Down:
		return "down"
	case CorrectReaction:
		return "correct"
	case IncorrectReaction:
		return "incorrect"
	default:
		return "unknown"
	}
}

// IsDirection reports whether s is a latched, not yet validated direction
func (s State) IsDirection() bool { return s == Up || s == Down }

// IsTerminal reports whether s carries a correctness verdict
func (s State) IsTerminal() bool { return s == CorrectReaction || s == IncorrectReaction }

// Validate maps a latched direction to its verdict
//
//	approach: Down under Above, Up under Below
//	avoid:    Up under Above, Down under Below
func Validate(s State, p condition.Position, shouldApproach bool) (State, error) {
	if !s.IsDirection() {
		return s, goerr.Wrap(ErrInvalidState, "validate",
			goerr.V("state", s.String()), goerr.V("position", p.String()))
	}

	var correct bool
	if shouldApproach {
		correct = (s == Down && p == condition.Above) || (s == Up && p == condition.Below)
	} else {
		correct = (s == Up && p == condition.Above) || (s == Down && p == condition.Below)
	}

	if correct {
		return CorrectReaction, nil
	}
	return IncorrectReaction, nil
}

// IsCorrect is defined for terminal states only
func IsCorrect(s State) (bool, error) {
	switch s {
	case CorrectReaction:
		return true, nil
	case IncorrectReaction:
		return false, nil
	}
	return false, goerr.Wrap(ErrIndeterminateState, "is correct", goerr.V("state", s.String()))
}
