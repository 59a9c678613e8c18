// Package condition holds the trial polarity: whether the avatar spawns above or below the stimulus
package condition

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

// Position is the placement polarity of a trial
type Position uint8

const (
	Above Position = iota
	Below
)

// All lists every position in declaration order
var All = []Position{Above, Below}

var ErrUnknownPosition = goerr.New("unknown position")

func (p Position) String() string {
	switch p {
	case Above:
		return "above"
	case Below:
		return "below"
	default:
		return "unknown"
	}
}

// Valid reports whether p is one of the declared positions
func (p Position) Valid() bool {
	return p == Above || p == Below
}

// ParsePosition accepts the String() forms, case-insensitive
func ParsePosition(s string) (Position, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "above":
		return Above, nil
	case "below":
		return Below, nil
	}
	return 0, goerr.Wrap(ErrUnknownPosition, "parse position", goerr.V("value", s))
}

func (p Position) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, goerr.Wrap(ErrUnknownPosition, "marshal position", goerr.V("value", uint8(p)))
	}
	return []byte(p.String()), nil
}

func (p *Position) UnmarshalText(b []byte) error {
	v, err := ParsePosition(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// SpawnOffset returns where the avatar appears for a stimulus centered at stimulusCenterY
// The avatar sits on the vertical midline, halfway between the stimulus edge and the frame edge
func SpawnOffset(p Position, stimulusCenterY, stimulusHeight float64) (x, y float64) {
	half := stimulusHeight / 2
	distance := (1 - (stimulusCenterY + half)) / 2
	if p == Above {
		return 0, stimulusCenterY + half + distance
	}
	return 0, stimulusCenterY - half - distance
}
