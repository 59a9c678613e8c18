package trial

import (
	"github.com/m-mizutani/goerr/v2"

	"github.com/lixenwraith/simon-task/condition"
	"github.com/lixenwraith/simon-task/stimulus"
	"github.com/lixenwraith/simon-task/vmath"
)

// DefaultSeed is used when the experiment does not configure one
const DefaultSeed uint64 = 42

var ErrInvalidAxis = goerr.New("invalid condition axis")

// Axis is one named experimental factor; each trial gets exactly one of its values
type Axis struct {
	Name   string
	Values []any
}

// PositionAxis builds the placement axis; all positions when none are given
func PositionAxis(positions ...condition.Position) Axis {
	if len(positions) == 0 {
		positions = condition.All
	}
	values := make([]any, len(positions))
	for i, p := range positions {
		values[i] = p
	}
	return Axis{Name: PositionKey, Values: values}
}

// Generate returns every stimulus x axis-value combination exactly once, shuffled by seed
// Combinations are enumerated stimulus-major with the last axis varying fastest, then permuted
// with vmath.FastRand.Shuffle, so a seed yields the same order on every run
func Generate(stimuli []stimulus.Stimulus, seed uint64, axes ...Axis) ([]Trial, error) {
	if err := validateAxes(axes); err != nil {
		return nil, err
	}

	total := len(stimuli)
	for _, a := range axes {
		total *= len(a.Values)
	}

	trials := make([]Trial, 0, total)
	combo := make([]int, len(axes))
	for _, s := range stimuli {
		for i := range combo {
			combo[i] = 0
		}
		for {
			c := s.Clone()
			for i, a := range axes {
				if err := c.Metadata.Set(a.Name, a.Values[combo[i]]); err != nil {
					return nil, err
				}
			}
			trials = append(trials, Trial{Stimulus: c})

			if !advance(combo, axes) {
				break
			}
		}
	}

	vmath.NewFastRand(seed).Shuffle(len(trials), func(i, j int) {
		trials[i], trials[j] = trials[j], trials[i]
	})
	for i := range trials {
		trials[i].Index = i
	}
	return trials, nil
}

// advance increments the mixed-radix counter, returns false after the last combination
func advance(combo []int, axes []Axis) bool {
	for i := len(combo) - 1; i >= 0; i-- {
		combo[i]++
		if combo[i] < len(axes[i].Values) {
			return true
		}
		combo[i] = 0
	}
	return false
}

func validateAxes(axes []Axis) error {
	seen := make(map[string]struct{}, len(axes))
	for _, a := range axes {
		if a.Name == "" {
			return goerr.Wrap(ErrInvalidAxis, "axis without name")
		}
		if stimulus.IsReserved(a.Name) {
			return goerr.Wrap(ErrInvalidAxis, "axis name is reserved", goerr.V("axis", a.Name))
		}
		if len(a.Values) == 0 {
			return goerr.Wrap(ErrInvalidAxis, "axis has no values", goerr.V("axis", a.Name))
		}
		if _, dup := seen[a.Name]; dup {
			return goerr.Wrap(ErrInvalidAxis, "duplicate axis", goerr.V("axis", a.Name))
		}
		seen[a.Name] = struct{}{}
	}
	return nil
}
