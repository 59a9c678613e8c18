package reaction

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/simon-task/condition"
)

type combination struct {
	dir      State
	pos      condition.Position
	approach bool
}

func TestValidateTruthTable(t *testing.T) {
	correct := map[combination]bool{
		{Down, condition.Above, true}:  true,
		{Up, condition.Below, true}:    true,
		{Up, condition.Above, false}:   true,
		{Down, condition.Below, false}: true,
	}

	cases := 0
	correctCount := 0
	for _, dir := range []State{Up, Down} {
		for _, pos := range condition.All {
			for _, approach := range []bool{true, false} {
				c := combination{dir, pos, approach}
				t.Run(fmt.Sprintf("%s/%s/approach=%t", dir, pos, approach), func(t *testing.T) {
					got, err := Validate(dir, pos, approach)
					require.NoError(t, err)
					if correct[c] {
						assert.Equal(t, CorrectReaction, got)
					} else {
						assert.Equal(t, IncorrectReaction, got)
					}
				})
				cases++
				if correct[c] {
					correctCount++
				}
			}
		}
	}
	assert.Equal(t, 8, cases)
	assert.Equal(t, 4, correctCount)
}

func TestValidateInvalidState(t *testing.T) {
	for _, s := range []State{NoReaction, CorrectReaction, IncorrectReaction, State(42)} {
		t.Run(s.String(), func(t *testing.T) {
			for _, pos := range condition.All {
				for _, approach := range []bool{true, false} {
					_, err := Validate(s, pos, approach)
					assert.True(t, errors.Is(err, ErrInvalidState))
				}
			}
		})
	}
}

func TestIsCorrect(t *testing.T) {
	ok, err := IsCorrect(CorrectReaction)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = IsCorrect(IncorrectReaction)
	require.NoError(t, err)
	assert.False(t, ok)

	for _, s := range []State{NoReaction, Up, Down} {
		_, err := IsCorrect(s)
		assert.True(t, errors.Is(err, ErrIndeterminateState), "state %s", s)
	}
}

func TestLatch(t *testing.T) {
	var l Latch
	assert.Equal(t, NoReaction, l.State())
	assert.Equal(t, -1, l.Frame())

	assert.False(t, l.Offer(NoReaction, 3))
	assert.True(t, l.Offer(Up, 12))
	assert.False(t, l.Offer(Down, 13), "later input must not overwrite the latch")
	assert.Equal(t, Up, l.State())
	assert.Equal(t, 12, l.Frame())

	v, err := l.Resolve(condition.Below, true)
	require.NoError(t, err)
	assert.Equal(t, CorrectReaction, v)
	assert.Equal(t, CorrectReaction, l.State())

	_, err = l.Resolve(condition.Below, true)
	assert.True(t, errors.Is(err, ErrInvalidState), "a verdict cannot be validated twice")

	l.Reset()
	assert.Equal(t, NoReaction, l.State())
	assert.Equal(t, -1, l.Frame())
}
