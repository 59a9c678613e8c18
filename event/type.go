package event

import (
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/lixenwraith/simon-task/condition"
	"github.com/lixenwraith/simon-task/reaction"
)

// Kind discriminates the two real-time event streams
type Kind uint8

const (
	KindTrialBoundary Kind = iota + 1
	KindReaction
)

func (k Kind) String() string {
	switch k {
	case KindTrialBoundary:
		return "trial"
	case KindReaction:
		return "reaction"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "trial":
		*k = KindTrialBoundary
	case "reaction":
		*k = KindReaction
	default:
		return goerr.New("unknown event kind", goerr.V("value", string(b)))
	}
	return nil
}

// Boundary tells whether a TrialBoundary opens or closes a presentation
type Boundary uint8

const (
	BoundaryStart Boundary = iota + 1
	BoundaryEnd
)

func (b Boundary) String() string {
	switch b {
	case BoundaryStart:
		return "start"
	case BoundaryEnd:
		return "end"
	default:
		return "unknown"
	}
}

func (b Boundary) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

func (b *Boundary) UnmarshalText(text []byte) error {
	switch string(text) {
	case "start":
		*b = BoundaryStart
	case "end":
		*b = BoundaryEnd
	default:
		return goerr.New("unknown trial boundary", goerr.V("value", string(text)))
	}
	return nil
}

// TrialBoundary is pushed when a stimulus appears and again when its trial resolves
type TrialBoundary struct {
	Name      string             `json:"name"`
	Condition condition.Position `json:"condition"`
	Boundary  Boundary           `json:"boundary"`
}

// Reaction is pushed once, on the frame a direction is latched
type Reaction struct {
	Frame          int            `json:"frame"`
	Correct        bool           `json:"correct"`
	ShouldApproach bool           `json:"should_approach"`
	State          reaction.State `json:"state"`
}

// Event is the tagged union carried by queues and sinks; only the field matching Kind is meaningful
type Event struct {
	Kind     Kind           `json:"kind"`
	Trial    int            `json:"trial"`
	Time     time.Time      `json:"time"`
	Boundary *TrialBoundary `json:"boundary,omitempty"`
	Reaction *Reaction      `json:"reaction,omitempty"`
}

func NewTrialBoundary(trial int, at time.Time, b TrialBoundary) Event {
	return Event{Kind: KindTrialBoundary, Trial: trial, Time: at, Boundary: &b}
}

func NewReaction(trial int, at time.Time, r Reaction) Event {
	return Event{Kind: KindReaction, Trial: trial, Time: at, Reaction: &r}
}

// Sink accepts events in real time; Push must not block the frame loop
type Sink interface {
	Push(Event)
}

// Fanout pushes every event to each sink in order
type Fanout []Sink

func (f Fanout) Push(e Event) {
	for _, s := range f {
		if s != nil {
			s.Push(e)
		}
	}
}

// Discard drops every event
type Discard struct{}

func (Discard) Push(Event) {}
