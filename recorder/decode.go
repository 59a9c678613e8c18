package recorder

import (
	"bufio"
	"context"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/hpcloud/tail"
	"github.com/m-mizutani/goerr/v2"

	"github.com/lixenwraith/simon-task/condition"
	"github.com/lixenwraith/simon-task/event"
)

var ErrMalformedEvent = goerr.New("malformed event line")

// TrialRecord pairs the start and end boundaries of one trial
type TrialRecord struct {
	Trial     int
	Name      string
	Condition condition.Position
	Start     time.Time
	End       time.Time
	// Resolved is false when the log ends before the end boundary
	Resolved bool
}

// ReactionRecord is a recorded reaction with its trial and timestamp
type ReactionRecord struct {
	Trial int
	Time  time.Time
	event.Reaction
}

// ReadEvents decodes one event per non-empty line and calls fn for each
func ReadEvents(r io.Reader, fn func(event.Event) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for sc.Scan() {
		line++
		ev, err := decodeLine(sc.Text(), line)
		if err != nil {
			return err
		}
		if ev == nil {
			continue
		}
		if err := fn(*ev); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return goerr.Wrap(err, "read event log")
	}
	return nil
}

func decodeLine(text string, line int) (*event.Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}
	var ev event.Event
	if err := json.Unmarshal([]byte(text), &ev); err != nil {
		return nil, goerr.Wrap(ErrMalformedEvent, "decode", goerr.V("line", line), goerr.V("cause", err.Error()))
	}
	switch {
	case ev.Kind == event.KindTrialBoundary && ev.Boundary == nil,
		ev.Kind == event.KindReaction && ev.Reaction == nil:
		return nil, goerr.Wrap(ErrMalformedEvent, "missing payload", goerr.V("line", line), goerr.V("kind", ev.Kind.String()))
	case ev.Kind != event.KindTrialBoundary && ev.Kind != event.KindReaction:
		return nil, goerr.Wrap(ErrMalformedEvent, "unknown kind", goerr.V("line", line))
	}
	return &ev, nil
}

// LoadEvents reads a whole event log
func LoadEvents(path string) ([]event.Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, goerr.Wrap(err, "open event log", goerr.V("path", path))
	}
	defer f.Close()

	var out []event.Event
	err = ReadEvents(f, func(ev event.Event) error {
		out = append(out, ev)
		return nil
	})
	return out, err
}

// LoadTrials returns one record per trial in presentation order
func LoadTrials(path string) ([]TrialRecord, error) {
	events, err := LoadEvents(path)
	if err != nil {
		return nil, err
	}

	byTrial := make(map[int]*TrialRecord)
	for _, ev := range events {
		if ev.Kind != event.KindTrialBoundary {
			continue
		}
		rec, ok := byTrial[ev.Trial]
		if !ok {
			rec = &TrialRecord{Trial: ev.Trial, Name: ev.Boundary.Name, Condition: ev.Boundary.Condition}
			byTrial[ev.Trial] = rec
		}
		switch ev.Boundary.Boundary {
		case event.BoundaryStart:
			rec.Start = ev.Time
		case event.BoundaryEnd:
			rec.End = ev.Time
			rec.Resolved = true
		}
	}

	out := make([]TrialRecord, 0, len(byTrial))
	for _, rec := range byTrial {
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Start.Equal(out[j].Start) {
			return out[i].Start.Before(out[j].Start)
		}
		return out[i].Trial < out[j].Trial
	})
	return out, nil
}

// LoadReactions returns the reactions in log order
func LoadReactions(path string) ([]ReactionRecord, error) {
	events, err := LoadEvents(path)
	if err != nil {
		return nil, err
	}
	var out []ReactionRecord
	for _, ev := range events {
		if ev.Kind == event.KindReaction {
			out = append(out, ReactionRecord{Trial: ev.Trial, Time: ev.Time, Reaction: *ev.Reaction})
		}
	}
	return out, nil
}

// Follow streams events appended to path until ctx ends; existing lines are delivered first
func Follow(ctx context.Context, path string, fn func(event.Event) error) error {
	t, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return goerr.Wrap(err, "failed to tail event log", goerr.V("path", path))
	}
	defer func() {
		t.Stop()
		t.Cleanup()
	}()

	line := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case l, ok := <-t.Lines:
			if !ok {
				return t.Err()
			}
			if l.Err != nil {
				return goerr.Wrap(l.Err, "tail event log", goerr.V("path", path))
			}
			line++
			ev, err := decodeLine(l.Text, line)
			if err != nil {
				return err
			}
			if ev == nil {
				continue
			}
			if err := fn(*ev); err != nil {
				return err
			}
		}
	}
}
