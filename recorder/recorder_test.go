package recorder

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/lixenwraith/simon-task/condition"
	"github.com/lixenwraith/simon-task/engine"
	"github.com/lixenwraith/simon-task/event"
	"github.com/lixenwraith/simon-task/participant"
	"github.com/lixenwraith/simon-task/reaction"
	"github.com/lixenwraith/simon-task/stimulus"
	"github.com/lixenwraith/simon-task/trial"
)

var start = time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu      sync.Mutex
	session string
	results []trial.Result
	err     error
}

func (s *fakeStore) CommitResult(_ context.Context, sessionID string, r trial.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sessionID
	s.results = append(s.results, r)
	return s.err
}

func openRecorder(t *testing.T, store ResultStore) (*Recorder, *engine.MockTimeProvider) {
	t.Helper()
	clock := engine.NewMockTimeProvider(start)
	clock.SetStep(time.Second)
	r, err := Open(context.Background(), Options{
		Dir:         t.TempDir(),
		SessionID:   "s-0001",
		Participant: participant.New(map[string]string{participant.KeyID: "p-001", "hand": "left"}),
		Seed:        42,
		Stimuli:     "stimuli.csv",
		Trials:      2,
		Store:       store,
		Clock:       clock,
	})
	require.NoError(t, err)
	return r, clock
}

func greenResult(t *testing.T, idx int) trial.Result {
	t.Helper()
	s := stimulus.Stimulus{Name: "Green", ShouldApproach: true, Asset: "green.png", Metadata: stimulus.NewMetadata()}
	require.NoError(t, s.Metadata.Set("color", "green"))
	require.NoError(t, s.Metadata.Set(trial.PositionKey, condition.Below))

	r := trial.NewResult(trial.Trial{Index: idx, Stimulus: s}, condition.Below)
	r.Reaction = reaction.CorrectReaction
	r.ReactionFrame = 12
	r.Reacted = true
	r.Correct = true
	r.Duration = 24
	r.Frames = 37
	return r
}

func pushTrial(r *Recorder, idx int) {
	r.Push(event.NewTrialBoundary(idx, start.Add(time.Duration(idx)*time.Minute), event.TrialBoundary{Name: "Green", Condition: condition.Below, Boundary: event.BoundaryStart}))
	r.Push(event.NewReaction(idx, start.Add(time.Duration(idx)*time.Minute+time.Second), event.Reaction{Frame: 12, Correct: true, ShouldApproach: true, State: reaction.CorrectReaction}))
	r.Push(event.NewTrialBoundary(idx, start.Add(time.Duration(idx)*time.Minute+2*time.Second), event.TrialBoundary{Name: "Green", Condition: condition.Below, Boundary: event.BoundaryEnd}))
}

func TestOpenWritesManifest(t *testing.T) {
	r, _ := openRecorder(t, nil)
	defer r.Close()

	_, _, manifestPath := SessionFiles(r.Dir())
	m, err := ReadManifest(manifestPath)
	require.NoError(t, err)

	assert.Equal(t, "s-0001", m.SessionID)
	assert.Equal(t, uint64(42), m.Seed)
	assert.Equal(t, map[string]string{"Id": "p-001", "hand": "left"}, m.Participant)
	assert.True(t, start.Equal(m.StartedAt))
	assert.Nil(t, m.FinishedAt)
	assert.Equal(t, "s-0001", filepath.Base(r.Dir()))
}

func TestOpenRequiresSessionID(t *testing.T) {
	_, err := Open(context.Background(), Options{Dir: t.TempDir()})
	assert.Error(t, err)
}

func TestRecordSession(t *testing.T) {
	store := &fakeStore{}
	r, _ := openRecorder(t, store)

	pushTrial(r, 0)
	require.NoError(t, r.Commit(greenResult(t, 0)))
	require.NoError(t, r.Close())
	require.NoError(t, r.Close(), "close is idempotent")

	eventsPath, resultsPath, manifestPath := SessionFiles(r.Dir())

	events, err := LoadEvents(eventsPath)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, event.KindTrialBoundary, events[0].Kind)
	assert.Equal(t, event.KindReaction, events[1].Kind)
	assert.Equal(t, reaction.CorrectReaction, events[1].Reaction.State)
	assert.Equal(t, event.BoundaryEnd, events[2].Boundary.Boundary)

	f, err := os.Open(resultsPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"trial", "name", "should_approach", "color", "position", "reaction", "reaction_frame", "correct", "duration", "frames", "timed_out"}, rows[0])
	assert.Equal(t, []string{"0", "Green", "true", "green", "below", "correct", "12", "true", "24", "37", "false"}, rows[1])

	m, err := ReadManifest(manifestPath)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Completed)
	assert.True(t, m.Aborted, "one of two trials completed")
	require.NotNil(t, m.FinishedAt)
	assert.True(t, m.FinishedAt.After(m.StartedAt))

	assert.Equal(t, "s-0001", store.session)
	assert.Len(t, store.results, 1)

	assert.Error(t, r.Commit(greenResult(t, 1)), "commit after close")
}

func TestCommitStoreError(t *testing.T) {
	storeErr := errors.New("connection refused")
	r, _ := openRecorder(t, &fakeStore{err: storeErr})
	defer r.Close()

	err := r.Commit(greenResult(t, 0))
	assert.ErrorIs(t, err, storeErr)
	assert.Equal(t, 1, r.Manifest().Completed, "local files still hold the result")
}

func TestLoadTrialsAndReactions(t *testing.T) {
	r, _ := openRecorder(t, nil)
	pushTrial(r, 1)
	pushTrial(r, 0)
	r.Push(event.NewTrialBoundary(2, start.Add(time.Hour), event.TrialBoundary{Name: "Red", Condition: condition.Above, Boundary: event.BoundaryStart}))
	require.NoError(t, r.Close())

	eventsPath, _, _ := SessionFiles(r.Dir())

	trials, err := LoadTrials(eventsPath)
	require.NoError(t, err)
	require.Len(t, trials, 3)
	assert.Equal(t, 0, trials[0].Trial, "ordered by start time")
	assert.Equal(t, 1, trials[1].Trial)
	assert.True(t, trials[0].Resolved)
	assert.Equal(t, 2*time.Second, trials[0].End.Sub(trials[0].Start))
	assert.Equal(t, "Red", trials[2].Name)
	assert.Equal(t, condition.Above, trials[2].Condition)
	assert.False(t, trials[2].Resolved)

	reactions, err := LoadReactions(eventsPath)
	require.NoError(t, err)
	require.Len(t, reactions, 2)
	assert.Equal(t, 1, reactions[0].Trial, "log order")
	assert.Equal(t, 12, reactions[0].Frame)
	assert.True(t, reactions[0].Correct)
}

func TestReadEvents(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    int
		wantErr bool
	}{
		{"Empty", "", 0, false},
		{"Blank lines", "\n\n", 0, false},
		{"Reaction", `{"kind":"reaction","trial":0,"time":"2025-01-01T00:00:00Z","reaction":{"frame":3,"correct":false,"should_approach":true,"state":4}}` + "\n", 1, false},
		{"Not JSON", "hello\n", 0, true},
		{"Missing payload", `{"kind":"trial","trial":0,"time":"2025-01-01T00:00:00Z"}`, 0, true},
		{"Unknown kind", `{"kind":"blink","trial":0,"time":"2025-01-01T00:00:00Z"}`, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := 0
			err := ReadEvents(strings.NewReader(tt.input), func(event.Event) error {
				n++
				return nil
			})
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformedEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestFollow(t *testing.T) {
	r, _ := openRecorder(t, nil)
	defer r.Close()
	eventsPath, _, _ := SessionFiles(r.Dir())

	pushTrial(r, 0)
	require.NoError(t, r.Commit(greenResult(t, 0)))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		seen []event.Event
	)
	done := make(chan error, 1)
	go func() {
		done <- Follow(ctx, eventsPath, func(ev event.Event) error {
			mu.Lock()
			defer mu.Unlock()
			seen = append(seen, ev)
			return nil
		})
	}()

	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}
	require.Eventually(t, func() bool { return count() == 3 }, 5*time.Second, 10*time.Millisecond)

	pushTrial(r, 1)
	require.NoError(t, r.Commit(greenResult(t, 1)))
	require.Eventually(t, func() bool { return count() == 6 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}

func TestFollowMissingFile(t *testing.T) {
	err := Follow(context.Background(), filepath.Join(t.TempDir(), "missing.jsonl"), func(event.Event) error { return nil })
	assert.Error(t, err)
}

func TestCommitWarnsOnColumnsMissingFromHeader(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r, err := Open(context.Background(), Options{
		Dir:       t.TempDir(),
		SessionID: "s-0002",
		Trials:    3,
		Clock:     engine.NewMockTimeProvider(start),
		Logger:    zap.New(core),
	})
	require.NoError(t, err)

	require.NoError(t, r.Commit(greenResult(t, 0)))

	wider := greenResult(t, 1)
	wider.Trial.Stimulus = wider.Trial.Stimulus.Clone()
	require.NoError(t, wider.Trial.Stimulus.Metadata.Set("size", "large"))
	require.NoError(t, r.Commit(wider))
	wider.Trial.Index = 2
	require.NoError(t, r.Commit(wider))
	require.NoError(t, r.Close())

	warnings := logs.FilterMessage("Result column not in table header, dropped.").All()
	require.Len(t, warnings, 1, "each missing column is reported once")
	assert.Equal(t, "size", warnings[0].ContextMap()["column"])
	assert.EqualValues(t, 1, warnings[0].ContextMap()["trial"])

	_, resultsPath, _ := SessionFiles(r.Dir())
	f, err := os.Open(resultsPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.NotContains(t, rows[0], "size")
	assert.Len(t, rows[2], len(rows[0]))
}
