// Package engine runs trials frame by frame: fixation, presentation, reaction latching and termination
package engine

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"go.uber.org/zap"

	"github.com/lixenwraith/simon-task/avatar"
	"github.com/lixenwraith/simon-task/condition"
	"github.com/lixenwraith/simon-task/event"
	"github.com/lixenwraith/simon-task/reaction"
	"github.com/lixenwraith/simon-task/trial"
	"github.com/lixenwraith/simon-task/vmath"
)

// Phase of the trial currently owned by the engine
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhaseFixation
	PhasePresenting
	PhaseResolved
)

func (p Phase) String() string {
	switch p {
	case PhaseFixation:
		return "fixation"
	case PhasePresenting:
		return "presenting"
	case PhaseResolved:
		return "resolved"
	default:
		return "idle"
	}
}

// Config holds the run-loop parameters
type Config struct {
	// Fixation is the marker duration when no jitter interval is set
	Fixation time.Duration
	// JitterMin/JitterMax enable a seeded uniform fixation duration when JitterMin < JitterMax
	JitterMin, JitterMax time.Duration
	Marker               Fixation
	// MaxFrames resolves a trial as timed out after this many presented frames; 0 disables the guard
	MaxFrames int
	Seed      uint64

	AvatarWidth, AvatarHeight, AvatarSpeed float64
}

// DefaultConfig mirrors the classic task: 1s cross, 0.1 avatar, 0.01 step, no frame guard
func DefaultConfig() Config {
	return Config{
		Fixation:     time.Second,
		Marker:       DefaultCross(),
		Seed:         trial.DefaultSeed,
		AvatarWidth:  avatar.DefaultSize,
		AvatarHeight: avatar.DefaultSize,
		AvatarSpeed:  avatar.DefaultSpeed,
	}
}

// Engine owns the avatar and the current trial record for the duration of a run
// Single goroutine: Display.Flip is the only suspension point
type Engine struct {
	cfg     Config
	display Display
	input   Input
	events  event.Sink
	results ResultSink
	cues    Cues
	clock   Clock
	log     *zap.Logger

	rng    *vmath.FastRand
	avatar *avatar.Avatar
	phase  Phase
}

// Option customizes an Engine
type Option func(*Engine)

func WithEvents(s event.Sink) Option { return func(e *Engine) { e.events = s } }
func WithResults(s ResultSink) Option { return func(e *Engine) { e.results = s } }
func WithCues(c Cues) Option { return func(e *Engine) { e.cues = c } }
func WithClock(c Clock) Option { return func(e *Engine) { e.clock = c } }
func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.log = l } }

func New(cfg Config, display Display, input Input, opts ...Option) *Engine {
	e := &Engine{
		cfg:     cfg,
		display: display,
		input:   input,
		events:  event.Discard{},
		clock:   NewTimeProvider(),
		log:     zap.NewNop(),
		rng:     vmath.NewFastRand(cfg.Seed),
		avatar:  avatar.New(cfg.AvatarWidth, cfg.AvatarHeight, cfg.AvatarSpeed),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.Named("engine")
	return e
}

func (e *Engine) Phase() Phase { return e.phase }

// Avatar exposes the avatar state for displays and tests
func (e *Engine) Avatar() *avatar.Avatar { return e.avatar }

// prepared is a trial validated and loaded before any presentation
type prepared struct {
	trial    trial.Trial
	position condition.Position
	handle   Handle
}

// Run presents every trial in order and returns the resolved results
// All trials are validated and loaded first; a configuration error aborts before the first fixation
// Cancelling ctx stops at the next frame boundary; results resolved so far are returned with the error
func (e *Engine) Run(ctx context.Context, trials []trial.Trial) ([]trial.Result, error) {
	plan := make([]prepared, 0, len(trials))
	for _, t := range trials {
		p, err := e.prepare(t)
		if err != nil {
			return nil, err
		}
		plan = append(plan, p)
	}

	e.log.Info("Run started.", zap.Int("trials", len(plan)))
	results := make([]trial.Result, 0, len(plan))
	for _, p := range plan {
		res, err := e.present(ctx, p)
		if err != nil {
			e.log.Info("Run stopped.", zap.Int("completed", len(results)), zap.Error(err))
			return results, err
		}
		e.commit(res)
		results = append(results, res)
	}
	e.phase = PhaseIdle
	e.log.Info("Run finished.", zap.Int("trials", len(results)))
	return results, nil
}

// RunTrial validates, loads and presents a single trial
func (e *Engine) RunTrial(ctx context.Context, t trial.Trial) (trial.Result, error) {
	p, err := e.prepare(t)
	if err != nil {
		return trial.Result{}, err
	}
	res, err := e.present(ctx, p)
	if err != nil {
		return res, err
	}
	e.commit(res)
	return res, nil
}

func (e *Engine) prepare(t trial.Trial) (prepared, error) {
	pos, err := t.Position()
	if err != nil {
		return prepared{}, err
	}
	h, err := e.display.Load(t.Stimulus)
	if err != nil {
		return prepared{}, goerr.Wrap(err, "load stimulus", goerr.V("trial", t.Index), goerr.V("stimulus", t.Name()))
	}
	return prepared{trial: t, position: pos, handle: h}, nil
}

// commit hands the result to the sink; failures are logged, never fatal
func (e *Engine) commit(res trial.Result) {
	if e.results == nil {
		return
	}
	if err := e.results.Commit(res); err != nil {
		e.log.Warn("Failed to commit result.", zap.Int("trial", res.Trial.Index), zap.Error(err))
	}
}

// FixationDuration returns the next fixation duration, drawing from the seeded jitter interval when configured
func (e *Engine) FixationDuration() time.Duration {
	if e.cfg.JitterMin < e.cfg.JitterMax {
		secs := e.rng.Range(e.cfg.JitterMin.Seconds(), e.cfg.JitterMax.Seconds())
		return time.Duration(secs * float64(time.Second))
	}
	return e.cfg.Fixation
}

func (e *Engine) showFixation(ctx context.Context, t trial.Trial) error {
	e.phase = PhaseFixation
	frames := FixationFrames(e.FixationDuration(), e.display.FramePeriod())
	for f := 0; f < frames; f++ {
		if err := ctx.Err(); err != nil {
			return goerr.Wrap(err, "aborted during fixation", goerr.V("trial", t.Index), goerr.V("frame", f))
		}
		e.display.DrawFixation(e.cfg.Marker)
		if err := e.display.Flip(); err != nil {
			return goerr.Wrap(err, "flip fixation frame", goerr.V("trial", t.Index))
		}
	}
	return nil
}

// poll reads both directions; up wins when both are held
func (e *Engine) poll() reaction.State {
	if e.input.Held(DirUp) {
		return reaction.Up
	}
	if e.input.Held(DirDown) {
		return reaction.Down
	}
	return reaction.NoReaction
}

func (e *Engine) present(ctx context.Context, p prepared) (trial.Result, error) {
	t := p.trial
	res := trial.NewResult(t, p.position)

	if err := e.showFixation(ctx, t); err != nil {
		return res, err
	}

	e.phase = PhasePresenting
	stim := p.handle.Rect()
	x, y := condition.SpawnOffset(p.position, stim.CY, stim.H)
	e.avatar.MoveTo(x, y)
	approach := t.Stimulus.ShouldApproach
	if r, ok := e.input.(InputResetter); ok {
		r.ResetInput()
	}

	e.events.Push(event.NewTrialBoundary(t.Index, e.clock.Now(), event.TrialBoundary{
		Name: t.Name(), Condition: p.position, Boundary: event.BoundaryStart,
	}))
	if e.cues != nil {
		e.cues.Onset()
	}
	e.log.Debug("Trial presenting.",
		zap.Int("trial", t.Index),
		zap.String("stimulus", t.Name()),
		zap.Stringer("position", p.position),
		zap.Bool("approach", approach),
	)

	var latch reaction.Latch
	for frame := 0; ; frame++ {
		if err := ctx.Err(); err != nil {
			return res, goerr.Wrap(err, "aborted during presentation", goerr.V("trial", t.Index), goerr.V("frame", frame))
		}

		dir := e.poll()
		switch dir {
		case reaction.Up:
			e.avatar.MoveUp()
		case reaction.Down:
			e.avatar.MoveDown()
		}

		if latch.Offer(dir, frame) {
			verdict, err := latch.Resolve(p.position, approach)
			if err != nil {
				return res, err
			}
			correct, err := reaction.IsCorrect(verdict)
			if err != nil {
				return res, err
			}
			res.Reaction = verdict
			res.ReactionFrame = frame
			res.Reacted = true
			res.Correct = correct

			e.events.Push(event.NewReaction(t.Index, e.clock.Now(), event.Reaction{
				Frame: frame, Correct: correct, ShouldApproach: approach, State: verdict,
			}))
			if e.cues != nil {
				e.cues.Feedback(correct)
			}
		}

		done := (approach && e.avatar.IsOverlapping(stim)) || (!approach && !e.avatar.IsOnScreen())
		timedOut := !done && e.cfg.MaxFrames > 0 && frame+1 >= e.cfg.MaxFrames
		if done || timedOut {
			res.Frames = frame + 1
			res.TimedOut = timedOut
			if res.Reacted {
				res.Duration = frame - res.ReactionFrame
			} else {
				res.Duration = frame
			}
			break
		}

		e.display.Draw(p.handle)
		e.display.DrawAvatar(e.avatar.Rect())
		if err := e.display.Flip(); err != nil {
			return res, goerr.Wrap(err, "flip presentation frame", goerr.V("trial", t.Index), goerr.V("frame", frame))
		}
	}

	e.phase = PhaseResolved
	e.events.Push(event.NewTrialBoundary(t.Index, e.clock.Now(), event.TrialBoundary{
		Name: t.Name(), Condition: p.position, Boundary: event.BoundaryEnd,
	}))
	e.log.Debug("Trial resolved.",
		zap.Int("trial", t.Index),
		zap.Int("reaction_frame", res.ReactionFrame),
		zap.Bool("correct", res.Correct),
		zap.Int("duration", res.Duration),
		zap.Bool("timed_out", res.TimedOut),
	)
	return res, nil
}
