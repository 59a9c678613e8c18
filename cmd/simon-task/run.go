package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lixenwraith/simon-task/audio"
	"github.com/lixenwraith/simon-task/config"
	"github.com/lixenwraith/simon-task/datastore"
	"github.com/lixenwraith/simon-task/engine"
	"github.com/lixenwraith/simon-task/event"
	"github.com/lixenwraith/simon-task/participant"
	"github.com/lixenwraith/simon-task/recorder"
	"github.com/lixenwraith/simon-task/stimulus"
	"github.com/lixenwraith/simon-task/telemetry"
	"github.com/lixenwraith/simon-task/terminal"
	"github.com/lixenwraith/simon-task/trial"
)

func newRunCmd(a *app) *cobra.Command {
	var pairs []string
	cmd := &cobra.Command{
		Use:         "run",
		Short:       "Present every trial and record the session",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationUI: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.run(ctx, cmd.OutOrStdout(), pairs)
		},
	}
	cmd.Flags().StringArrayVarP(&pairs, "participant", "p", nil, "participant info as key=value, repeatable")
	cmd.Flags().String("stimuli", "", "stimulus list (csv)")
	cmd.Flags().Uint64("seed", 0, "trial order seed")
	cmd.Flags().Int("max-frames", 0, "time a trial out after this many frames (0 disables)")
	cmd.Flags().String("output-dir", "", "parent directory of session recordings")
	cmd.Flags().Bool("telemetry", false, "stream events over websocket")
	cmd.Flags().Bool("wait-for-consumers", false, "hold the first trial until a telemetry consumer connects")
	a.bindFlag(cmd, "experiment.stimuli", "stimuli")
	a.bindFlag(cmd, "experiment.seed", "seed")
	a.bindFlag(cmd, "experiment.max_frames", "max-frames")
	a.bindFlag(cmd, "experiment.output_dir", "output-dir")
	a.bindFlag(cmd, "telemetry.enabled", "telemetry")
	a.bindFlag(cmd, "telemetry.wait_for_consumers", "wait-for-consumers")
	return cmd
}

// generate loads the stimulus list and expands it into the shuffled trial order
func generate(cfg *config.Config) ([]trial.Trial, error) {
	if cfg.Experiment.Stimuli == "" {
		return nil, errors.New("no stimulus list: set experiment.stimuli or --stimuli")
	}
	positions, err := cfg.Experiment.ParsedPositions()
	if err != nil {
		return nil, err
	}
	stimuli, err := stimulus.LoadCSV(cfg.Experiment.Stimuli, cfg.Experiment.DelimiterRune())
	if err != nil {
		return nil, err
	}
	return trial.Generate(stimuli, cfg.Experiment.Seed, trial.PositionAxis(positions...))
}

func engineConfig(cfg *config.Config) engine.Config {
	ec := engine.DefaultConfig()
	ec.Fixation = cfg.Fixation.Duration
	ec.JitterMin = cfg.Fixation.JitterMin
	ec.JitterMax = cfg.Fixation.JitterMax
	if cfg.Fixation.Shape == engine.FixationPoint.String() {
		ec.Marker = engine.DefaultPoint()
	}
	ec.MaxFrames = cfg.Experiment.MaxFrames
	ec.Seed = cfg.Experiment.Seed
	ec.AvatarWidth = cfg.Avatar.Width
	ec.AvatarHeight = cfg.Avatar.Height
	ec.AvatarSpeed = cfg.Avatar.Speed
	return ec
}

func screenConfig(cfg *config.Config) terminal.Config {
	return terminal.Config{
		FrameRate:      cfg.Display.FrameRate,
		HoldWindow:     cfg.Input.HoldWindow,
		StimulusY:      cfg.Display.StimulusY,
		StimulusWidth:  cfg.Display.StimulusWidth,
		StimulusHeight: cfg.Display.StimulusHeight,
	}
}

// run records one session: files always, the datastore and telemetry when enabled
// Quitting from the keyboard is not an error; the manifest marks the session aborted
func (a *app) run(ctx context.Context, out io.Writer, pairs []string) error {
	cfg := a.cfg
	log := a.log

	p, err := participant.Parse(pairs)
	if err != nil {
		return err
	}
	trials, err := generate(cfg)
	if err != nil {
		return err
	}
	sessionID := uuid.NewString()
	log.Info("Session starting.",
		zap.String("session", sessionID),
		zap.String("participant", p.ID()),
		zap.Int("trials", len(trials)),
		zap.Uint64("seed", cfg.Experiment.Seed),
	)

	var (
		db          *datastore.Store
		resultStore recorder.ResultStore
	)
	if cfg.Datastore.Enabled {
		s, closeDB, err := datastore.Open(ctx, cfg.Datastore.DSN, log)
		if err != nil {
			return err
		}
		defer closeDB()
		if err := s.Migrate(ctx); err != nil {
			return err
		}
		if err := s.CreateSession(ctx, datastore.Session{
			ID: sessionID, Participant: p, Seed: cfg.Experiment.Seed, StartedAt: time.Now(),
		}); err != nil {
			return err
		}
		db, resultStore = s, s
	}

	rec, err := recorder.Open(ctx, recorder.Options{
		Dir:         cfg.Experiment.OutputDir,
		SessionID:   sessionID,
		Participant: p,
		Seed:        cfg.Experiment.Seed,
		Stimuli:     cfg.Experiment.Stimuli,
		Trials:      len(trials),
		Store:       resultStore,
		Logger:      log,
	})
	if err != nil {
		return err
	}

	cues := audio.NewCues(audio.Config{
		Enabled:  cfg.Audio.Enabled,
		OnsetHz:  cfg.Audio.OnsetHz,
		Feedback: cfg.Audio.Feedback,
		Volume:   cfg.Audio.Volume,
	}, log)
	if err := cues.Initialize(); err != nil {
		log.Warn("Audio unavailable, continuing without cues.", zap.Error(err))
	}
	defer cues.Close()

	sinks := event.Fanout{rec}
	hub := telemetry.NewHub(log, cfg.Telemetry.QueueDrainInterval)
	if cfg.Telemetry.Enabled {
		sinks = append(sinks, hub)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	if cfg.Telemetry.Enabled {
		g.Go(func() error {
			hub.Run(gctx)
			return nil
		})
		g.Go(func() error {
			return hub.Serve(gctx, cfg.Telemetry.Addr)
		})
	}

	var results []trial.Result
	g.Go(func() error {
		// the experiment owns the group lifetime: telemetry stops once it returns
		defer cancel()
		if cfg.Telemetry.Enabled && cfg.Telemetry.WaitForConsumers {
			log.Info("Waiting for telemetry consumers.", zap.Duration("timeout", cfg.Telemetry.ReadyTimeout))
			if err := hub.WaitForConsumers(gctx, cfg.Telemetry.ReadyTimeout); err != nil {
				return err
			}
		}
		var err error
		results, err = a.present(gctx, cancel, trials, sinks, rec, cues)
		return err
	})
	runErr := g.Wait()

	if err := rec.Close(); err != nil {
		log.Warn("Failed to close recording.", zap.Error(err))
	}
	if db != nil {
		finishCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		if err := db.FinishSession(finishCtx, sessionID, len(results)); err != nil {
			log.Warn("Failed to finish session.", zap.Error(err))
		}
		done()
	}
	if cfg.Telemetry.Enabled {
		log.Info("Telemetry summary.", zap.Uint64("sent", hub.Sent()), zap.Uint64("dropped", hub.Dropped()))
	}

	aborted := errors.Is(runErr, context.Canceled)
	if aborted {
		runErr = nil
	}
	log.Info("Session finished.",
		zap.String("session", sessionID),
		zap.Int("completed", len(results)),
		zap.Bool("aborted", aborted),
		zap.Error(runErr),
	)
	printSummary(out, sessionID, rec.Dir(), results, len(trials), aborted)
	return runErr
}

// present owns the terminal for the duration of the trials
func (a *app) present(ctx context.Context, quit func(), trials []trial.Trial, sinks event.Sink, results engine.ResultSink, cues engine.Cues) ([]trial.Result, error) {
	screen, err := a.openScreen(screenConfig(a.cfg), terminal.WithQuit(quit), terminal.WithLogger(a.log))
	if err != nil {
		return nil, err
	}
	defer screen.Close()

	// Panic Recovery: restore the terminal before the trace is printed
	defer func() {
		if r := recover(); r != nil {
			screen.Restore()
			fmt.Fprintf(os.Stderr, "\r\n\x1b[31mSIMON-TASK CRASHED: %v\x1b[0m\r\n", r)
			fmt.Fprintf(os.Stderr, "Stack Trace:\r\n%s\r\n", debug.Stack())
			os.Exit(1)
		}
	}()

	eng := engine.New(engineConfig(a.cfg), screen, screen,
		engine.WithEvents(sinks),
		engine.WithResults(results),
		engine.WithCues(cues),
		engine.WithLogger(a.log),
	)
	return eng.Run(ctx, trials)
}

func printSummary(w io.Writer, sessionID, dir string, results []trial.Result, total int, aborted bool) {
	correct, timedOut := 0, 0
	for _, r := range results {
		if r.Correct {
			correct++
		}
		if r.TimedOut {
			timedOut++
		}
	}
	status := "complete"
	if aborted {
		status = "aborted"
	}
	fmt.Fprintf(w, "session %s %s: %d/%d trials, %d correct, %d timed out\n",
		sessionID, status, len(results), total, correct, timedOut)
	fmt.Fprintf(w, "recorded to %s\n", dir)
}
