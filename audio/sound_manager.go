package audio

import (
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
	"go.uber.org/zap"
)

// Cues plays onset and feedback tones through a shared mixer
type Cues struct {
	mu          sync.Mutex
	cfg         Config
	mixer       *beep.Mixer
	initialized bool
	device      bool
	log         *zap.Logger
}

// NewCues creates a cue player; nothing sounds until Initialize succeeds
func NewCues(cfg Config, log *zap.Logger) *Cues {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cues{
		cfg:   cfg.normalize(),
		mixer: &beep.Mixer{},
		log:   log.Named("audio"),
	}
}

// Initialize opens the speaker; a disabled config is a no-op
func (c *Cues) Initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.initialized || !c.cfg.Enabled {
		return nil
	}

	rate := beep.SampleRate(c.cfg.SampleRate)
	if err := speaker.Init(rate, rate.N(100*time.Millisecond)); err != nil {
		return err
	}
	speaker.Play(c.mixer)
	c.initialized = true
	c.device = true
	c.log.Debug("Speaker initialized.", zap.Int("sample_rate", c.cfg.SampleRate))
	return nil
}

// Close silences pending tones; beep keeps the speaker open for the process lifetime
func (c *Cues) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}
	c.withSpeaker(c.mixer.Clear)
	c.initialized = false
}

func (c *Cues) Onset() {
	c.play(OnsetTone)
}

func (c *Cues) Feedback(correct bool) {
	if !c.cfg.Feedback {
		return
	}
	if correct {
		c.play(CorrectTone)
	} else {
		c.play(IncorrectTone)
	}
}

func (c *Cues) play(tone func(Config) beep.Streamer) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.initialized {
		return
	}
	s := tone(c.cfg)
	c.withSpeaker(func() { c.mixer.Add(s) })
}

// withSpeaker serializes mixer access with the speaker goroutine when a device is open
func (c *Cues) withSpeaker(fn func()) {
	if c.device {
		speaker.Lock()
		defer speaker.Unlock()
	}
	fn()
}
