package audio

import (
	"testing"
)

// offlineCues behaves as initialized without opening a device
func offlineCues(cfg Config) *Cues {
	c := NewCues(cfg, nil)
	c.initialized = true
	return c
}

func TestCuesUninitializedIsSilent(t *testing.T) {
	c := NewCues(DefaultConfig(), nil)
	c.Onset()
	c.Feedback(true)

	if c.mixer.Len() != 0 {
		t.Errorf("Expected no queued tones before Initialize, got %d", c.mixer.Len())
	}
}

func TestCuesDisabledInitializeIsNoop(t *testing.T) {
	c := NewCues(Config{Enabled: false}, nil)
	if err := c.Initialize(); err != nil {
		t.Fatalf("Expected no error for disabled audio, got %v", err)
	}
	if c.initialized {
		t.Error("Expected disabled cues to stay uninitialized")
	}
}

func TestCuesOnsetAndFeedback(t *testing.T) {
	tests := []struct {
		name     string
		feedback bool
		want     int
	}{
		{"Onset only", false, 1},
		{"Onset and feedback", true, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Feedback = tt.feedback
			c := offlineCues(cfg)

			c.Onset()
			c.Feedback(true)
			c.Feedback(false)

			if got := c.mixer.Len(); got != tt.want {
				t.Errorf("Expected %d queued tones, got %d", tt.want, got)
			}
		})
	}
}

func TestCuesClose(t *testing.T) {
	c := offlineCues(DefaultConfig())
	c.Onset()
	c.Close()

	if c.mixer.Len() != 0 {
		t.Errorf("Expected mixer cleared, got %d", c.mixer.Len())
	}
	c.Onset()
	if c.mixer.Len() != 0 {
		t.Error("Expected no tones after Close")
	}
}

func TestConfigNormalize(t *testing.T) {
	c := Config{Volume: 3}.normalize()
	if c.Volume != 1 {
		t.Errorf("Expected volume clamped to 1, got %f", c.Volume)
	}
	if c.OnsetHz != 880.0 || c.SampleRate != 48000 {
		t.Errorf("Expected defaults filled, got %+v", c)
	}
}
