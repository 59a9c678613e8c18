package audio

// Config controls the cue tones
type Config struct {
	Enabled bool
	// OnsetHz is the onset tone pitch; the correct chime starts on it
	OnsetHz float64
	// Feedback enables correct/incorrect tones on the first reaction
	Feedback   bool
	Volume     float64
	SampleRate int
}

func DefaultConfig() Config {
	return Config{
		Enabled:    false,
		OnsetHz:    880.0,
		Feedback:   false,
		Volume:     0.5,
		SampleRate: 48000,
	}
}

// normalize fills zero fields with defaults and clamps the volume
func (c Config) normalize() Config {
	def := DefaultConfig()
	if c.OnsetHz <= 0 {
		c.OnsetHz = def.OnsetHz
	}
	if c.SampleRate <= 0 {
		c.SampleRate = def.SampleRate
	}
	c.Volume = min(max(c.Volume, 0), 1)
	return c
}
