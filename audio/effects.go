package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"
)

// WaveType defines oscillator wave shapes
type WaveType int

const (
	WaveSine WaveType = iota
	WaveSquare
	WaveSaw
)

// Tone timings
const (
	OnsetDuration = 60 * time.Millisecond
	OnsetAttack   = 5 * time.Millisecond
	OnsetRelease  = 30 * time.Millisecond

	CorrectNoteDuration = 70 * time.Millisecond
	CorrectAttack       = 5 * time.Millisecond
	CorrectRelease      = 40 * time.Millisecond

	IncorrectDuration = 150 * time.Millisecond
	IncorrectAttack   = 10 * time.Millisecond
	IncorrectRelease  = 60 * time.Millisecond
)

// oscillator generates raw audio waves
type oscillator struct {
	freq     float64
	phase    float64
	duration int
	position int
	wave     WaveType
	rate     beep.SampleRate
}

// NewOscillator creates a new oscillator for wave generation
func NewOscillator(freq float64, duration time.Duration, wave WaveType, rate beep.SampleRate) beep.Streamer {
	return &oscillator{
		freq:     freq,
		duration: rate.N(duration),
		wave:     wave,
		rate:     rate,
	}
}

func (o *oscillator) Stream(samples [][2]float64) (n int, ok bool) {
	for i := range samples {
		if o.position >= o.duration {
			return i, i > 0
		}

		var val float64
		switch o.wave {
		case WaveSine:
			val = math.Sin(2 * math.Pi * o.phase)
		case WaveSquare:
			if o.phase < 0.5 {
				val = 1.0
			} else {
				val = -1.0
			}
		case WaveSaw:
			val = 2.0 * (o.phase - 0.5)
		}

		samples[i][0] = val
		samples[i][1] = val

		o.phase += o.freq / float64(o.rate)
		o.phase = o.phase - math.Floor(o.phase) // Keep in [0, 1)
		o.position++
	}
	return len(samples), true
}

func (o *oscillator) Err() error { return nil }

// envelope applies attack/release shaping to a stream
type envelope struct {
	streamer       beep.Streamer
	position       int
	attackSamples  int
	releaseSamples int
	sustainSamples int
	totalSamples   int
}

// NewEnvelope creates a linear attack/sustain/release envelope
func NewEnvelope(s beep.Streamer, duration, attack, release time.Duration, rate beep.SampleRate) beep.Streamer {
	total := rate.N(duration)
	att := rate.N(attack)
	rel := rate.N(release)
	sus := max(total-att-rel, 0)

	return &envelope{
		streamer:       s,
		attackSamples:  att,
		releaseSamples: rel,
		sustainSamples: sus,
		totalSamples:   total,
	}
}

func (e *envelope) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = e.streamer.Stream(samples)

	for i := 0; i < n; i++ {
		if e.position >= e.totalSamples {
			return i, i > 0
		}

		vol := 1.0
		if e.position < e.attackSamples && e.attackSamples > 0 {
			vol = float64(e.position) / float64(e.attackSamples)
		}
		releaseStart := e.attackSamples + e.sustainSamples
		if e.position >= releaseStart && e.releaseSamples > 0 {
			vol = max(float64(e.totalSamples-e.position)/float64(e.releaseSamples), 0)
		}

		samples[i][0] *= vol
		samples[i][1] *= vol
		e.position++
	}

	return n, ok
}

func (e *envelope) Err() error { return e.streamer.Err() }

// newVolume wraps s in a linear gain; math.Log2(0) is -Inf, so 0 maps to silent
func newVolume(s beep.Streamer, vol float64) beep.Streamer {
	if vol <= 0 {
		return &effects.Volume{Streamer: s, Base: 2, Volume: 0, Silent: true}
	}
	return &effects.Volume{Streamer: s, Base: 2, Volume: math.Log2(vol), Silent: false}
}

// OnsetTone is a short sine blip marking stimulus onset
func OnsetTone(cfg Config) beep.Streamer {
	rate := beep.SampleRate(cfg.SampleRate)
	osc := NewOscillator(cfg.OnsetHz, OnsetDuration, WaveSine, rate)
	shaped := NewEnvelope(osc, OnsetDuration, OnsetAttack, OnsetRelease, rate)
	return newVolume(shaped, cfg.Volume)
}

// CorrectTone is a rising two-note chime, a fifth apart
func CorrectTone(cfg Config) beep.Streamer {
	rate := beep.SampleRate(cfg.SampleRate)

	n1 := NewOscillator(cfg.OnsetHz, CorrectNoteDuration, WaveSquare, rate)
	n1Shaped := NewEnvelope(n1, CorrectNoteDuration, CorrectAttack, CorrectRelease, rate)

	n2 := NewOscillator(cfg.OnsetHz*1.5, CorrectNoteDuration, WaveSquare, rate)
	n2Shaped := NewEnvelope(n2, CorrectNoteDuration, CorrectAttack, CorrectRelease, rate)

	return newVolume(beep.Seq(n1Shaped, n2Shaped), cfg.Volume*0.5)
}

// IncorrectTone is a low saw buzz
func IncorrectTone(cfg Config) beep.Streamer {
	rate := beep.SampleRate(cfg.SampleRate)
	osc := NewOscillator(110.0, IncorrectDuration, WaveSaw, rate)
	shaped := NewEnvelope(osc, IncorrectDuration, IncorrectAttack, IncorrectRelease, rate)
	return newVolume(shaped, cfg.Volume*0.6)
}
