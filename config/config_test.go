package config

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lixenwraith/simon-task/condition"
)

func TestDefaults(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, uint64(42), cfg.Experiment.Seed)
	assert.Equal(t, 0, cfg.Experiment.MaxFrames)
	assert.Equal(t, ',', cfg.Experiment.DelimiterRune())
	assert.Equal(t, 60, cfg.Display.FrameRate)
	assert.Equal(t, time.Second, cfg.Fixation.Duration)
	assert.Equal(t, "cross", cfg.Fixation.Shape)
	assert.Equal(t, 0.01, cfg.Avatar.Speed)
	assert.Equal(t, 120*time.Millisecond, cfg.Input.HoldWindow)
	assert.Equal(t, ":8765", cfg.Telemetry.Addr)
	assert.Equal(t, 5*time.Millisecond, cfg.Telemetry.QueueDrainInterval)
	assert.False(t, cfg.Datastore.Enabled)
	assert.Equal(t, 880.0, cfg.Audio.OnsetHz)

	positions, err := cfg.Experiment.ParsedPositions()
	require.NoError(t, err)
	assert.Equal(t, []condition.Position{condition.Above, condition.Below}, positions)
}

func TestReadYAML(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	yamlConfig := []byte(`
experiment:
  seed: 7
  max_frames: 600
  delimiter: ";"
  positions: [below]
fixation:
  duration: 500ms
  jitter_min: 400ms
  jitter_max: 800ms
  shape: point
telemetry:
  enabled: true
  wait_for_consumers: true
logger:
  level: debug
`)
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := Load(v)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), cfg.Experiment.Seed)
	assert.Equal(t, 600, cfg.Experiment.MaxFrames)
	assert.Equal(t, ';', cfg.Experiment.DelimiterRune())
	assert.Equal(t, 500*time.Millisecond, cfg.Fixation.Duration)
	assert.Equal(t, 800*time.Millisecond, cfg.Fixation.JitterMax)
	assert.Equal(t, "point", cfg.Fixation.Shape)
	assert.True(t, cfg.Telemetry.WaitForConsumers)
	assert.Equal(t, "debug", cfg.Logger.Level)
	// untouched sections keep their defaults
	assert.Equal(t, 60, cfg.Display.FrameRate)

	positions, err := cfg.Experiment.ParsedPositions()
	require.NoError(t, err)
	assert.Equal(t, []condition.Position{condition.Below}, positions)
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SIMON_EXPERIMENT_SEED", "99")
	t.Setenv("SIMON_DISPLAY_FRAME_RATE", "120")

	cfg, err := Load(NewViper())
	require.NoError(t, err)
	assert.Equal(t, uint64(99), cfg.Experiment.Seed)
	assert.Equal(t, 120, cfg.Display.FrameRate)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "simon-task.toml")
	require.NoError(t, os.WriteFile(path, []byte("[experiment]\nseed = 3\n"), 0o644))

	v := viper.New()
	SetDefaults(v)
	require.NoError(t, ReadFile(v, path))
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), cfg.Experiment.Seed)

	assert.Error(t, ReadFile(viper.New(), filepath.Join(dir, "missing.yaml")))
}

func TestHomeExpansion(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	v := viper.New()
	SetDefaults(v)
	v.Set("experiment.output_dir", "~/sessions")
	cfg, err := Load(v)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sessions"), cfg.Experiment.OutputDir)
}

func TestValidate(t *testing.T) {
	testCases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative max frames", func(c *Config) { c.Experiment.MaxFrames = -1 }},
		{"empty delimiter", func(c *Config) { c.Experiment.Delimiter = "" }},
		{"long delimiter", func(c *Config) { c.Experiment.Delimiter = ";;" }},
		{"unknown position", func(c *Config) { c.Experiment.Positions = []string{"left"} }},
		{"duplicate position", func(c *Config) { c.Experiment.Positions = []string{"above", "Above"} }},
		{"zero frame rate", func(c *Config) { c.Display.FrameRate = 0 }},
		{"zero stimulus width", func(c *Config) { c.Display.StimulusWidth = 0 }},
		{"negative fixation", func(c *Config) { c.Fixation.Duration = -time.Second }},
		{"inverted jitter", func(c *Config) {
			c.Fixation.JitterMin = time.Second
			c.Fixation.JitterMax = time.Millisecond
		}},
		{"unknown shape", func(c *Config) { c.Fixation.Shape = "star" }},
		{"zero avatar", func(c *Config) { c.Avatar.Height = 0 }},
		{"zero hold window", func(c *Config) { c.Input.HoldWindow = 0 }},
		{"telemetry without addr", func(c *Config) {
			c.Telemetry.Enabled = true
			c.Telemetry.Addr = ""
		}},
		{"datastore without dsn", func(c *Config) { c.Datastore.Enabled = true }},
		{"loud audio", func(c *Config) { c.Audio.Volume = 1.5 }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "got %v", err)
		})
	}

	assert.NoError(t, NewDefaultConfig().Validate())
}

func TestEmptyPositionsMeansBoth(t *testing.T) {
	e := ExperimentConfig{}
	positions, err := e.ParsedPositions()
	require.NoError(t, err)
	assert.Equal(t, condition.All, positions)
}
