// Package config loads the experiment configuration from file, environment and defaults
package config

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/lixenwraith/simon-task/condition"
)

// EnvPrefix prefixes every environment override, e.g. SIMON_EXPERIMENT_SEED
const EnvPrefix = "SIMON"

var ErrInvalid = goerr.New("invalid configuration")

// Config holds the entire application configuration
type Config struct {
	Experiment ExperimentConfig `mapstructure:"experiment" yaml:"experiment"`
	Display    DisplayConfig    `mapstructure:"display" yaml:"display"`
	Fixation   FixationConfig   `mapstructure:"fixation" yaml:"fixation"`
	Avatar     AvatarConfig     `mapstructure:"avatar" yaml:"avatar"`
	Input      InputConfig      `mapstructure:"input" yaml:"input"`
	Telemetry  TelemetryConfig  `mapstructure:"telemetry" yaml:"telemetry"`
	Datastore  DatastoreConfig  `mapstructure:"datastore" yaml:"datastore"`
	Audio      AudioConfig      `mapstructure:"audio" yaml:"audio"`
	Logger     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
}

type ExperimentConfig struct {
	Seed uint64 `mapstructure:"seed" yaml:"seed"`
	// MaxFrames times a trial out after this many frames; 0 disables the guard
	MaxFrames int      `mapstructure:"max_frames" yaml:"max_frames"`
	Stimuli   string   `mapstructure:"stimuli" yaml:"stimuli"`
	Delimiter string   `mapstructure:"delimiter" yaml:"delimiter"`
	OutputDir string   `mapstructure:"output_dir" yaml:"output_dir"`
	Positions []string `mapstructure:"positions" yaml:"positions"`
}

type DisplayConfig struct {
	FrameRate      int     `mapstructure:"frame_rate" yaml:"frame_rate"`
	StimulusY      float64 `mapstructure:"stimulus_y" yaml:"stimulus_y"`
	StimulusWidth  float64 `mapstructure:"stimulus_width" yaml:"stimulus_width"`
	StimulusHeight float64 `mapstructure:"stimulus_height" yaml:"stimulus_height"`
}

type FixationConfig struct {
	Duration  time.Duration `mapstructure:"duration" yaml:"duration"`
	JitterMin time.Duration `mapstructure:"jitter_min" yaml:"jitter_min"`
	JitterMax time.Duration `mapstructure:"jitter_max" yaml:"jitter_max"`
	// Shape is cross or point
	Shape string `mapstructure:"shape" yaml:"shape"`
}

type AvatarConfig struct {
	Speed  float64 `mapstructure:"speed" yaml:"speed"`
	Width  float64 `mapstructure:"width" yaml:"width"`
	Height float64 `mapstructure:"height" yaml:"height"`
}

type InputConfig struct {
	// HoldWindow is how long a key counts as held after its last press or repeat
	HoldWindow time.Duration `mapstructure:"hold_window" yaml:"hold_window"`
}

type TelemetryConfig struct {
	Enabled            bool          `mapstructure:"enabled" yaml:"enabled"`
	Addr               string        `mapstructure:"addr" yaml:"addr"`
	WaitForConsumers   bool          `mapstructure:"wait_for_consumers" yaml:"wait_for_consumers"`
	ReadyTimeout       time.Duration `mapstructure:"ready_timeout" yaml:"ready_timeout"`
	QueueDrainInterval time.Duration `mapstructure:"queue_drain_interval" yaml:"queue_drain_interval"`
}

type DatastoreConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	DSN     string `mapstructure:"dsn" yaml:"dsn"`
}

type AudioConfig struct {
	Enabled  bool    `mapstructure:"enabled" yaml:"enabled"`
	OnsetHz  float64 `mapstructure:"onset_hz" yaml:"onset_hz"`
	Feedback bool    `mapstructure:"feedback" yaml:"feedback"`
	Volume   float64 `mapstructure:"volume" yaml:"volume"`
}

// LoggerConfig configures zap; while the terminal UI runs, logs go to File only
type LoggerConfig struct {
	Level      string `mapstructure:"level" yaml:"level"`
	Format     string `mapstructure:"format" yaml:"format"`
	File       string `mapstructure:"file" yaml:"file"`
	MaxSize    int    `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups int    `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge     int    `mapstructure:"max_age" yaml:"max_age"`
	Compress   bool   `mapstructure:"compress" yaml:"compress"`
}

// SetDefaults registers every key so environment overrides resolve during Unmarshal
func SetDefaults(v *viper.Viper) {
	// -- Experiment --
	v.SetDefault("experiment.seed", 42)
	v.SetDefault("experiment.max_frames", 0)
	v.SetDefault("experiment.stimuli", "")
	v.SetDefault("experiment.delimiter", ",")
	v.SetDefault("experiment.output_dir", "data")
	v.SetDefault("experiment.positions", []string{"above", "below"})

	// -- Display --
	v.SetDefault("display.frame_rate", 60)
	v.SetDefault("display.stimulus_y", 0.0)
	v.SetDefault("display.stimulus_width", 0.5)
	v.SetDefault("display.stimulus_height", 0.5)

	// -- Fixation --
	v.SetDefault("fixation.duration", "1s")
	v.SetDefault("fixation.jitter_min", "0s")
	v.SetDefault("fixation.jitter_max", "0s")
	v.SetDefault("fixation.shape", "cross")

	// -- Avatar --
	v.SetDefault("avatar.speed", 0.01)
	v.SetDefault("avatar.width", 0.1)
	v.SetDefault("avatar.height", 0.1)

	// -- Input --
	v.SetDefault("input.hold_window", "120ms")

	// -- Telemetry --
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.addr", ":8765")
	v.SetDefault("telemetry.wait_for_consumers", false)
	v.SetDefault("telemetry.ready_timeout", "10s")
	v.SetDefault("telemetry.queue_drain_interval", "5ms")

	// -- Datastore --
	v.SetDefault("datastore.enabled", false)
	v.SetDefault("datastore.dsn", "")

	// -- Audio --
	v.SetDefault("audio.enabled", false)
	v.SetDefault("audio.onset_hz", 880.0)
	v.SetDefault("audio.feedback", false)
	v.SetDefault("audio.volume", 0.5)

	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")
	v.SetDefault("logger.file", "simon-task.log")
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 3)
	v.SetDefault("logger.max_age", 28)
	v.SetDefault("logger.compress", false)
}

// NewViper returns a viper instance with defaults and SIMON_ environment overrides
func NewViper() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// NewDefaultConfig is the configuration with no file and no environment
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)
	cfg, err := Load(v)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load unmarshals, expands paths and validates
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, goerr.Wrap(err, "error unmarshaling config")
	}
	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ReadFile loads path into v; the format follows the extension (yaml, toml, json)
func ReadFile(v *viper.Viper, path string) error {
	expanded, err := homedir.Expand(path)
	if err != nil {
		return goerr.Wrap(err, "expand config path", goerr.V("path", path))
	}
	v.SetConfigFile(expanded)
	if err := v.ReadInConfig(); err != nil {
		return goerr.Wrap(err, "error reading config file", goerr.V("path", expanded))
	}
	return nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{&c.Experiment.Stimuli, &c.Experiment.OutputDir, &c.Logger.File} {
		if *p == "" {
			continue
		}
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return goerr.Wrap(err, "expand path", goerr.V("path", *p))
		}
		*p = expanded
	}
	return nil
}

func invalid(msg string, kv ...any) error {
	opts := make([]goerr.Option, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		opts = append(opts, goerr.V(kv[i].(string), kv[i+1]))
	}
	return goerr.Wrap(ErrInvalid, msg, opts...)
}

// Validate checks the configuration for sane values
func (c *Config) Validate() error {
	if c.Experiment.MaxFrames < 0 {
		return invalid("experiment.max_frames must not be negative", "value", c.Experiment.MaxFrames)
	}
	if utf8.RuneCountInString(c.Experiment.Delimiter) != 1 {
		return invalid("experiment.delimiter must be a single character", "value", c.Experiment.Delimiter)
	}
	if _, err := c.Experiment.ParsedPositions(); err != nil {
		return err
	}
	if c.Display.FrameRate <= 0 {
		return invalid("display.frame_rate must be a positive integer", "value", c.Display.FrameRate)
	}
	if c.Display.StimulusWidth <= 0 || c.Display.StimulusHeight <= 0 {
		return invalid("display stimulus size must be positive")
	}
	if c.Fixation.Duration < 0 || c.Fixation.JitterMin < 0 || c.Fixation.JitterMax < 0 {
		return invalid("fixation durations must not be negative")
	}
	if c.Fixation.JitterMax > 0 && c.Fixation.JitterMax < c.Fixation.JitterMin {
		return invalid("fixation.jitter_max must not be below jitter_min",
			"jitter_min", c.Fixation.JitterMin.String(), "jitter_max", c.Fixation.JitterMax.String())
	}
	if s := c.Fixation.Shape; s != "cross" && s != "point" {
		return invalid("fixation.shape must be cross or point", "value", s)
	}
	if c.Avatar.Width <= 0 || c.Avatar.Height <= 0 {
		return invalid("avatar size must be positive")
	}
	if c.Input.HoldWindow <= 0 {
		return invalid("input.hold_window must be positive", "value", c.Input.HoldWindow.String())
	}
	if c.Telemetry.Enabled && c.Telemetry.Addr == "" {
		return invalid("telemetry.addr is required when telemetry is enabled")
	}
	if c.Datastore.Enabled && c.Datastore.DSN == "" {
		return invalid("datastore.dsn is required when the datastore is enabled")
	}
	if c.Audio.Volume < 0 || c.Audio.Volume > 1 {
		return invalid("audio.volume must be between 0.0 and 1.0", "value", c.Audio.Volume)
	}
	return nil
}

// ParsedPositions resolves the configured placement values; an empty list means both
func (e ExperimentConfig) ParsedPositions() ([]condition.Position, error) {
	if len(e.Positions) == 0 {
		return condition.All, nil
	}
	out := make([]condition.Position, 0, len(e.Positions))
	seen := make(map[condition.Position]bool)
	for _, s := range e.Positions {
		p, err := condition.ParsePosition(s)
		if err != nil {
			return nil, invalid("experiment.positions has an unknown value", "value", s)
		}
		if seen[p] {
			return nil, invalid("experiment.positions has a duplicate", "value", s)
		}
		seen[p] = true
		out = append(out, p)
	}
	return out, nil
}

// DelimiterRune returns the CSV field separator
func (e ExperimentConfig) DelimiterRune() rune {
	r, _ := utf8.DecodeRuneInString(e.Delimiter)
	return r
}
