// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Simulate  SimulateConfig  `yaml:"simulate"`
}

// LogConfig represents logger configuration.
type LogConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
}

// SchedulerConfig represents break scheduling thresholds in seconds.
type SchedulerConfig struct {
	SeekThreshold float64 `yaml:"seek_threshold" default:"1.5" validate:"gt=0,lte=60"`
	Tolerance     float64 `yaml:"tolerance" default:"0.5" validate:"gt=0,lte=10"`
}

// TrackingConfig represents beacon delivery configuration.
type TrackingConfig struct {
	TimeoutMs   int    `yaml:"timeout_ms" default:"5000" validate:"gte=100,lte=60000"`
	Concurrency int    `yaml:"concurrency" default:"4" validate:"gte=1,lte=64"`
	UserAgent   string `yaml:"user_agent" default:"adbreak/1.0"`
	HTTP2       bool   `yaml:"http2"`
}

// SimulateConfig represents the simulated player used by the simulate command.
type SimulateConfig struct {
	ContentDuration float64             `yaml:"content_duration" default:"120" validate:"gt=0"`
	AdDuration      float64             `yaml:"ad_duration" default:"15" validate:"gt=0"`
	TickMs          int                 `yaml:"tick_ms" default:"250" validate:"gte=10,lte=5000"`
	Speed           float64             `yaml:"speed" default:"1" validate:"gt=0,lte=100"`
	AdTracking      map[string][]string `yaml:"ad_tracking" validate:"dive,keys,oneof=start firstQuartile midpoint thirdQuartile complete,endkeys,dive,url"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse builds a configuration from YAML data. Empty data yields the defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	if err := cfg.overrideFromEnv(); err != nil {
		return nil, err
	}

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() error {
	if v := os.Getenv("ADBREAK_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ADBREAK_TRACKING_USER_AGENT"); v != "" {
		c.Tracking.UserAgent = v
	}
	if v := os.Getenv("ADBREAK_TRACKING_HTTP2"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return errors.Wrapf(err, "invalid ADBREAK_TRACKING_HTTP2 %q", v)
		}
		c.Tracking.HTTP2 = b
	}
	if v := os.Getenv("ADBREAK_SIMULATE_SPEED"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid ADBREAK_SIMULATE_SPEED %q", v)
		}
		c.Simulate.Speed = f
	}
	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	// Validate timing consistency
	if err := c.validateTiming(); err != nil {
		return err
	}

	return nil
}

// validateTiming checks that thresholds leave room for regular playback.
func (c *Config) validateTiming() error {
	if c.Scheduler.Tolerance >= c.Scheduler.SeekThreshold {
		return errors.Newf("tolerance (%.2f) must be below seek_threshold (%.2f)",
			c.Scheduler.Tolerance, c.Scheduler.SeekThreshold)
	}

	// A tick larger than the seek threshold would look like a seek and skip midrolls.
	if step := c.Simulate.Step(); step >= c.Scheduler.SeekThreshold {
		return errors.Newf("simulated step (%.2fs = tick_ms x speed) must be below seek_threshold (%.2f)",
			step, c.Scheduler.SeekThreshold)
	}

	return nil
}

// Timeout returns the beacon request timeout.
func (t TrackingConfig) Timeout() time.Duration {
	return time.Duration(t.TimeoutMs) * time.Millisecond
}

// Tick returns the wall clock interval between simulation steps.
func (s SimulateConfig) Tick() time.Duration {
	return time.Duration(s.TickMs) * time.Millisecond
}

// Step returns the timeline seconds advanced per simulation step.
func (s SimulateConfig) Step() float64 {
	return s.Tick().Seconds() * s.Speed
}
