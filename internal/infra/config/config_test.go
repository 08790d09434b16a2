package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	require.NoError(t, err)

	assert.Equal(t, "stdout", cfg.Log.Output)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, 1.5, cfg.Scheduler.SeekThreshold)
	assert.Equal(t, 0.5, cfg.Scheduler.Tolerance)
	assert.Equal(t, 5*time.Second, cfg.Tracking.Timeout())
	assert.Equal(t, 4, cfg.Tracking.Concurrency)
	assert.Equal(t, "adbreak/1.0", cfg.Tracking.UserAgent)
	assert.False(t, cfg.Tracking.HTTP2)
	assert.Equal(t, 120.0, cfg.Simulate.ContentDuration)
	assert.Equal(t, 15.0, cfg.Simulate.AdDuration)
	assert.Equal(t, 250*time.Millisecond, cfg.Simulate.Tick())
	assert.Equal(t, 0.25, cfg.Simulate.Step())
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "adbreak.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
log:
  level: debug
scheduler:
  seek_threshold: 2
tracking:
  timeout_ms: 1500
  http2: true
simulate:
  content_duration: 60
  ad_tracking:
    start:
      - https://t.example/start
    complete:
      - https://t.example/complete
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2.0, cfg.Scheduler.SeekThreshold)
	assert.Equal(t, 0.5, cfg.Scheduler.Tolerance, "unset fields keep defaults")
	assert.Equal(t, 1500*time.Millisecond, cfg.Tracking.Timeout())
	assert.True(t, cfg.Tracking.HTTP2)
	assert.Equal(t, 60.0, cfg.Simulate.ContentDuration)
	assert.Equal(t, []string{"https://t.example/complete"}, cfg.Simulate.AdTracking["complete"])
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
		errMsg  string
	}{
		{
			name: "valid config",
			yaml: "simulate:\n  speed: 4\n",
		},
		{
			name:    "broken yaml",
			yaml:    "log: [",
			wantErr: true,
			errMsg:  "failed to parse",
		},
		{
			name:    "unknown log level",
			yaml:    "log:\n  level: loud\n",
			wantErr: true,
			errMsg:  "Level",
		},
		{
			name:    "concurrency too high",
			yaml:    "tracking:\n  concurrency: 1000\n",
			wantErr: true,
			errMsg:  "Concurrency",
		},
		{
			name:    "negative content duration",
			yaml:    "simulate:\n  content_duration: -1\n",
			wantErr: true,
			errMsg:  "ContentDuration",
		},
		{
			name:    "unknown ad tracking event",
			yaml:    "simulate:\n  ad_tracking:\n    impression: [\"https://t.example/i\"]\n",
			wantErr: true,
			errMsg:  "AdTracking",
		},
		{
			name:    "ad tracking url invalid",
			yaml:    "simulate:\n  ad_tracking:\n    start: [\"not a url\"]\n",
			wantErr: true,
			errMsg:  "AdTracking",
		},
		{
			name:    "tolerance above seek threshold",
			yaml:    "scheduler:\n  seek_threshold: 1\n  tolerance: 2\n",
			wantErr: true,
			errMsg:  "tolerance",
		},
		{
			name:    "step looks like a seek",
			yaml:    "simulate:\n  tick_ms: 500\n  speed: 10\n",
			wantErr: true,
			errMsg:  "simulated step",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr {
				require.Error(t, err)
				if tt.errMsg != "" {
					assert.Contains(t, err.Error(), tt.errMsg)
				}
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParse_EnvOverride(t *testing.T) {
	t.Setenv("ADBREAK_LOG_LEVEL", "warn")
	t.Setenv("ADBREAK_TRACKING_USER_AGENT", "test-agent")
	t.Setenv("ADBREAK_TRACKING_HTTP2", "true")
	t.Setenv("ADBREAK_SIMULATE_SPEED", "2")

	cfg, err := Parse([]byte("log:\n  level: debug\n"))
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, "test-agent", cfg.Tracking.UserAgent)
	assert.True(t, cfg.Tracking.HTTP2)
	assert.Equal(t, 2.0, cfg.Simulate.Speed)
}

func TestParse_EnvOverrideInvalid(t *testing.T) {
	t.Setenv("ADBREAK_TRACKING_HTTP2", "maybe")

	_, err := Parse(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADBREAK_TRACKING_HTTP2")
}
