package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestValidateDefaults(t *testing.T) {
	warnings, err := Validate(Default())
	require.NoError(t, err)
	require.Empty(t, warnings)
}

func TestValidateRejectsInvalidFields(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "empty base url", mutate: func(c *Config) { c.API.BaseURL = "" }, wantErr: "api.base_url must not be empty"},
		{name: "bad scheme", mutate: func(c *Config) { c.API.BaseURL = "ftp://localhost" }, wantErr: "http or https"},
		{name: "bad prefix", mutate: func(c *Config) { c.API.Prefix = "api/v1" }, wantErr: "api.prefix"},
		{name: "bad health path", mutate: func(c *Config) { c.API.HealthPath = "" }, wantErr: "api.health_path"},
		{name: "zero timeout", mutate: func(c *Config) { c.API.TimeoutMS = 0 }, wantErr: "api.timeout_ms"},
		{name: "unknown backend", mutate: func(c *Config) { c.Capture.Backend = "alsa" }, wantErr: "capture.backend"},
		{name: "unknown family", mutate: func(c *Config) { c.Capture.Family = "windows" }, wantErr: "capture.family"},
		{name: "empty input", mutate: func(c *Config) { c.Capture.Input = " " }, wantErr: "capture.input"},
		{name: "zero stop timeout", mutate: func(c *Config) { c.Capture.StopTimeoutMS = 0 }, wantErr: "capture.stop_timeout_ms"},
		{name: "command raw but empty argv", mutate: func(c *Config) {
			c.Capture.Command = CommandConfig{Raw: "rec"}
		}, wantErr: "capture.command is configured but empty"},
		{name: "min audio bytes", mutate: func(c *Config) { c.Pipeline.MinAudioBytes = 0 }, wantErr: "pipeline.min_audio_bytes"},
		{name: "title too short", mutate: func(c *Config) { c.Pipeline.MaxTitleLength = 3 }, wantErr: "pipeline.max_title_length"},
		{name: "unknown scope", mutate: func(c *Config) { c.Pipeline.DueDateScope = "sentence" }, wantErr: "pipeline.due_date_scope"},
		{name: "cache without path", mutate: func(c *Config) { c.Cache.Path = "" }, wantErr: "cache.path"},
		{name: "indicator without app name", mutate: func(c *Config) { c.Indicator.AppName = "" }, wantErr: "indicator.app_name"},
		{name: "negative error timeout", mutate: func(c *Config) { c.Indicator.ErrorTimeoutMS = -1 }, wantErr: "error_timeout"},
		{name: "audio dump without dir", mutate: func(c *Config) {
			c.Debug.AudioDump = true
			c.Debug.Dir = ""
		}, wantErr: "debug.dir"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)

			_, err := Validate(cfg)
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateWarnings(t *testing.T) {
	cfg := Default()
	cfg.API.BaseURL = "http://tasks.example.com"
	cfg.Capture.Lock = false

	warnings, err := Validate(cfg)
	require.NoError(t, err)
	require.Len(t, warnings, 2)
	require.Contains(t, warnings[0].Message, "plain http")
	require.Contains(t, warnings[1].Message, "capture.lock=false")
}

func TestRepairBaseURL(t *testing.T) {
	tests := []struct {
		raw     string
		want    string
		changed bool
	}{
		{raw: "http://:8003", want: "http://localhost:8003", changed: true},
		{raw: "http://:8003/base", want: "http://localhost:8003/base", changed: true},
		{raw: " http://api.local:8001 ", want: "http://api.local:8001", changed: false},
		{raw: "https://tasks.example.com", want: "https://tasks.example.com", changed: false},
	}
	for _, tc := range tests {
		got, changed, err := repairBaseURL(tc.raw)
		require.NoError(t, err)
		require.Equal(t, tc.want, got, tc.raw)
		require.Equal(t, tc.changed, changed, tc.raw)
	}
}
