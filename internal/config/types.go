// Package config resolves, parses, validates, and defaults voicetask configuration.
package config

import "time"

// Config is the fully materialized runtime configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Auth      AuthConfig      `toml:"auth"`
	Capture   CaptureConfig   `toml:"capture"`
	Pipeline  PipelineConfig  `toml:"pipeline"`
	Cache     CacheConfig     `toml:"cache"`
	Indicator IndicatorConfig `toml:"indicator"`
	Debug     DebugConfig     `toml:"debug"`
}

// APIConfig locates the task backend.
type APIConfig struct {
	BaseURL    string `toml:"base_url"`
	Prefix     string `toml:"prefix"`
	HealthPath string `toml:"health_path"`
	TimeoutMS  int    `toml:"timeout_ms"`
	// TestMode selects the unauthenticated transcription/extraction variants.
	TestMode bool `toml:"test_mode"`
}

// Timeout returns the per-request timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// AuthConfig controls where the bearer token is read from.
type AuthConfig struct {
	TokenEnv  string `toml:"token_env"`
	TokenFile string `toml:"token_file"`
}

// CaptureConfig selects the recording backend and its device.
type CaptureConfig struct {
	Backend       string        `toml:"backend"`
	Family        string        `toml:"family"`
	Input         string        `toml:"input"`
	Fallback      string        `toml:"fallback"`
	StopTimeoutMS int           `toml:"stop_timeout_ms"`
	Command       CommandConfig `toml:"command"`
	Lock          bool          `toml:"lock"`
}

// StopTimeout bounds stream finalization.
func (c CaptureConfig) StopTimeout() time.Duration {
	return time.Duration(c.StopTimeoutMS) * time.Millisecond
}

// PipelineConfig tunes submission.
type PipelineConfig struct {
	MinAudioBytes  int    `toml:"min_audio_bytes"`
	MaxTitleLength int    `toml:"max_title_length"`
	DueDateScope   string `toml:"due_date_scope"`
}

// CacheConfig controls the on-disk task snapshot.
type CacheConfig struct {
	Enable bool   `toml:"enable"`
	Path   string `toml:"path"`
}

// IndicatorConfig controls desktop notifications and audio cues.
type IndicatorConfig struct {
	Enable         bool   `toml:"enable"`
	SoundEnable    bool   `toml:"sound_enable"`
	AppName        string `toml:"app_name"`
	ErrorTimeoutMS int    `toml:"error_timeout_ms"`
}

// DebugConfig controls optional debug artifact output.
type DebugConfig struct {
	AudioDump bool   `toml:"audio_dump"`
	Dir       string `toml:"dir"`
}

// CommandConfig stores a raw command string and its parsed argv form.
type CommandConfig struct {
	Raw  string
	Argv []string
}

// Warning is a non-fatal parse/validation message.
type Warning struct {
	Line    int
	Message string
}
