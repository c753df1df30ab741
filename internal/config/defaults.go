package config

import "path/filepath"

// Default returns the configuration used when no file is present.
func Default() Config {
	state, err := StateDir()
	if err != nil {
		state = ""
	}

	cfg := Config{
		API: APIConfig{
			BaseURL:    "http://localhost:8001",
			Prefix:     "/api/v1",
			HealthPath: "/",
			TimeoutMS:  60000,
		},
		Auth: AuthConfig{
			TokenEnv: "VOICETASK_TOKEN",
		},
		Capture: CaptureConfig{
			Backend:       "auto",
			Family:        "auto",
			Input:         "default",
			Fallback:      "default",
			StopTimeoutMS: 3000,
			Lock:          true,
		},
		Pipeline: PipelineConfig{
			MinAudioBytes:  1024,
			MaxTitleLength: 100,
			DueDateScope:   "candidate",
		},
		Cache: CacheConfig{Enable: true},
		Indicator: IndicatorConfig{
			Enable:         true,
			SoundEnable:    true,
			AppName:        "voicetask",
			ErrorTimeoutMS: 1600,
		},
	}

	if state != "" {
		cfg.Auth.TokenFile = filepath.Join(state, "token")
		cfg.Cache.Path = filepath.Join(state, "cache.db")
		cfg.Debug.Dir = filepath.Join(state, "debug")
	}
	return cfg
}
