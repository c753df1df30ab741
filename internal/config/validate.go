package config

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strings"
)

var (
	captureBackends = []string{"auto", "pulse", "command"}
	captureFamilies = []string{"auto", "apple", "android", "linux", "generic"}
	dueDateScopes   = []string{"candidate", "utterance"}
)

// Validate enforces config invariants and returns non-fatal warnings.
func Validate(cfg Config) ([]Warning, error) {
	warnings := make([]Warning, 0)

	base := strings.TrimSpace(cfg.API.BaseURL)
	if base == "" {
		return nil, fmt.Errorf("api.base_url must not be empty")
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("api.base_url is invalid: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("api.base_url must use http or https")
	}
	if parsed.Host == "" {
		return nil, fmt.Errorf("api.base_url must include a host")
	}
	if parsed.Scheme == "http" && !isLoopback(parsed.Hostname()) {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("api.base_url %q sends the access token over plain http", base)})
	}

	if !strings.HasPrefix(strings.TrimSpace(cfg.API.Prefix), "/") {
		return nil, fmt.Errorf("api.prefix must start with '/'")
	}
	if !strings.HasPrefix(strings.TrimSpace(cfg.API.HealthPath), "/") {
		return nil, fmt.Errorf("api.health_path must start with '/'")
	}
	if cfg.API.TimeoutMS <= 0 {
		return nil, fmt.Errorf("api.timeout_ms must be > 0")
	}

	if strings.TrimSpace(cfg.Auth.TokenEnv) == "" && strings.TrimSpace(cfg.Auth.TokenFile) == "" && !cfg.API.TestMode {
		warnings = append(warnings, Warning{Message: "auth.token_env and auth.token_file are both empty; authenticated calls will fail"})
	}

	if !slices.Contains(captureBackends, cfg.Capture.Backend) {
		return nil, fmt.Errorf("capture.backend must be one of: %s", strings.Join(captureBackends, ", "))
	}
	if !slices.Contains(captureFamilies, cfg.Capture.Family) {
		return nil, fmt.Errorf("capture.family must be one of: %s", strings.Join(captureFamilies, ", "))
	}
	if strings.TrimSpace(cfg.Capture.Input) == "" {
		return nil, fmt.Errorf("capture.input must not be empty")
	}
	if cfg.Capture.StopTimeoutMS <= 0 {
		return nil, fmt.Errorf("capture.stop_timeout_ms must be > 0")
	}
	if cfg.Capture.Command.Raw != "" && len(cfg.Capture.Command.Argv) == 0 {
		return nil, fmt.Errorf("capture.command is configured but empty")
	}
	if len(cfg.Capture.Command.Argv) > 0 && !strings.Contains(cfg.Capture.Command.Raw, "{output}") {
		return nil, fmt.Errorf("capture.command must contain an {output} placeholder")
	}
	if cfg.Capture.Backend == "pulse" && len(cfg.Capture.Command.Argv) > 0 {
		warnings = append(warnings, Warning{Message: "capture.command is ignored when capture.backend=pulse"})
	}
	if !cfg.Capture.Lock {
		warnings = append(warnings, Warning{Message: "capture.lock=false allows overlapping recordings"})
	}

	if cfg.Pipeline.MinAudioBytes <= 0 {
		return nil, fmt.Errorf("pipeline.min_audio_bytes must be > 0")
	}
	if cfg.Pipeline.MaxTitleLength <= 3 {
		return nil, fmt.Errorf("pipeline.max_title_length must be > 3")
	}
	if !slices.Contains(dueDateScopes, cfg.Pipeline.DueDateScope) {
		return nil, fmt.Errorf("pipeline.due_date_scope must be one of: %s", strings.Join(dueDateScopes, ", "))
	}

	if cfg.Cache.Enable && strings.TrimSpace(cfg.Cache.Path) == "" {
		return nil, fmt.Errorf("cache.path must not be empty when cache.enable=true")
	}

	if cfg.Indicator.Enable && strings.TrimSpace(cfg.Indicator.AppName) == "" {
		return nil, fmt.Errorf("indicator.app_name must not be empty when indicator.enable=true")
	}
	if cfg.Indicator.ErrorTimeoutMS < 0 {
		return nil, fmt.Errorf("indicator.error_timeout_ms must be >= 0")
	}

	if cfg.Debug.AudioDump && strings.TrimSpace(cfg.Debug.Dir) == "" {
		return nil, fmt.Errorf("debug.dir must not be empty when debug.audio_dump=true")
	}

	return warnings, nil
}

// repairBaseURL fills in localhost for a URL that carries a port but no host,
// as in "http://:8003".
func repairBaseURL(raw string) (string, bool, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw, false, nil
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", false, fmt.Errorf("api.base_url is invalid: %w", err)
	}
	if parsed.Hostname() != "" || parsed.Port() == "" {
		return trimmed, false, nil
	}
	parsed.Host = net.JoinHostPort("localhost", parsed.Port())
	return parsed.String(), true, nil
}

func isLoopback(host string) bool {
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
