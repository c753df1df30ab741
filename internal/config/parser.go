package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Parse decodes TOML content over base and validates the result. Unknown keys
// are rejected.
func Parse(content string, base Config) (Config, []Warning, error) {
	cfg, err := decode(content, base)
	if err != nil {
		return Config{}, nil, err
	}
	return finalize(cfg)
}

func decode(content string, base Config) (Config, error) {
	cfg := base
	if strings.TrimSpace(content) == "" {
		return cfg, nil
	}

	decoder := toml.NewDecoder(strings.NewReader(content)).DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, describeDecodeError(err)
	}
	return cfg, nil
}

func describeDecodeError(err error) error {
	var missing *toml.StrictMissingError
	if errors.As(err, &missing) {
		return fmt.Errorf("unknown config keys:\n%s", missing.String())
	}
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		row, col := decodeErr.Position()
		return fmt.Errorf("line %d column %d: %w", row, col, err)
	}
	return err
}

// finalize normalizes enum casing and paths, then validates.
func finalize(cfg Config) (Config, []Warning, error) {
	warnings := make([]Warning, 0)

	repaired, changed, err := repairBaseURL(cfg.API.BaseURL)
	if err != nil {
		return Config{}, nil, err
	}
	if changed {
		warnings = append(warnings, Warning{Message: fmt.Sprintf("api.base_url %q has no host; using %q", cfg.API.BaseURL, repaired)})
	}
	cfg.API.BaseURL = repaired

	cfg.Capture.Backend = strings.ToLower(strings.TrimSpace(cfg.Capture.Backend))
	cfg.Capture.Family = strings.ToLower(strings.TrimSpace(cfg.Capture.Family))
	cfg.Pipeline.DueDateScope = strings.ToLower(strings.TrimSpace(cfg.Pipeline.DueDateScope))

	for _, target := range []*string{&cfg.Auth.TokenFile, &cfg.Cache.Path, &cfg.Debug.Dir} {
		expanded, err := ExpandPath(*target)
		if err != nil {
			return Config{}, nil, err
		}
		*target = expanded
	}

	validated, err := Validate(cfg)
	if err != nil {
		return Config{}, nil, err
	}
	return cfg, append(warnings, validated...), nil
}
