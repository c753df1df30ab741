// Package doctor runs readiness diagnostics for config, credentials, the API, capture, and the cache.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/rbright/voicetask/internal/audio"
	"github.com/rbright/voicetask/internal/config"
	"github.com/rbright/voicetask/internal/credentials"
)

const probeTimeout = 3 * time.Second

// Check is one doctor assertion result.
type Check struct {
	Name    string
	Pass    bool
	Message string
}

// Report is the full doctor output contract.
type Report struct {
	Checks []Check
}

// OK returns true when all checks pass.
func (r Report) OK() bool {
	for _, check := range r.Checks {
		if !check.Pass {
			return false
		}
	}
	return true
}

// String renders the report as user-facing text output.
func (r Report) String() string {
	var b strings.Builder
	for _, check := range r.Checks {
		status := "OK"
		if !check.Pass {
			status = "FAIL"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", status, check.Name, check.Message)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// Probes are the live dependencies doctor exercises. Nil probes are skipped.
type Probes struct {
	Token     credentials.Source
	Ping      func(context.Context) error
	Backend   audio.Backend
	OpenCache func(ctx context.Context, path string) (io.Closer, error)
	Now       func() time.Time
}

// Run executes every check for a loaded config.
func Run(ctx context.Context, loaded config.Loaded, probes Probes) Report {
	cfg := loaded.Config
	checks := []Check{checkConfig(loaded)}

	if probes.Token != nil {
		checks = append(checks, checkToken(probes.Token, probes.Now))
	}
	if probes.Ping != nil {
		checks = append(checks, checkAPI(ctx, cfg.API, probes.Ping))
	}
	if probes.Backend != nil {
		checks = append(checks, checkCapture(ctx, probes.Backend))
	}
	if cfg.Capture.Backend == "command" && len(cfg.Capture.Command.Argv) > 0 {
		checks = append(checks, checkCommand(cfg.Capture.Command.Argv, "capture.command"))
	}
	if cfg.Cache.Enable && probes.OpenCache != nil {
		checks = append(checks, checkCache(ctx, cfg.Cache.Path, probes.OpenCache))
	}
	if cfg.Indicator.Enable {
		checks = append(checks, checkBinary("busctl", "desktop notifications"))
	}

	return Report{Checks: checks}
}

func checkConfig(loaded config.Loaded) Check {
	source := fmt.Sprintf("loaded %q", loaded.Path)
	if !loaded.Exists {
		source = fmt.Sprintf("using defaults (%q not found)", loaded.Path)
	}
	if n := len(loaded.Warnings); n > 0 {
		source += fmt.Sprintf(" with %d warning(s)", n)
	}
	return Check{Name: "config", Pass: true, Message: source}
}

// checkToken reports token presence and, for JWTs, the expiry.
func checkToken(source credentials.Source, now func() time.Time) Check {
	token, err := credentials.Checked{Source: source, Now: now}.Token()
	switch {
	case errors.Is(err, credentials.ErrNoToken):
		return Check{Name: "auth.token", Pass: false, Message: "no token configured; run `voicetask login`"}
	case err != nil:
		return Check{Name: "auth.token", Pass: false, Message: err.Error()}
	}

	claims, ok := credentials.Inspect(token)
	if !ok {
		return Check{Name: "auth.token", Pass: true, Message: "opaque token present"}
	}
	message := "token present"
	if claims.Subject != "" {
		message += fmt.Sprintf(" for %q", claims.Subject)
	}
	if !claims.ExpiresAt.IsZero() {
		message += fmt.Sprintf(", expires %s", claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return Check{Name: "auth.token", Pass: true, Message: message}
}

func checkAPI(ctx context.Context, cfg config.APIConfig, ping func(context.Context) error) Check {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	target := strings.TrimRight(cfg.BaseURL, "/") + cfg.HealthPath
	if err := ping(ctx); err != nil {
		return Check{Name: "api.health", Pass: false, Message: fmt.Sprintf("%s: %v", target, err)}
	}
	return Check{Name: "api.health", Pass: true, Message: fmt.Sprintf("reachable at %s", target)}
}

func checkCapture(ctx context.Context, backend audio.Backend) Check {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	name := "capture." + backend.Name()
	permission, err := backend.RequestPermission(ctx)
	if err != nil {
		return Check{Name: name, Pass: false, Message: err.Error()}
	}
	if permission != audio.PermissionGranted {
		return Check{Name: name, Pass: false, Message: fmt.Sprintf("microphone permission %s", permission)}
	}
	return Check{Name: name, Pass: true, Message: fmt.Sprintf("microphone available (%s)", backend.Family())}
}

func checkCache(ctx context.Context, path string, open func(context.Context, string) (io.Closer, error)) Check {
	store, err := open(ctx, path)
	if err != nil {
		return Check{Name: "cache", Pass: false, Message: err.Error()}
	}
	if err := store.Close(); err != nil {
		return Check{Name: "cache", Pass: false, Message: fmt.Sprintf("close %q: %v", path, err)}
	}
	return Check{Name: "cache", Pass: true, Message: fmt.Sprintf("opened %q", path)}
}

// checkCommand validates that argv contains a runnable command.
func checkCommand(argv []string, name string) Check {
	if len(argv) == 0 {
		return Check{Name: name, Pass: false, Message: "command is empty"}
	}
	return checkBinary(argv[0], fmt.Sprintf("%s command is available", name))
}

// checkBinary validates that a binary exists in PATH.
func checkBinary(bin string, okMsg string) Check {
	path, err := exec.LookPath(bin)
	if err != nil {
		return Check{Name: bin, Pass: false, Message: fmt.Sprintf("binary not found in PATH: %s", bin)}
	}
	return Check{Name: bin, Pass: true, Message: fmt.Sprintf("found at %s (%s)", path, okMsg)}
}
