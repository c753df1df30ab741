package doctor

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/rbright/voicetask/internal/audio"
	"github.com/rbright/voicetask/internal/config"
	"github.com/rbright/voicetask/internal/credentials"
)

type staticToken struct {
	token string
	err   error
}

func (s staticToken) Token() (string, error) { return s.token, s.err }

type fakeBackend struct {
	permission audio.Permission
	err        error
}

func (fakeBackend) Name() string                 { return "fake" }
func (fakeBackend) Family() audio.Family         { return audio.FamilyLinux }
func (fakeBackend) Supports(audio.Encoding) bool { return true }
func (f fakeBackend) RequestPermission(context.Context) (audio.Permission, error) {
	return f.permission, f.err
}
func (fakeBackend) Open(context.Context, audio.Constraints) (audio.Stream, error) {
	return nil, errors.New("unused")
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": exp.Unix(),
	}).SignedString([]byte("secret"))
	require.NoError(t, err)
	return token
}

func findCheck(t *testing.T, report Report, name string) Check {
	t.Helper()
	for _, check := range report.Checks {
		if check.Name == name {
			return check
		}
	}
	t.Fatalf("check %q not in report", name)
	return Check{}
}

func TestReportOKAndString(t *testing.T) {
	report := Report{Checks: []Check{
		{Name: "one", Pass: true, Message: "good"},
		{Name: "two", Pass: false, Message: "bad"},
	}}

	require.False(t, report.OK())
	text := report.String()
	require.Contains(t, text, "[OK] one: good")
	require.Contains(t, text, "[FAIL] two: bad")
}

func TestReportOKAllPassing(t *testing.T) {
	report := Report{Checks: []Check{{Name: "one", Pass: true}, {Name: "two", Pass: true}}}
	require.True(t, report.OK())
}

func TestCheckTokenStates(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	missing := checkToken(staticToken{err: credentials.ErrNoToken}, clock)
	require.False(t, missing.Pass)
	require.Contains(t, missing.Message, "no token configured")

	opaque := checkToken(staticToken{token: "opaque-abc"}, clock)
	require.True(t, opaque.Pass)
	require.Equal(t, "opaque token present", opaque.Message)

	live := checkToken(staticToken{token: signedToken(t, now.Add(time.Hour))}, clock)
	require.True(t, live.Pass)
	require.Contains(t, live.Message, `"user-1"`)
	require.Contains(t, live.Message, "expires 2024-03-01T13:00:00Z")

	expired := checkToken(staticToken{token: signedToken(t, now.Add(-time.Hour))}, clock)
	require.False(t, expired.Pass)
	require.Contains(t, expired.Message, "expired")
}

func TestCheckCapture(t *testing.T) {
	ok := checkCapture(context.Background(), fakeBackend{permission: audio.PermissionGranted})
	require.True(t, ok.Pass)
	require.Equal(t, "capture.fake", ok.Name)

	denied := checkCapture(context.Background(), fakeBackend{permission: audio.PermissionDenied})
	require.False(t, denied.Pass)
	require.Contains(t, denied.Message, "denied")

	missing := checkCapture(context.Background(), fakeBackend{err: audio.ErrNoDevice})
	require.False(t, missing.Pass)
}

func TestCheckCommandEmpty(t *testing.T) {
	check := checkCommand(nil, "capture.command")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "command is empty")
}

func TestCheckBinaryMissing(t *testing.T) {
	check := checkBinary("definitely-not-a-real-binary", "unused")
	require.False(t, check.Pass)
	require.Contains(t, check.Message, "binary not found")
}

func TestCheckCommandUsesBinaryFromPath(t *testing.T) {
	dir := t.TempDir()
	scriptPath := filepath.Join(dir, "fake-rec")
	require.NoError(t, os.WriteFile(scriptPath, []byte("#!/usr/bin/env sh\nexit 0\n"), 0o755))
	t.Setenv("PATH", dir+":"+os.Getenv("PATH"))

	check := checkCommand([]string{"fake-rec", "{output}"}, "capture.command")
	require.True(t, check.Pass)
	require.Contains(t, check.Message, "capture.command command is available")
}

func TestRunCollectsEveryProbe(t *testing.T) {
	cfg := config.Default()
	cfg.Indicator.Enable = false
	cfg.Cache.Path = filepath.Join(t.TempDir(), "cache.db")

	var pinged, opened bool
	report := Run(context.Background(), config.Loaded{Path: "/tmp/config.toml", Config: cfg, Exists: true}, Probes{
		Token:   staticToken{token: "opaque"},
		Ping:    func(context.Context) error { pinged = true; return nil },
		Backend: fakeBackend{permission: audio.PermissionGranted},
		OpenCache: func(_ context.Context, path string) (io.Closer, error) {
			opened = path == cfg.Cache.Path
			return nopCloser{}, nil
		},
	})

	require.True(t, pinged)
	require.True(t, opened)
	require.True(t, report.OK(), report.String())
	require.Len(t, report.Checks, 5)
	require.Contains(t, findCheck(t, report, "api.health").Message, "http://localhost:8001/")
}

func TestRunReportsFailures(t *testing.T) {
	cfg := config.Default()
	cfg.Indicator.Enable = false
	cfg.Cache.Enable = false

	report := Run(context.Background(), config.Loaded{Path: "/nope/config.toml", Config: cfg}, Probes{
		Ping: func(context.Context) error { return errors.New("connection refused") },
	})

	require.False(t, report.OK())
	require.Contains(t, findCheck(t, report, "config").Message, "using defaults")
	require.Contains(t, findCheck(t, report, "api.health").Message, "connection refused")
}
