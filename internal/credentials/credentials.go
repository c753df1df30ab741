// Package credentials resolves the bearer token used for authenticated API calls.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoToken      = errors.New("no access token configured")
	ErrTokenExpired = errors.New("access token expired")
)

// Source yields the current access token.
type Source interface {
	Token() (string, error)
}

// Claims is the subset of token claims inspected locally.
type Claims struct {
	Subject   string
	ExpiresAt time.Time
}

// EnvSource reads the token from an environment variable.
type EnvSource struct {
	Key string
}

func (s EnvSource) Token() (string, error) {
	token := strings.TrimSpace(os.Getenv(s.Key))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// FileSource reads the token from a file.
type FileSource struct {
	Path string
}

func (s FileSource) Token() (string, error) {
	if strings.TrimSpace(s.Path) == "" {
		return "", ErrNoToken
	}
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("read token file %q: %w", s.Path, err)
	}
	token := strings.TrimSpace(string(raw))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// Save writes token to the file with owner-only permissions.
func (s FileSource) Save(token string) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("create token dir: %w", err)
	}
	if err := os.WriteFile(s.Path, []byte(strings.TrimSpace(token)+"\n"), 0o600); err != nil {
		return fmt.Errorf("write token file %q: %w", s.Path, err)
	}
	return nil
}

// Remove deletes the token file; a missing file is not an error.
func (s FileSource) Remove() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove token file %q: %w", s.Path, err)
	}
	return nil
}

// Chain returns the first token any source yields.
type Chain []Source

func (c Chain) Token() (string, error) {
	for _, source := range c {
		token, err := source.Token()
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, ErrNoToken) {
			return "", err
		}
	}
	return "", ErrNoToken
}

// Checked wraps a source and rejects JWTs whose exp claim has passed.
// Opaque tokens pass through; the server stays the authority.
type Checked struct {
	Source Source
	Now    func() time.Time
}

func (c Checked) Token() (string, error) {
	token, err := c.Source.Token()
	if err != nil {
		return "", err
	}
	claims, ok := Inspect(token)
	if !ok || claims.ExpiresAt.IsZero() {
		return token, nil
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if !now().Before(claims.ExpiresAt) {
		return "", fmt.Errorf("%w at %s", ErrTokenExpired, claims.ExpiresAt.UTC().Format(time.RFC3339))
	}
	return token, nil
}

// Inspect decodes JWT claims without verifying the signature.
func Inspect(token string) (Claims, bool) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return Claims{}, false
	}

	var claims Claims
	if sub, err := parsed.Claims.GetSubject(); err == nil {
		claims.Subject = sub
	}
	if exp, err := parsed.Claims.GetExpirationTime(); err == nil && exp != nil {
		claims.ExpiresAt = exp.Time
	}
	return claims, true
}
