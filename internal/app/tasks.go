package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rbright/voicetask/internal/audio"
	"github.com/rbright/voicetask/internal/capture"
	"github.com/rbright/voicetask/internal/config"
	"github.com/rbright/voicetask/internal/credentials"
	"github.com/rbright/voicetask/internal/remote"
	"github.com/rbright/voicetask/internal/task"
	"github.com/rbright/voicetask/internal/taskcache"
)

func (r Runner) commandTasks(ctx context.Context, cfg config.Config, logger *slog.Logger, rawStatus string) int {
	var status task.Status
	if rawStatus != "" {
		parsed, err := task.ParseStatus(rawStatus)
		if err != nil {
			return r.fail(err)
		}
		status = parsed
	}

	return r.withCache(ctx, cfg, logger, func(cache *taskcache.Cache) error {
		if err := cache.Load(ctx); err != nil {
			if errors.Is(err, remote.ErrUnauthenticated) {
				return err
			}
			fmt.Fprintf(r.Stderr, "warning: %v; showing cached tasks\n", err)
			logger.Warn("task sync failed; using cached snapshot", "error", err.Error())
			if err := cache.Warm(ctx); err != nil {
				return err
			}
		}
		r.renderTasks(cache.List(status))
		return nil
	})
}

func (r Runner) commandMove(ctx context.Context, cfg config.Config, logger *slog.Logger, id string, rawStatus string) int {
	status, err := task.ParseStatus(rawStatus)
	if err != nil {
		return r.fail(err)
	}

	return r.withCache(ctx, cfg, logger, func(cache *taskcache.Cache) error {
		if err := loadOrFail(ctx, cache); err != nil {
			return err
		}
		record, err := cache.SetStatus(ctx, id, status)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.Stdout, "%s\t%s\t%s\n", record.ID, record.Status, record.Title)
		return nil
	})
}

func (r Runner) commandRemove(ctx context.Context, cfg config.Config, logger *slog.Logger, id string) int {
	return r.withCache(ctx, cfg, logger, func(cache *taskcache.Cache) error {
		if err := loadOrFail(ctx, cache); err != nil {
			return err
		}
		if err := cache.Remove(ctx, id); err != nil {
			return err
		}
		fmt.Fprintf(r.Stdout, "removed %s\n", id)
		return nil
	})
}

func (r Runner) commandReorder(ctx context.Context, cfg config.Config, logger *slog.Logger, ids []string) int {
	return r.withCache(ctx, cfg, logger, func(cache *taskcache.Cache) error {
		if err := loadOrFail(ctx, cache); err != nil {
			return err
		}
		if err := cache.Reorder(ctx, ids); err != nil {
			return err
		}
		first, err := cache.Get(ids[0])
		if err != nil {
			return err
		}
		r.renderTasks(cache.List(first.Status))
		return nil
	})
}

// commandSubmit runs an existing recording through the same path a live
// session takes after stop.
func (r Runner) commandSubmit(ctx context.Context, cfg config.Config, logger *slog.Logger, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return r.fail(fmt.Errorf("read recording: %w", err))
	}
	family, err := audio.ParseFamily(cfg.Capture.Family)
	if err != nil {
		return r.fail(err)
	}
	artifact := capture.Artifact{
		ID:          uuid.NewString(),
		Data:        data,
		ContentType: audio.ContentTypeForExtension(filepath.Ext(path), family),
		Family:      family,
		CapturedAt:  time.Now().UTC(),
	}

	client, err := newRemote(cfg)
	if err != nil {
		return r.fail(err)
	}

	outcome, err := newOrchestrator(cfg, client, logger).Submit(ctx, artifact)
	if err != nil {
		logger.Error("submit failed", "artifact_id", artifact.ID, "error", err.Error())
		return r.fail(err)
	}
	logger.Info("submit transcribed",
		"artifact_id", artifact.ID,
		"transcript_length", len(outcome.Transcript.Text),
		"candidates", len(outcome.Candidates),
		"retried", outcome.Retried,
	)

	return r.withCache(ctx, cfg, logger, func(cache *taskcache.Cache) error {
		if err := cache.Warm(ctx); err != nil {
			logger.Warn("task cache warm failed", "error", err.Error())
		}
		created, createErr := cache.CreateAll(ctx, outcome.Candidates)
		r.printCreated(created)
		var loadErr error
		if err := cache.Load(ctx); err != nil {
			loadErr = fmt.Errorf("reconcile tasks: %w", err)
		}
		return errors.Join(createErr, loadErr)
	})
}

func (r Runner) commandLogin(cfg config.Config, logger *slog.Logger, token string) int {
	if strings.TrimSpace(token) == "" {
		read, err := readToken(r.Stdin)
		if err != nil {
			return r.fail(err)
		}
		token = read
	}

	if claims, ok := credentials.Inspect(token); ok && !claims.ExpiresAt.IsZero() && !time.Now().Before(claims.ExpiresAt) {
		return r.fail(fmt.Errorf("%w at %s", credentials.ErrTokenExpired, claims.ExpiresAt.UTC().Format(time.RFC3339)))
	}

	source := credentials.FileSource{Path: cfg.Auth.TokenFile}
	if err := source.Save(token); err != nil {
		return r.fail(err)
	}
	logger.Info("token stored", "path", source.Path)
	fmt.Fprintf(r.Stdout, "token saved to %s\n", source.Path)
	return 0
}

// commandLogout removes the stored token and tears down the task cache.
func (r Runner) commandLogout(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	if err := (credentials.FileSource{Path: cfg.Auth.TokenFile}).Remove(); err != nil {
		return r.fail(err)
	}

	cache, closeCache := openCache(ctx, cfg.Cache, nil, logger)
	defer closeCache()
	if err := cache.Reset(ctx); err != nil {
		return r.fail(err)
	}
	logger.Info("logged out", "token_file", cfg.Auth.TokenFile)
	fmt.Fprintln(r.Stdout, "logged out")
	return 0
}

func readToken(in io.Reader) (string, error) {
	if in == nil {
		return "", credentials.ErrNoToken
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read token: %w", err)
	}
	token := strings.TrimSpace(line)
	if token == "" {
		return "", credentials.ErrNoToken
	}
	return token, nil
}
