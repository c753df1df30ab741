package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/rbright/voicetask/internal/audio"
	"github.com/rbright/voicetask/internal/capture"
	"github.com/rbright/voicetask/internal/config"
	"github.com/rbright/voicetask/internal/credentials"
	"github.com/rbright/voicetask/internal/pipeline"
	"github.com/rbright/voicetask/internal/remote"
	"github.com/rbright/voicetask/internal/taskcache"
)

const captureLockName = "capture.lock"

// tokenSource prefers the environment over the token file and rejects
// expired JWTs before any request is sent.
func tokenSource(cfg config.AuthConfig) credentials.Source {
	return credentials.Checked{Source: credentials.Chain{
		credentials.EnvSource{Key: cfg.TokenEnv},
		credentials.FileSource{Path: cfg.TokenFile},
	}}
}

func newRemote(cfg config.Config) (*remote.Client, error) {
	return remote.New(remote.Config{
		BaseURL:    cfg.API.BaseURL,
		Prefix:     cfg.API.Prefix,
		HealthPath: cfg.API.HealthPath,
		Timeout:    cfg.API.Timeout(),
		TestMode:   cfg.API.TestMode,
		Token:      tokenSource(cfg.Auth),
	})
}

func newBackend(cfg config.CaptureConfig, logger *slog.Logger) (audio.Backend, error) {
	family, err := audio.ParseFamily(cfg.Family)
	if err != nil {
		return nil, err
	}
	return audio.NewBackend(audio.Options{
		Backend:  cfg.Backend,
		Family:   family,
		Input:    cfg.Input,
		Fallback: cfg.Fallback,
		Command:  cfg.Command.Argv,
		Logger:   logger,
	})
}

func newRecorder(cfg config.CaptureConfig, logger *slog.Logger) (*capture.Controller, error) {
	backend, err := newBackend(cfg, logger)
	if err != nil {
		return nil, err
	}

	opts := []capture.Option{
		capture.WithStopTimeout(cfg.StopTimeout()),
		capture.WithLogger(logger),
	}
	if cfg.Lock {
		stateDir, err := config.StateDir()
		if err != nil {
			return nil, err
		}
		lock, err := capture.NewFileLock(filepath.Join(stateDir, captureLockName))
		if err != nil {
			return nil, err
		}
		opts = append(opts, capture.WithLocker(lock))
	}
	return capture.NewController(backend, opts...), nil
}

func newOrchestrator(cfg config.Config, client *remote.Client, logger *slog.Logger) *pipeline.Orchestrator {
	pcfg := pipeline.Config{
		MinAudioBytes:  cfg.Pipeline.MinAudioBytes,
		MaxTitleLength: cfg.Pipeline.MaxTitleLength,
		DueDateScope:   pipeline.DueDateScope(cfg.Pipeline.DueDateScope),
	}
	if cfg.Debug.AudioDump {
		pcfg.DebugDir = cfg.Debug.Dir
	}
	return pipeline.New(client, client, pcfg, logger)
}

// openCache returns a task cache backed by the on-disk store when enabled. A
// store that cannot be opened degrades to memory only.
func openCache(ctx context.Context, cfg config.CacheConfig, client taskcache.Remote, logger *slog.Logger) (*taskcache.Cache, func()) {
	if !cfg.Enable {
		return taskcache.NewCache(client, nil, logger), func() {}
	}
	store, err := taskcache.OpenSQLite(ctx, cfg.Path)
	if err != nil {
		logger.Warn("task cache unavailable; continuing in memory", "path", cfg.Path, "error", err.Error())
		return taskcache.NewCache(client, nil, logger), func() {}
	}
	return taskcache.NewCache(client, store, logger), func() { _ = store.Close() }
}

// withCache builds the remote client and cache for one task command.
func (r Runner) withCache(ctx context.Context, cfg config.Config, logger *slog.Logger, fn func(*taskcache.Cache) error) int {
	client, err := newRemote(cfg)
	if err != nil {
		return r.fail(err)
	}
	cache, closeCache := openCache(ctx, cfg.Cache, client, logger)
	defer closeCache()

	if err := fn(cache); err != nil {
		logger.Error("task command failed", "error", err.Error())
		return r.fail(err)
	}
	return 0
}

func loadOrFail(ctx context.Context, cache *taskcache.Cache) error {
	if err := cache.Load(ctx); err != nil {
		return fmt.Errorf("sync tasks: %w", err)
	}
	return nil
}
