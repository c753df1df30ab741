package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rbright/voicetask/internal/config"
	"github.com/rbright/voicetask/internal/indicator"
	"github.com/rbright/voicetask/internal/ipc"
	"github.com/rbright/voicetask/internal/session"
)

const (
	forwardTimeout = 220 * time.Millisecond
	probeTimeout   = 180 * time.Millisecond
	acquireRetries = 8
)

func (r Runner) commandStatus(ctx context.Context) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	}

	resp, err := ipc.Dispatch(ctx, socketPath, ipc.CommandStatus, forwardTimeout)
	switch {
	case errors.Is(err, ipc.ErrNoSession):
		fmt.Fprintln(r.Stdout, "idle")
		return 0
	case err != nil:
		return r.fail(err)
	}
	if resp.State == "" {
		resp.State = "idle"
	}
	fmt.Fprintln(r.Stdout, resp.State)
	return 0
}

func (r Runner) forwardOrFail(ctx context.Context, cmd ipc.Command) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return r.fail(err)
	}

	resp, err := ipc.Dispatch(ctx, socketPath, cmd, forwardTimeout)
	if err != nil {
		return r.fail(err)
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return 0
}

// commandRecord toggles: it stops a running session, or becomes the session
// owner and records until stop, cancel or interrupt.
func (r Runner) commandRecord(ctx context.Context, cfg config.Config, logger *slog.Logger) int {
	socketPath, err := ipc.RuntimeSocketPath()
	if err != nil {
		return r.fail(err)
	}

	if handled, code := r.forwardToggle(ctx, socketPath); handled {
		return code
	}

	listener, err := ipc.Acquire(ctx, socketPath, probeTimeout, acquireRetries, nil)
	if err != nil {
		if errors.Is(err, ipc.ErrAlreadyRunning) {
			_, code := r.forwardToggle(ctx, socketPath)
			return code
		}
		return r.fail(err)
	}
	defer func() {
		_ = listener.Close()
		_ = os.Remove(socketPath)
	}()

	client, err := newRemote(cfg)
	if err != nil {
		return r.fail(err)
	}
	recorder, err := newRecorder(cfg.Capture, logger)
	if err != nil {
		return r.fail(err)
	}
	cache, closeCache := openCache(ctx, cfg.Cache, client, logger)
	defer closeCache()
	if err := cache.Warm(ctx); err != nil {
		logger.Warn("task cache warm failed", "error", err.Error())
	}

	controller := session.NewController(
		logger,
		recorder,
		newOrchestrator(cfg, client, logger),
		cache,
		indicator.NewNotifier(cfg.Indicator, logger),
	)

	serverCtx, serverCancel := context.WithCancel(ctx)
	defer serverCancel()

	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- ipc.Serve(serverCtx, listener, controller)
	}()

	result := controller.Run(ctx)
	serverCancel()
	if serverErr := <-serverErrCh; serverErr != nil {
		return r.fail(fmt.Errorf("ipc server failed: %w", serverErr))
	}

	logSessionResult(logger, result)

	if result.Cancelled {
		fmt.Fprintln(r.Stdout, "cancelled")
		return 0
	}
	r.printCreated(result.Created)
	if result.Err != nil {
		return r.fail(result.Err)
	}
	return 0
}

// forwardToggle reports handled=false only when no owner is listening.
func (r Runner) forwardToggle(ctx context.Context, socketPath string) (bool, int) {
	resp, err := ipc.Dispatch(ctx, socketPath, ipc.CommandToggle, forwardTimeout)
	switch {
	case errors.Is(err, ipc.ErrNoSession):
		return false, 0
	case err != nil:
		return true, r.fail(err)
	}
	if resp.Message != "" {
		fmt.Fprintln(r.Stdout, resp.Message)
	}
	return true, 0
}

func logSessionResult(logger *slog.Logger, result session.Result) {
	if logger == nil {
		return
	}
	fields := []any{
		"phase", result.Phase,
		"cancelled", result.Cancelled,
		"started_at", result.StartedAt.Format(time.RFC3339Nano),
		"finished_at", result.FinishedAt.Format(time.RFC3339Nano),
		"duration_ms", result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
		"artifact_id", result.ArtifactID,
		"content_type", result.ContentType,
		"bytes_captured", result.BytesCaptured,
		"transcript_length", len(result.Transcript),
		"candidates", len(result.Candidates),
		"created", len(result.Created),
		"retried", result.Retried,
		"synthesized", result.Synthesized,
	}

	if result.Err != nil {
		logger.Error("session failed", append(fields, "error", result.Err.Error())...)
		return
	}
	logger.Info("session complete", fields...)
}
