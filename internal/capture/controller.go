// Package capture owns the microphone session lifecycle.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rbright/voicetask/internal/audio"
	"github.com/rbright/voicetask/internal/fsm"
)

const defaultStopTimeout = 3 * time.Second

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("no microphone available")
	ErrCaptureFailed     = errors.New("audio capture failed")
	ErrNotRecording      = errors.New("not recording")
	ErrSessionBusy       = errors.New("another capture session is active")
)

// Option customizes a Controller.
type Option func(*Controller)

// WithStopTimeout bounds how long Stop waits for the stream to finalize.
func WithStopTimeout(timeout time.Duration) Option {
	return func(c *Controller) {
		if timeout > 0 {
			c.stopTimeout = timeout
		}
	}
}

// WithLocker makes Start claim locker for the lifetime of each recording.
func WithLocker(locker Locker) Option {
	return func(c *Controller) { c.locker = locker }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) { c.logger = logger }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// Controller drives one backend through the capture phases.
type Controller struct {
	backend     audio.Backend
	stopTimeout time.Duration
	locker      Locker
	logger      *slog.Logger
	now         func() time.Time

	// opMu serializes Start, Stop, Cancel and ResetPermission.
	opMu sync.Mutex

	mu        sync.RWMutex
	phase     fsm.State
	granted   bool
	stream    audio.Stream
	locked    bool
	startedAt time.Time
}

// NewController binds a controller to backend in the idle phase.
func NewController(backend audio.Backend, opts ...Option) *Controller {
	c := &Controller{
		backend:     backend,
		stopTimeout: defaultStopTimeout,
		now:         time.Now,
		phase:       fsm.StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Phase returns the current capture phase.
func (c *Controller) Phase() fsm.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.phase
}

// Start opens a recording stream. It is a no-op while already recording.
func (c *Controller) Start(ctx context.Context) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	switch c.Phase() {
	case fsm.StateRecording:
		return nil
	case fsm.StateBlocked:
		return ErrPermissionDenied
	}

	if err := c.ensurePermission(ctx); err != nil {
		return err
	}

	if c.locker != nil {
		locked, err := c.locker.TryLock()
		if err != nil || !locked {
			c.apply(fsm.EventOpenFailed)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrSessionBusy, err)
			}
			return ErrSessionBusy
		}
		c.mu.Lock()
		c.locked = true
		c.mu.Unlock()
	}

	stream, err := c.negotiate(ctx)
	if err != nil {
		c.releaseLock()
		c.apply(fsm.EventOpenFailed)
		return err
	}

	c.mu.Lock()
	c.stream = stream
	c.startedAt = c.now()
	c.mu.Unlock()
	c.apply(fsm.EventOpen)
	c.log().Info("capture started", "backend", c.backend.Name(), "encoding", stream.Encoding().ContentType)
	return nil
}

// Stop finalizes the live stream into an Artifact. The device is released on
// every exit path.
//
// Stopping when nothing is recording is a no-op: no phase change and no device
// access. The call still returns ErrNotRecording so a caller never mistakes
// the empty Artifact for a recording; callers may treat it as benign.
func (c *Controller) Stop(ctx context.Context) (Artifact, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.Phase() != fsm.StateRecording {
		return Artifact{}, ErrNotRecording
	}
	c.apply(fsm.EventStop)

	c.mu.RLock()
	stream := c.stream
	startedAt := c.startedAt
	c.mu.RUnlock()

	defer func() {
		c.teardown(stream)
		c.apply(fsm.EventFinalized)
	}()

	var data []byte
	err := runWithTimeout(ctx, c.stopTimeout, func(callCtx context.Context) error {
		var finalizeErr error
		data, finalizeErr = stream.Finalize(callCtx)
		return finalizeErr
	})
	if err != nil {
		c.log().Error("capture finalize failed", "error", err.Error())
		return Artifact{}, fmt.Errorf("%w: finalize: %v", ErrCaptureFailed, err)
	}

	contentType := stream.Encoding().ContentType
	if contentType == "" {
		contentType = audio.DefaultContentType(c.backend.Family())
	}

	capturedAt := c.now()
	artifact := Artifact{
		ID:          uuid.NewString(),
		Data:        data,
		ContentType: contentType,
		Family:      c.backend.Family(),
		CapturedAt:  capturedAt,
		Duration:    capturedAt.Sub(startedAt),
	}
	c.log().Info("capture finalized",
		"artifact_id", artifact.ID,
		"bytes", artifact.Length(),
		"content_type", artifact.ContentType,
		"duration_ms", artifact.Duration.Milliseconds(),
	)
	return artifact, nil
}

// Cancel discards a live recording without producing an artifact.
func (c *Controller) Cancel() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.Phase() != fsm.StateRecording {
		return
	}

	c.mu.RLock()
	stream := c.stream
	c.mu.RUnlock()

	c.teardown(stream)
	c.apply(fsm.EventDiscard)
	c.log().Info("capture cancelled")
}

// ResetPermission clears a denial after the user changed system settings.
func (c *Controller) ResetPermission() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	if c.Phase() != fsm.StateBlocked {
		return
	}
	c.mu.Lock()
	c.granted = false
	c.mu.Unlock()
	c.apply(fsm.EventReset)
}

func (c *Controller) ensurePermission(ctx context.Context) error {
	c.mu.RLock()
	granted := c.granted
	c.mu.RUnlock()

	if granted {
		c.apply(fsm.EventGrant)
		return nil
	}

	c.apply(fsm.EventRequestPermission)
	permission, err := c.backend.RequestPermission(ctx)
	switch {
	case err != nil:
		c.apply(fsm.EventUnavailable)
		if errors.Is(err, audio.ErrNoDevice) {
			return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		return fmt.Errorf("%w: %v", ErrCaptureFailed, err)
	case permission == audio.PermissionGranted:
		c.mu.Lock()
		c.granted = true
		c.mu.Unlock()
		c.apply(fsm.EventGrant)
		return nil
	default:
		c.apply(fsm.EventDeny)
		return ErrPermissionDenied
	}
}

// negotiate tries the preferred, minimal and platform-default constraint tiers in order.
func (c *Controller) negotiate(ctx context.Context) (audio.Stream, error) {
	preferred := c.preferredEncoding()
	attempts := []audio.Constraints{
		{Tier: audio.TierPreferred, Encoding: preferred},
		{Tier: audio.TierMinimal, Encoding: preferred},
		{Tier: audio.TierPlatformDefault},
	}

	var errs []error
	for _, constraints := range attempts {
		stream, err := c.backend.Open(ctx, constraints)
		if err == nil {
			return stream, nil
		}
		c.log().Warn("capture open attempt failed",
			"tier", constraints.Tier.String(),
			"encoding", constraints.Encoding.ContentType,
			"error", err.Error(),
		)
		if errors.Is(err, audio.ErrNoDevice) {
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, ctxErr)
		}
		errs = append(errs, fmt.Errorf("%s: %w", constraints.Tier, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrCaptureFailed, errors.Join(errs...))
}

func (c *Controller) preferredEncoding() audio.Encoding {
	for _, enc := range audio.Preferences(c.backend.Family()) {
		if c.backend.Supports(enc) {
			return enc
		}
	}
	return audio.Encoding{}
}

func (c *Controller) teardown(stream audio.Stream) {
	if stream != nil {
		if err := stream.Release(); err != nil {
			c.log().Warn("capture release failed", "error", err.Error())
		}
	}
	c.mu.Lock()
	c.stream = nil
	c.mu.Unlock()
	c.releaseLock()
}

func (c *Controller) releaseLock() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locker == nil || !c.locked {
		return
	}
	if err := c.locker.Unlock(); err != nil {
		c.log().Warn("capture lock release failed", "error", err.Error())
	}
	c.locked = false
}

func (c *Controller) apply(event fsm.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := fsm.Transition(c.phase, event)
	if err != nil {
		c.log().Error("capture transition rejected", "phase", string(c.phase), "event", string(event), "error", err.Error())
		return
	}
	c.phase = next
}

func (c *Controller) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}

// runWithTimeout bounds one blocking stream operation.
func runWithTimeout(ctx context.Context, timeout time.Duration, call func(context.Context) error) error {
	if timeout <= 0 {
		return call(ctx)
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resultCh := make(chan error, 1)
	go func() {
		resultCh <- call(callCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("timed out after %s", timeout)
	case err := <-resultCh:
		return err
	}
}
