// Package indicator shows session progress as desktop notifications and audio cues.
package indicator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rbright/voicetask/internal/config"
)

const (
	stickyTimeoutMS     = 300000
	resultTimeoutMS     = 2500
	defaultErrorTimeout = 1200
	dispatchTimeout     = 400 * time.Millisecond
)

// Notifier is the concrete session indicator.
type Notifier struct {
	cfg      config.IndicatorConfig
	logger   *slog.Logger
	messages messages

	notify  func(ctx context.Context, appName string, replaceID uint32, summary string, timeoutMS int) (uint32, error)
	dismiss func(ctx context.Context, id uint32) error
	cue     func(ctx context.Context, kind cueKind) error

	mu             sync.Mutex
	notificationID uint32
	sticky         bool

	soundMu sync.Mutex
}

// NewNotifier builds a Notifier from config.
func NewNotifier(cfg config.IndicatorConfig, logger *slog.Logger) *Notifier {
	return &Notifier{
		cfg:      cfg,
		logger:   logger,
		messages: defaultMessages(),
		notify:   desktopNotify,
		dismiss:  desktopDismiss,
		cue:      emitCue,
	}
}

// ShowRecording signals recording start and emits the start cue.
func (n *Notifier) ShowRecording(ctx context.Context) {
	n.playCue(cueStart)
	n.show(ctx, n.messages.recording, stickyTimeoutMS, true)
}

// ShowProcessing signals that the recording is being transcribed.
func (n *Notifier) ShowProcessing(ctx context.Context) {
	n.show(ctx, n.messages.processing, stickyTimeoutMS, true)
}

// ShowCreated reports how many tasks were saved.
func (n *Notifier) ShowCreated(ctx context.Context, count int) {
	n.playCue(cueComplete)
	n.show(ctx, n.messages.created(count), resultTimeoutMS, false)
}

// ShowError displays an error message for the configured timeout.
func (n *Notifier) ShowError(ctx context.Context, text string) {
	if text == "" {
		text = n.messages.errorText
	}
	timeout := n.cfg.ErrorTimeoutMS
	if timeout <= 0 {
		timeout = defaultErrorTimeout
	}
	n.show(ctx, text, timeout, false)
}

// CueStop emits the stop cue.
func (n *Notifier) CueStop(context.Context) {
	n.playCue(cueStop)
}

// CueCancel emits the cancel cue.
func (n *Notifier) CueCancel(context.Context) {
	n.playCue(cueCancel)
}

// Hide dismisses a progress notification. Result and error notifications
// expire on their own.
func (n *Notifier) Hide(ctx context.Context) {
	if !n.cfg.Enable {
		return
	}

	n.mu.Lock()
	id := n.notificationID
	sticky := n.sticky
	if sticky {
		n.notificationID = 0
		n.sticky = false
	}
	n.mu.Unlock()

	if !sticky || id == 0 {
		return
	}
	n.run(ctx, func(ctx context.Context) error { return n.dismiss(ctx, id) })
}

// show replaces the current notification so one session owns one bubble.
func (n *Notifier) show(ctx context.Context, text string, timeoutMS int, sticky bool) {
	if !n.cfg.Enable {
		return
	}

	n.run(ctx, func(ctx context.Context) error {
		n.mu.Lock()
		replaceID := n.notificationID
		n.mu.Unlock()

		id, err := n.notify(ctx, n.cfg.AppName, replaceID, text, timeoutMS)
		if err != nil {
			return err
		}

		n.mu.Lock()
		n.notificationID = id
		n.sticky = sticky
		n.mu.Unlock()
		return nil
	})
}

func (n *Notifier) run(ctx context.Context, fn func(context.Context) error) {
	runCtx, cancel := context.WithTimeout(ctx, dispatchTimeout)
	defer cancel()
	if err := fn(runCtx); err != nil {
		n.log("indicator dispatch failed", err)
	}
}

// playCue serializes cue playback and emits audio asynchronously.
func (n *Notifier) playCue(kind cueKind) {
	if !n.cfg.SoundEnable {
		return
	}
	go func() {
		n.soundMu.Lock()
		defer n.soundMu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Second)
		defer cancel()
		if err := n.cue(ctx, kind); err != nil {
			n.log("indicator audio cue failed", err)
		}
	}()
}

func (n *Notifier) log(message string, err error) {
	if n.logger == nil || err == nil {
		return
	}
	n.logger.Debug(message, "error", err.Error())
}
