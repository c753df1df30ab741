// Package session runs one voice-to-task lifecycle: record, submit, create, reconcile.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/rbright/voicetask/internal/capture"
	"github.com/rbright/voicetask/internal/fsm"
	"github.com/rbright/voicetask/internal/ipc"
	"github.com/rbright/voicetask/internal/pipeline"
	"github.com/rbright/voicetask/internal/task"
)

// StateSubmitting is reported while the artifact is in the remote pipeline.
const StateSubmitting = "submitting"

type action int

const (
	actionStop action = iota + 1
	actionCancel
)

// Result is the complete output of one Run invocation.
type Result struct {
	Phase         fsm.State
	ArtifactID    string
	ContentType   string
	BytesCaptured int
	Transcript    string
	Candidates    []task.Candidate
	Created       []task.Record
	Retried       bool
	Synthesized   bool
	Cancelled     bool
	Err           error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Controller sequences capture, submission and task creation for one run.
type Controller struct {
	logger    *slog.Logger
	recorder  Recorder
	submitter Submitter
	sink      TaskSink
	indicator Indicator

	submitting atomic.Bool
	actions    chan action
}

// NewController wires a session. A nil indicator disables user feedback.
func NewController(
	logger *slog.Logger,
	recorder Recorder,
	submitter Submitter,
	sink TaskSink,
	indicator Indicator,
) *Controller {
	if indicator == nil {
		indicator = noopIndicator{}
	}
	return &Controller{
		logger:    logger,
		recorder:  recorder,
		submitter: submitter,
		sink:      sink,
		indicator: indicator,
		actions:   make(chan action, 1),
	}
}

// State reports the capture phase, or StateSubmitting once the recording is
// handed to the pipeline.
func (c *Controller) State() string {
	if c.submitting.Load() {
		return StateSubmitting
	}
	return string(c.recorder.Phase())
}

// Run records until a stop or cancel action arrives, then runs the artifact
// through the pipeline and creates the resulting tasks.
func (c *Controller) Run(ctx context.Context) Result {
	result := Result{StartedAt: time.Now()}

	if err := c.recorder.Start(ctx); err != nil {
		c.indicator.ShowError(context.Background(), startErrorText(err))
		return c.finish(result, err)
	}
	c.indicator.ShowRecording(ctx)

	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
		defer cancel()
		c.indicator.Hide(cleanupCtx)
	}()

	select {
	case <-ctx.Done():
		c.recorder.Cancel()
		c.indicator.CueCancel(context.Background())
		result.Cancelled = true
		return c.finish(result, ctx.Err())
	case a := <-c.actions:
		switch a {
		case actionCancel:
			c.recorder.Cancel()
			c.indicator.CueCancel(context.Background())
			result.Cancelled = true
			return c.finish(result, nil)
		case actionStop:
			return c.process(ctx, result)
		default:
			c.recorder.Cancel()
			return c.finish(result, fmt.Errorf("unknown action %d", a))
		}
	}
}

// process finalizes the recording and carries it through to the task list.
func (c *Controller) process(ctx context.Context, result Result) Result {
	artifact, err := c.recorder.Stop(ctx)
	c.indicator.CueStop(context.Background())
	if err != nil {
		c.indicator.ShowError(context.Background(), "Recording could not be finalized")
		return c.finish(result, err)
	}
	result.ArtifactID = artifact.ID
	result.ContentType = artifact.ContentType
	result.BytesCaptured = artifact.Length()

	c.submitting.Store(true)
	defer c.submitting.Store(false)
	c.indicator.ShowProcessing(ctx)

	outcome, err := c.submitter.Submit(ctx, artifact)
	result.Transcript = outcome.Transcript.Text
	result.Candidates = outcome.Candidates
	result.Retried = outcome.Retried
	result.Synthesized = outcome.Synthesized
	if err != nil {
		c.indicator.ShowError(context.Background(), submitErrorText(err))
		return c.finish(result, err)
	}

	created, createErr := c.sink.CreateAll(ctx, outcome.Candidates)
	result.Created = created
	if createErr != nil && c.logger != nil {
		c.logger.Warn("task creation incomplete",
			"artifact_id", artifact.ID,
			"candidates", len(outcome.Candidates),
			"created", len(created),
			"error", createErr.Error(),
		)
	}

	var loadErr error
	if err := c.sink.Load(ctx); err != nil {
		loadErr = fmt.Errorf("reconcile tasks: %w", err)
	}

	if createErr != nil && len(created) == 0 {
		c.indicator.ShowError(context.Background(), "Tasks could not be saved")
	} else {
		c.indicator.ShowCreated(context.Background(), len(created))
	}
	return c.finish(result, errors.Join(createErr, loadErr))
}

func (c *Controller) finish(result Result, err error) Result {
	result.Err = err
	result.Phase = c.recorder.Phase()
	result.FinishedAt = time.Now()
	return result
}

// Handle serves IPC commands for the active owner session.
func (c *Controller) Handle(_ context.Context, req ipc.Request) ipc.Response {
	switch req.Command {
	case ipc.CommandStatus:
		return ipc.Response{OK: true, State: c.State(), Message: "status"}
	case ipc.CommandToggle, ipc.CommandStop:
		return c.requestStop(string(req.Command))
	case ipc.CommandCancel:
		return c.requestCancel()
	default:
		return ipc.Response{OK: false, State: c.State(), Error: fmt.Sprintf("unknown command: %s", req.Command)}
	}
}

func (c *Controller) requestStop(source string) ipc.Response {
	state := c.State()
	if state == StateSubmitting || state == string(fsm.StateFinalizing) {
		return ipc.Response{OK: false, State: state, Error: "already processing"}
	}
	if state != string(fsm.StateRecording) {
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("cannot %s from state %s", source, state)}
	}

	select {
	case c.actions <- actionStop:
		return ipc.Response{OK: true, State: state, Message: "stop requested"}
	default:
		return ipc.Response{OK: true, State: state, Message: "stop already requested"}
	}
}

func (c *Controller) requestCancel() ipc.Response {
	state := c.State()
	if state == StateSubmitting || state == string(fsm.StateFinalizing) {
		return ipc.Response{OK: false, State: state, Error: "cannot cancel while processing"}
	}
	if state != string(fsm.StateRecording) {
		return ipc.Response{OK: false, State: state, Error: fmt.Sprintf("cannot cancel from state %s", state)}
	}

	select {
	case c.actions <- actionCancel:
		return ipc.Response{OK: true, State: state, Message: "cancel requested"}
	default:
		return ipc.Response{OK: true, State: state, Message: "cancel already requested"}
	}
}

func startErrorText(err error) string {
	switch {
	case errors.Is(err, capture.ErrPermissionDenied):
		return "Microphone access denied"
	case errors.Is(err, capture.ErrDeviceUnavailable):
		return "No microphone available"
	case errors.Is(err, capture.ErrSessionBusy):
		return "Another recording is in progress"
	default:
		return "Unable to start recording"
	}
}

func submitErrorText(err error) string {
	switch {
	case errors.Is(err, pipeline.ErrEmptyCapture):
		return "Recording too short"
	case errors.Is(err, pipeline.ErrNoSpeechDetected):
		return "No speech detected"
	case errors.Is(err, pipeline.ErrTranscriptionFailed):
		return "Transcription failed"
	case errors.Is(err, pipeline.ErrExtractionFailed):
		return "Task extraction failed"
	default:
		return "Processing failed"
	}
}
