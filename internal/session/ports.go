package session

import (
	"context"

	"github.com/rbright/voicetask/internal/capture"
	"github.com/rbright/voicetask/internal/fsm"
	"github.com/rbright/voicetask/internal/pipeline"
	"github.com/rbright/voicetask/internal/task"
)

// Recorder is the capture surface a session drives.
type Recorder interface {
	Start(context.Context) error
	Stop(context.Context) (capture.Artifact, error)
	Cancel()
	Phase() fsm.State
}

// Submitter turns a finalized artifact into task candidates.
type Submitter interface {
	Submit(context.Context, capture.Artifact) (pipeline.Outcome, error)
}

// SubmitFunc adapts a function to the Submitter interface.
type SubmitFunc func(context.Context, capture.Artifact) (pipeline.Outcome, error)

func (f SubmitFunc) Submit(ctx context.Context, artifact capture.Artifact) (pipeline.Outcome, error) {
	return f(ctx, artifact)
}

// TaskSink receives candidates and reconciles with the server afterwards.
type TaskSink interface {
	CreateAll(context.Context, []task.Candidate) ([]task.Record, error)
	Load(context.Context) error
}

// Indicator is the session-facing subset of user feedback.
type Indicator interface {
	ShowRecording(context.Context)
	ShowProcessing(context.Context)
	ShowCreated(context.Context, int)
	ShowError(context.Context, string)
	CueStop(context.Context)
	CueCancel(context.Context)
	Hide(context.Context)
}

type noopIndicator struct{}

func (noopIndicator) ShowRecording(context.Context)     {}
func (noopIndicator) ShowProcessing(context.Context)    {}
func (noopIndicator) ShowCreated(context.Context, int)  {}
func (noopIndicator) ShowError(context.Context, string) {}
func (noopIndicator) CueStop(context.Context)           {}
func (noopIndicator) CueCancel(context.Context)         {}
func (noopIndicator) Hide(context.Context)              {}
