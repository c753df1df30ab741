// Package pipeline turns a finalized recording into task candidates.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/rbright/voicetask/internal/audio"
	"github.com/rbright/voicetask/internal/capture"
	"github.com/rbright/voicetask/internal/duedate"
	"github.com/rbright/voicetask/internal/remote"
	"github.com/rbright/voicetask/internal/task"
	"github.com/rbright/voicetask/internal/transcript"
)

const (
	defaultMinAudioBytes  = 1024
	defaultMaxTitleLength = 100
)

var (
	ErrEmptyCapture        = errors.New("recording too short to submit")
	ErrTranscriptionFailed = errors.New("transcription failed")
	ErrNoSpeechDetected    = errors.New("no speech detected")
	ErrExtractionFailed    = errors.New("task extraction failed")
)

// DueDateScope controls how spoken due dates map onto extracted candidates.
type DueDateScope string

const (
	// ScopeCandidate resolves each candidate's own date phrase before the whole utterance.
	ScopeCandidate DueDateScope = "candidate"
	// ScopeUtterance resolves the whole transcript once and applies it to every candidate.
	ScopeUtterance DueDateScope = "utterance"
)

// Transcriber converts audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, upload remote.Upload) (string, error)
}

// Extractor splits a transcript into task proposals.
type Extractor interface {
	Extract(ctx context.Context, transcript string) ([]remote.ExtractedTask, error)
}

// Config tunes the orchestrator.
type Config struct {
	MinAudioBytes  int
	MaxTitleLength int
	DueDateScope   DueDateScope
	// DebugDir receives a copy of every submitted artifact when non-empty.
	DebugDir string
}

// Outcome is the result of one successful submission.
type Outcome struct {
	ArtifactID  string
	Transcript  transcript.Transcript
	Candidates  []task.Candidate
	Retried     bool
	Synthesized bool
}

// Orchestrator sequences transcription, extraction and due-date resolution.
type Orchestrator struct {
	transcriber Transcriber
	extractor   Extractor
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time
}

// New builds an Orchestrator.
func New(transcriber Transcriber, extractor Extractor, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.MinAudioBytes <= 0 {
		cfg.MinAudioBytes = defaultMinAudioBytes
	}
	if cfg.MaxTitleLength <= 0 {
		cfg.MaxTitleLength = defaultMaxTitleLength
	}
	if cfg.DueDateScope == "" {
		cfg.DueDateScope = ScopeCandidate
	}
	return &Orchestrator{
		transcriber: transcriber,
		extractor:   extractor,
		cfg:         cfg,
		logger:      logger,
		now:         time.Now,
	}
}

// WithClock overrides the reference time used for due-date resolution.
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}

// Submit runs one artifact through the remote pipeline. Extraction never runs
// on an empty transcript, and a sub-threshold artifact never reaches the network.
func (o *Orchestrator) Submit(ctx context.Context, artifact capture.Artifact) (Outcome, error) {
	if artifact.Length() == 0 || artifact.Length() < o.cfg.MinAudioBytes {
		o.logWarn("artifact rejected", "artifact_id", artifact.ID, "bytes", artifact.Length(), "min_bytes", o.cfg.MinAudioBytes)
		return Outcome{}, fmt.Errorf("%w: %d bytes", ErrEmptyCapture, artifact.Length())
	}
	if strings.TrimSpace(artifact.ContentType) == "" {
		artifact.ContentType = audio.DefaultContentType(artifact.Family)
	}

	o.dumpArtifact(artifact)

	text, retried, err := o.transcribe(ctx, artifact)
	if err != nil {
		return Outcome{}, err
	}

	tr := transcript.Transcript{Text: transcript.Normalize(text), ArtifactID: artifact.ID}
	if tr.Empty() {
		return Outcome{}, ErrNoSpeechDetected
	}

	extracted, err := o.extractor.Extract(ctx, tr.Text)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrExtractionFailed, err)
	}

	candidates, synthesized := o.candidates(tr.Text, extracted)
	if synthesized {
		o.logInfo("no tasks extracted; synthesized candidate from transcript", "artifact_id", artifact.ID)
	}

	return Outcome{
		ArtifactID:  artifact.ID,
		Transcript:  tr,
		Candidates:  candidates,
		Retried:     retried,
		Synthesized: synthesized,
	}, nil
}

// transcribe sends the artifact once, then once more under the family's
// alternate content-type label. The bytes are not re-encoded.
func (o *Orchestrator) transcribe(ctx context.Context, artifact capture.Artifact) (string, bool, error) {
	first := uploadFor(artifact, artifact.ContentType)
	text, err := o.transcriber.Transcribe(ctx, first)
	if err == nil {
		return text, false, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", false, fmt.Errorf("%w: %w", ErrTranscriptionFailed, ctxErr)
	}

	alternate := audio.AlternateContentType(artifact.Family, artifact.ContentType)
	if alternate == "" {
		return "", false, fmt.Errorf("%w: %w", ErrTranscriptionFailed, err)
	}
	o.logWarn("transcription failed; retrying with alternate content type",
		"artifact_id", artifact.ID,
		"declared", artifact.ContentType,
		"alternate", alternate,
		"error", err.Error(),
	)

	text, retryErr := o.transcriber.Transcribe(ctx, uploadFor(artifact, alternate))
	if retryErr != nil {
		return "", true, fmt.Errorf("%w: %w", ErrTranscriptionFailed, errors.Join(err, retryErr))
	}
	return text, true, nil
}

func uploadFor(artifact capture.Artifact, contentType string) remote.Upload {
	return remote.Upload{
		Data:        artifact.Data,
		ContentType: contentType,
		Filename:    "recording." + audio.ExtensionFor(contentType, artifact.Family),
	}
}

func (o *Orchestrator) candidates(text string, extracted []remote.ExtractedTask) ([]task.Candidate, bool) {
	now := o.now()

	var (
		utteranceDue      *time.Time
		utteranceResolved bool
	)
	resolveUtterance := func() *time.Time {
		if !utteranceResolved {
			utteranceResolved = true
			if due, ok := duedate.Resolve(text, now); ok {
				utteranceDue = &due
			}
		}
		if utteranceDue == nil {
			return nil
		}
		due := *utteranceDue
		return &due
	}

	if len(extracted) == 0 {
		return []task.Candidate{{
			Title:   transcript.FallbackTitle(text, o.cfg.MaxTitleLength),
			Status:  task.StatusToDo,
			DueDate: resolveUtterance(),
		}}, true
	}

	out := make([]task.Candidate, 0, len(extracted))
	for _, item := range extracted {
		candidate := task.Candidate{
			Title:   transcript.FallbackTitle(item.Title, o.cfg.MaxTitleLength),
			Status:  item.Status,
			DueDate: item.DueDate,
			DueText: item.DueText,
		}
		if candidate.Status == "" {
			candidate.Status = task.StatusToDo
		}
		if candidate.DueDate == nil {
			if o.cfg.DueDateScope == ScopeCandidate && item.DueText != "" {
				if due, ok := duedate.Resolve(item.DueText, now); ok {
					candidate.DueDate = &due
				}
			}
			if candidate.DueDate == nil {
				candidate.DueDate = resolveUtterance()
			}
		}
		out = append(out, candidate)
	}
	return out, false
}

func (o *Orchestrator) logInfo(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Info(msg, args...)
	}
}

func (o *Orchestrator) logWarn(msg string, args ...any) {
	if o.logger != nil {
		o.logger.Warn(msg, args...)
	}
}
