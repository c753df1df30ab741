package capture

import (
	"time"

	"github.com/rbright/voicetask/internal/audio"
)

// Artifact is one finalized recording, ready for submission.
type Artifact struct {
	ID          string
	Data        []byte
	ContentType string
	Family      audio.Family
	CapturedAt  time.Time
	Duration    time.Duration
}

// Length is the payload size in bytes.
func (a Artifact) Length() int {
	return len(a.Data)
}

// Extension is the filename extension matching the declared content type.
func (a Artifact) Extension() string {
	return audio.ExtensionFor(a.ContentType, a.Family)
}
