package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/voicetask/internal/capture"
)

// dumpArtifact writes the submitted bytes under cfg.DebugDir when enabled.
func (o *Orchestrator) dumpArtifact(artifact capture.Artifact) {
	if o.cfg.DebugDir == "" {
		return
	}

	file, err := createDebugFile(o.cfg.DebugDir, "audio", artifact.Extension())
	if err != nil {
		o.logWarn("unable to create debug audio dump", "error", err.Error())
		return
	}
	defer file.Close()

	if _, err := file.Write(artifact.Data); err != nil {
		o.logWarn("unable to write debug audio dump", "error", err.Error())
		return
	}
	o.logInfo("debug audio dump written", "path", file.Name(), "artifact_id", artifact.ID)
}

// createDebugFile creates a timestamped, owner-only file in dir.
func createDebugFile(dir string, prefix string, extension string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create debug dir: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405.000")
	path := filepath.Join(dir, fmt.Sprintf("%s-%s.%s", prefix, timestamp, extension))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open debug file %q: %w", path, err)
	}
	return file, nil
}
