// Package transcription turns recorded speech into text through a remote
// collaborator.
package transcription

import (
	"context"
	"errors"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/audio"
)

// ErrNotConfigured is returned when no transcription endpoint is set.
var ErrNotConfigured = errors.New("transcription collaborator is not configured")

// Transcriber converts a recording into text. Failures are returned as
// *harnessports.ProviderError where the collaborator answered, so callers can
// classify them like completion failures.
type Transcriber interface {
	Transcribe(ctx context.Context, clip audio.Clip) (string, error)
	Name() string
}
