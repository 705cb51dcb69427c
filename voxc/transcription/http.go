package transcription

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/audio"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
)

const httpCollaborator = "transcription"

// maxErrorBody bounds how much of a failed response ends up in an error.
const maxErrorBody = 2048

// HTTPTranscriber posts the recording as multipart field "file" and expects
// {"transcription": "..."} back.
type HTTPTranscriber struct {
	url    string
	client *http.Client
	logger zerolog.Logger
}

func NewHTTPTranscriber(url string, timeout time.Duration, logger zerolog.Logger) *HTTPTranscriber {
	return &HTTPTranscriber{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger.With().Str("component", "transcriber").Str("provider", "http").Logger(),
	}
}

func (t *HTTPTranscriber) Name() string { return httpCollaborator }

func (t *HTTPTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	if t.url == "" {
		return "", ErrNotConfigured
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", clip.Filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if _, err := part.Write(clip.Data); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("failed to build upload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, &body)
	if err != nil {
		return "", fmt.Errorf("invalid transcription url: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read transcription response: %w", err)
	}

	t.logger.Debug().
		Int("status", resp.StatusCode).
		Int("bytes", len(clip.Data)).
		Dur("duration", time.Since(start)).
		Msg("transcription response")

	if resp.StatusCode != http.StatusOK {
		return "", &ports.ProviderError{
			Collaborator: httpCollaborator,
			StatusCode:   resp.StatusCode,
			Message:      truncate(strings.TrimSpace(string(raw)), maxErrorBody),
		}
	}

	var payload struct {
		Transcription string `json:"transcription"`
	}
	if err := sonic.Unmarshal(raw, &payload); err != nil {
		return "", &ports.ProviderError{
			Collaborator: httpCollaborator,
			StatusCode:   resp.StatusCode,
			Message:      "malformed transcription response",
			Err:          err,
		}
	}

	text := strings.TrimSpace(payload.Transcription)
	if text == "" {
		return "", &ports.ProviderError{
			Collaborator: httpCollaborator,
			Message:      "empty transcription",
			Err:          ports.ErrEmptyCompletion,
		}
	}
	return text, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

var _ Transcriber = (*HTTPTranscriber)(nil)
