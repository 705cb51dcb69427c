package transcription

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/audio"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	openai "github.com/sashabaranov/go-openai"
)

const whisperCollaborator = "whisper"

// WhisperTranscriber uses an OpenAI-compatible /audio/transcriptions endpoint
// (Groq or OpenAI).
type WhisperTranscriber struct {
	client *openai.Client
	model  string
}

func NewWhisperTranscriber(apiKey, baseURL, model string) *WhisperTranscriber {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperTranscriber{client: openai.NewClientWithConfig(cfg), model: model}
}

func (t *WhisperTranscriber) Name() string { return whisperCollaborator }

func (t *WhisperTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: clip.Filename,
		Reader:   bytes.NewReader(clip.Data),
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", &ports.ProviderError{
				Collaborator: whisperCollaborator,
				StatusCode:   apiErr.HTTPStatusCode,
				Message:      apiErr.Message,
				Err:          err,
			}
		}
		var reqErr *openai.RequestError
		if errors.As(err, &reqErr) {
			return "", &ports.ProviderError{
				Collaborator: whisperCollaborator,
				StatusCode:   reqErr.HTTPStatusCode,
				Message:      reqErr.HTTPStatus,
				Err:          err,
			}
		}
		return "", err
	}

	text := strings.TrimSpace(resp.Text)
	if text == "" {
		return "", &ports.ProviderError{
			Collaborator: whisperCollaborator,
			Message:      "empty transcription",
			Err:          ports.ErrEmptyCompletion,
		}
	}
	return text, nil
}

var _ Transcriber = (*WhisperTranscriber)(nil)
