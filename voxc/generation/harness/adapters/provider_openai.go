package adapters

import (
	"context"
	"errors"
	"net/http"

	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	openai "github.com/sashabaranov/go-openai"
)

// ProviderConfig configures an OpenAI-compatible completion endpoint.
type ProviderConfig struct {
	APIKey     string
	BaseURL    string       // e.g. https://api.groq.com/openai/v1
	HTTPClient *http.Client // optional
}

// OpenAIProvider implements Provider on top of sashabaranov/go-openai.
type OpenAIProvider struct {
	client *openai.Client
}

// NewOpenAIProvider creates a provider for any OpenAI-compatible chat endpoint.
func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientCfg.HTTPClient = cfg.HTTPClient
	}

	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg)}
}

// Complete sends the system preamble followed by the windowed history.
func (p *OpenAIProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: in.System,
		})
	}
	for _, m := range in.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	req := openai.ChatCompletionRequest{
		Model:       opts.Model,
		Messages:    messages,
		MaxTokens:   opts.MaxNewTokens,
		Temperature: opts.Temperature,
	}
	if opts.JSONResponse {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return ports.Completion{}, wrapOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		return ports.Completion{}, ports.ErrEmptyCompletion
	}

	return ports.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Raw:   resp,
		Usage: &ports.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func wrapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ports.ProviderError{
			Collaborator: "openai",
			StatusCode:   apiErr.HTTPStatusCode,
			Message:      apiErr.Message,
			Err:          err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ports.ProviderError{
			Collaborator: "openai",
			StatusCode:   reqErr.HTTPStatusCode,
			Message:      reqErr.HTTPStatus,
			Err:          err,
		}
	}

	return err
}

// Ensure OpenAIProvider implements the Provider interface.
var _ ports.Provider = (*OpenAIProvider)(nil)
