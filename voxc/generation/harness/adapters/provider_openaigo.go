package adapters

import (
	"context"
	"errors"

	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// OpenAIGoProvider implements Provider on top of the official openai-go SDK.
type OpenAIGoProvider struct {
	client openai.Client
}

// NewOpenAIGoProvider creates a provider with SDK retries disabled; retry
// policy belongs to the caller.
func NewOpenAIGoProvider(cfg ProviderConfig) *OpenAIGoProvider {
	opts := []option.RequestOption{option.WithMaxRetries(0)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &OpenAIGoProvider{client: openai.NewClient(opts...)}
}

func (p *OpenAIGoProvider) Complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (ports.Completion, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages)+1)
	if in.System != "" {
		messages = append(messages, openai.SystemMessage(in.System))
	}
	for _, m := range in.Messages {
		switch m.Role {
		case "assistant":
			messages = append(messages, openai.AssistantMessage(m.Content))
		default:
			messages = append(messages, openai.UserMessage(m.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(opts.Model),
		Messages: messages,
	}
	if opts.MaxNewTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxNewTokens))
	}
	params.Temperature = openai.Float(float64(opts.Temperature))
	if opts.JSONResponse {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return ports.Completion{}, &ports.ProviderError{
				Collaborator: "openai-go",
				StatusCode:   apiErr.StatusCode,
				Message:      apiErr.Message,
				Err:          err,
			}
		}
		return ports.Completion{}, err
	}

	if resp == nil || len(resp.Choices) == 0 {
		return ports.Completion{}, ports.ErrEmptyCompletion
	}

	return ports.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: resp.Model,
		Raw:   resp,
		Usage: &ports.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Ensure OpenAIGoProvider implements the Provider interface.
var _ ports.Provider = (*OpenAIGoProvider)(nil)
