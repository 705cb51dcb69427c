package generation

import (
	"os"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/config"
)

// apiKeyEnv lists the environment variables consulted when no key is configured.
var apiKeyEnv = []string{"GROQ_SECRET_ACCESS_KEY", "OPENAI_API_KEY"}

// ResolveLLMConfig fills unset LLM fields with model-appropriate defaults.
func ResolveLLMConfig(cfg config.LLMConfig) config.LLMConfig {
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = internal.DefaultLLMBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = internal.DefaultLLMModel
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = internal.DefaultSystemPrompt
	}

	model := GetModelConfig(cfg.Model)

	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = model.DefaultMaxTokens
	}
	if cfg.MaxTokens > model.ContextLength {
		cfg.MaxTokens = model.ContextLength
	}
	if cfg.Temperature < 0 {
		cfg.Temperature = model.DefaultTemperature
	}
	if cfg.JSONResponse && !model.SupportsJSONMode {
		cfg.JSONResponse = false
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}

	if cfg.APIKey == "" {
		for _, name := range apiKeyEnv {
			if v := os.Getenv(name); v != "" {
				cfg.APIKey = v
				break
			}
		}
	}

	return cfg
}
