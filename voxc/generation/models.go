package generation

import "strings"

// Default model configurations for supported hosted LLMs.
// These are the recommended models for HTML page generation.

const (
	// Groq-hosted Llama models
	DefaultLlama31_70B = "llama-3.1-70b-versatile"
	DefaultLlama33_70B = "llama-3.3-70b-versatile"
	DefaultLlama32_90B = "llama-3.2-90b-vision-preview"
	DefaultLlama31_8B  = "llama-3.1-8b-instant"
)

// ModelConfig holds configuration for a specific model
type ModelConfig struct {
	Name               string
	ID                 string
	ContextLength      int
	DefaultMaxTokens   int
	DefaultTemperature float32
	SupportsJSONMode   bool
}

// GetModelConfig returns the default configuration for a model
func GetModelConfig(model string) *ModelConfig {
	id := strings.ToLower(model)
	switch {
	case strings.Contains(id, "llama-3.1-70b"), strings.Contains(id, "llama-3.3-70b"):
		return &ModelConfig{
			Name:               "Llama 3 70B",
			ID:                 model,
			ContextLength:      131072,
			DefaultMaxTokens:   2048,
			DefaultTemperature: 1,
			SupportsJSONMode:   true,
		}
	case strings.Contains(id, "llama-3.2-90b"):
		return &ModelConfig{
			Name:               "Llama 3.2 90B Vision",
			ID:                 model,
			ContextLength:      8192,
			DefaultMaxTokens:   2048,
			DefaultTemperature: 1,
			SupportsJSONMode:   true,
		}
	case strings.Contains(id, "llama-3.1-8b"):
		return &ModelConfig{
			Name:               "Llama 3.1 8B",
			ID:                 model,
			ContextLength:      131072,
			DefaultMaxTokens:   2048,
			DefaultTemperature: 0.7,
			SupportsJSONMode:   true,
		}
	case strings.HasPrefix(id, "gpt-"):
		return &ModelConfig{
			Name:               "OpenAI GPT",
			ID:                 model,
			ContextLength:      128000,
			DefaultMaxTokens:   4096,
			DefaultTemperature: 1,
			SupportsJSONMode:   true,
		}
	default:
		// Default fallback configuration
		return &ModelConfig{
			Name:               "Unknown Model",
			ID:                 model,
			ContextLength:      8192,
			DefaultMaxTokens:   2048,
			DefaultTemperature: 1,
			SupportsJSONMode:   false,
		}
	}
}
