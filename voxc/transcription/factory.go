package transcription

import (
	"fmt"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/config"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	"github.com/rs/zerolog"
)

// New builds the configured transcriber. The whisper provider shares the
// completion collaborator's endpoint and key. A nil cache disables caching.
func New(cfg *config.Config, cache ports.Cache, logger zerolog.Logger) (Transcriber, error) {
	var t Transcriber
	switch cfg.Transcription.Provider {
	case "", "http":
		if cfg.Transcription.URL == "" {
			logger.Warn().Msg("transcription.url is empty; uploads will fail until it is set")
		}
		t = NewHTTPTranscriber(cfg.Transcription.URL, cfg.Transcription.Timeout, logger)
	case "whisper":
		llm := generation.ResolveLLMConfig(cfg.LLM)
		t = NewWhisperTranscriber(llm.APIKey, llm.BaseURL, cfg.Transcription.Model)
	default:
		return nil, fmt.Errorf("unknown transcription provider %q", cfg.Transcription.Provider)
	}

	if cache != nil && cfg.Transcription.CacheEnabled {
		t = NewCachedTranscriber(t, cache, cfg.Transcription.CacheTTLSeconds, logger)
	}
	return t, nil
}
