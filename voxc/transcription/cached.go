package transcription

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/audio"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	"github.com/rs/zerolog"
)

// CachedTranscriber remembers transcripts by the recording's content hash.
type CachedTranscriber struct {
	next   Transcriber
	cache  ports.Cache
	ttl    int
	logger zerolog.Logger
}

func NewCachedTranscriber(next Transcriber, cache ports.Cache, ttlSeconds int, logger zerolog.Logger) *CachedTranscriber {
	return &CachedTranscriber{
		next:   next,
		cache:  cache,
		ttl:    ttlSeconds,
		logger: logger.With().Str("component", "transcript_cache").Logger(),
	}
}

func (c *CachedTranscriber) Name() string { return c.next.Name() }

func (c *CachedTranscriber) Transcribe(ctx context.Context, clip audio.Clip) (string, error) {
	key := CacheKey(clip.Data)

	if cached, ok := c.cache.Get(ctx, key); ok {
		c.logger.Debug().Str("key", key[:20]).Msg("transcript cache hit")
		return string(cached), nil
	}

	text, err := c.next.Transcribe(ctx, clip)
	if err != nil {
		return "", err
	}

	if err := c.cache.Set(ctx, key, []byte(text), c.ttl); err != nil {
		c.logger.Warn().Err(err).Msg("failed to cache transcript")
	}
	return text, nil
}

// CacheKey identifies a recording by content.
func CacheKey(data []byte) string {
	sum := sha256.Sum256(data)
	return "transcript:" + hex.EncodeToString(sum[:])
}

var _ Transcriber = (*CachedTranscriber)(nil)
