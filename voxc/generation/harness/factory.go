package harness

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/config"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	"github.com/rs/zerolog"
)

const defaultRefillRate = time.Second

// Factory creates and wires harness components from configuration.
type Factory struct {
	cfg    *config.Config
	db     *sql.DB // Optional, for the libsql journal
	logger zerolog.Logger

	mu      sync.Mutex
	journal ports.RevisionJournal
	closers []io.Closer
}

// NewFactory creates a new harness factory.
func NewFactory(cfg *config.Config, db *sql.DB, logger zerolog.Logger) *Factory {
	return &Factory{
		cfg:    cfg,
		db:     db,
		logger: logger,
	}
}

// CreateRegistry wires a session registry whose sessions share provider, journal and guardrails.
func (f *Factory) CreateRegistry(provider ports.Provider) (*SessionRegistry, error) {
	journal, err := f.CreateJournal()
	if err != nil {
		return nil, err
	}

	guardrails, err := f.CreateGuardrails()
	if err != nil {
		return nil, err
	}

	llm := generation.ResolveLLMConfig(f.cfg.LLM)
	tracer := f.CreateTracer()
	opts := f.CreateOptions()
	extractor := NewExtractor()
	builder := NewPromptBuilder()
	window := NewHistoryWindow(Budget{
		MaxTurns:         f.cfg.Harness.MaxHistoryTurns,
		MaxContextTokens: f.cfg.Harness.MaxContextTokens,
	}, nil)

	build := func(ctx context.Context, id string) (*Session, error) {
		memory := NewConversationMemory(llm.SystemPrompt)
		slot := adapters.NewFileSlot(f.slotPath(id))
		store := NewArtifactStore(id, slot, journal, f.logger)

		if err := rehydrate(ctx, journal, id, memory, store); err != nil {
			return nil, err
		}

		engine := NewGenerationEngine(EngineDeps{
			Provider:     provider,
			Collaborator: llm.Provider,
			Memory:       memory,
			Store:        store,
			Builder:      builder,
			Window:       window,
			Extractor:    extractor,
			Guardrails:   guardrails,
			Tracer:       tracer,
			Options:      opts,
			Logger:       f.logger.With().Str("session_id", id).Logger(),
		})

		return NewSession(id, memory, store, engine), nil
	}

	return NewSessionRegistry(build), nil
}

// rehydrate loads a journaled session into fresh memory and store.
func rehydrate(ctx context.Context, journal ports.RevisionJournal, id string, memory *ConversationMemory, store *ArtifactStore) error {
	rec, err := journal.Load(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", id, err)
	}

	if err := memory.Restore(fromJournalTurns(rec.Turns)); err != nil {
		return fmt.Errorf("failed to restore turns of session %s: %w", id, err)
	}

	return store.Restore(ctx, fromJournalRevisions(rec.Revisions))
}

// slotPath keeps the default session at the well-known output location.
func (f *Factory) slotPath(sessionID string) string {
	if sessionID == internal.DefaultSessionID {
		return filepath.Join(f.cfg.App.OutputDir, internal.DefaultSlotName)
	}
	return filepath.Join(f.cfg.App.OutputDir, "sessions", sessionID, internal.DefaultSlotName)
}

// CreateProvider creates the completion collaborator from config.
func (f *Factory) CreateProvider() (ports.Provider, error) {
	llm := generation.ResolveLLMConfig(f.cfg.LLM)
	if llm.APIKey == "" {
		f.logger.Warn().Str("base_url", llm.BaseURL).Msg("no API key configured for the completion collaborator")
	}

	pc := adapters.ProviderConfig{
		APIKey:  llm.APIKey,
		BaseURL: llm.BaseURL,
	}

	switch llm.Provider {
	case "openai":
		return adapters.NewOpenAIProvider(pc), nil
	case "openai-go":
		return adapters.NewOpenAIGoProvider(pc), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", llm.Provider)
	}
}

// CreateOptions returns the default per-call completion options.
func (f *Factory) CreateOptions() ports.Options {
	llm := generation.ResolveLLMConfig(f.cfg.LLM)
	return ports.Options{
		Model:        llm.Model,
		MaxNewTokens: llm.MaxTokens,
		Temperature:  llm.Temperature,
		JSONResponse: llm.JSONResponse,
		TimeoutMs:    int(llm.Timeout.Milliseconds()),
	}
}

// CreateJournal creates the revision journal selected by config. It is created once.
func (f *Factory) CreateJournal() (ports.RevisionJournal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.journal != nil {
		return f.journal, nil
	}

	switch f.cfg.App.JournalBackend {
	case "libsql":
		if f.db == nil {
			return nil, errors.New("libsql journal requires a database connection")
		}
		f.journal = adapters.NewLibSQLJournal(f.db)
	case "bolt":
		j, err := adapters.OpenBoltJournal(f.cfg.App.BoltPath)
		if err != nil {
			return nil, err
		}
		f.closers = append(f.closers, j)
		f.journal = j
	default:
		f.journal = noOpJournal{}
	}

	f.logger.Debug().Str("backend", f.cfg.App.JournalBackend).Msg("revision journal ready")
	return f.journal, nil
}

// CreateCache creates the transcript cache from config.
func (f *Factory) CreateCache() ports.Cache {
	if !f.cfg.Transcription.CacheEnabled || f.cfg.Transcription.CacheCapacity <= 0 {
		return &noOpCache{}
	}

	return adapters.NewLRUCache(f.cfg.Transcription.CacheCapacity)
}

// CreateRateLimiter creates a rate limiter adapter from config.
func (f *Factory) CreateRateLimiter() ports.RateLimiter {
	if !f.cfg.Harness.RateLimitEnabled {
		return &noOpRateLimiter{}
	}

	capacity := f.cfg.Harness.RateLimitCapacity
	if capacity < 1 {
		capacity = 1
		f.logger.Warn().Int("rate_limit_capacity", f.cfg.Harness.RateLimitCapacity).Msg("RateLimitCapacity clamped to minimum of 1")
	}

	refill := f.cfg.Harness.RateLimitRefillRate
	if refill <= 0 {
		refill = defaultRefillRate
		f.logger.Warn().Dur("rate_limit_refill_rate", f.cfg.Harness.RateLimitRefillRate).Msg("RateLimitRefillRate defaulted")
	}

	return adapters.NewTokenBucket(capacity, refill)
}

// CreateTracer creates a tracer adapter from config.
func (f *Factory) CreateTracer() ports.Tracer {
	if !f.cfg.Harness.EnableTracing {
		return &noOpTracer{}
	}

	return adapters.NewZerologTracer(f.logger)
}

// CreateGuardrails creates guardrails from config.
func (f *Factory) CreateGuardrails() (*Guardrails, error) {
	if !f.cfg.Harness.EnableGuardrails {
		return DefaultGuardrails(0), nil
	}
	return NewGuardrails(f.cfg.Harness.MaxOutputSize, f.cfg.Harness.RedactPatterns...)
}

// Close releases resources opened by the factory.
func (f *Factory) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var errs []error
	for _, c := range f.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.closers = nil
	return errors.Join(errs...)
}

// noOpCache implements Cache interface with no-op behavior for testing/disabled cache.
type noOpCache struct{}

func (c *noOpCache) Get(ctx context.Context, key string) ([]byte, bool) { return nil, false }
func (c *noOpCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	return nil
}
func (c *noOpCache) Delete(ctx context.Context, key string) error { return nil }

// noOpRateLimiter implements RateLimiter interface with no-op behavior.
type noOpRateLimiter struct{}

func (r *noOpRateLimiter) Acquire(ctx context.Context, key string) (release func(), err error) {
	return func() {}, nil
}

// noOpTracer implements Tracer interface with no-op behavior.
type noOpTracer struct{}

func (t *noOpTracer) StartSpan(ctx context.Context, name string, attrs map[string]any) (context.Context, func(err error)) {
	return ctx, func(err error) {}
}

func (t *noOpTracer) Event(ctx context.Context, name string, attrs map[string]any) {}

// Ensure all no-op types implement their interfaces.
var (
	_ ports.Cache       = (*noOpCache)(nil)
	_ ports.RateLimiter = (*noOpRateLimiter)(nil)
	_ ports.Tracer      = (*noOpTracer)(nil)
)
