package harness

import (
	"context"
	"errors"
	"strings"
	"time"

	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	"github.com/rs/zerolog"
)

// TurnResult is what a successful generate or modify returns to its caller.
type TurnResult struct {
	Artifact      Artifact
	RawCompletion string
	Strategy      ExtractionStrategy
	// Warning is ErrExtractionDegraded when the raw completion became the artifact.
	Warning error
	Usage   *ports.Usage
}

// CallOption overrides completion options for a single turn.
type CallOption func(*ports.Options)

func WithModel(model string) CallOption {
	return func(o *ports.Options) { o.Model = model }
}

func WithTemperature(t float32) CallOption {
	return func(o *ports.Options) { o.Temperature = t }
}

func WithMaxTokens(n int) CallOption {
	return func(o *ports.Options) { o.MaxNewTokens = n }
}

func WithJSONResponse(enabled bool) CallOption {
	return func(o *ports.Options) { o.JSONResponse = enabled }
}

func WithTimeout(d time.Duration) CallOption {
	return func(o *ports.Options) { o.TimeoutMs = int(d / time.Millisecond) }
}

// EngineDeps holds the collaborators of a GenerationEngine.
type EngineDeps struct {
	Provider     ports.Provider
	Collaborator string // provider name used in errors and traces
	Memory       *ConversationMemory
	Store        *ArtifactStore
	Builder      *PromptBuilder
	Window       *HistoryWindow
	Extractor    *Extractor
	Guardrails   *Guardrails
	Tracer       ports.Tracer
	Options      ports.Options
	Logger       zerolog.Logger
}

// GenerationEngine runs one turn at a time against a session's memory and store.
// It does not serialize callers; Session wraps it with a RequestSerializer.
type GenerationEngine struct {
	provider     ports.Provider
	collaborator string
	memory       *ConversationMemory
	store        *ArtifactStore
	builder      *PromptBuilder
	window       *HistoryWindow
	extractor    *Extractor
	guardrails   *Guardrails
	tracer       ports.Tracer
	defaults     ports.Options
	logger       zerolog.Logger
}

func NewGenerationEngine(deps EngineDeps) *GenerationEngine {
	if deps.Builder == nil {
		deps.Builder = NewPromptBuilder()
	}
	if deps.Window == nil {
		deps.Window = NewHistoryWindow(Budget{}, nil)
	}
	if deps.Extractor == nil {
		deps.Extractor = NewExtractor()
	}
	if deps.Guardrails == nil {
		deps.Guardrails = DefaultGuardrails(0)
	}
	if deps.Tracer == nil {
		deps.Tracer = &noOpTracer{}
	}
	if deps.Collaborator == "" {
		deps.Collaborator = "completion"
	}

	return &GenerationEngine{
		provider:     deps.Provider,
		collaborator: deps.Collaborator,
		memory:       deps.Memory,
		store:        deps.Store,
		builder:      deps.Builder,
		window:       deps.Window,
		extractor:    deps.Extractor,
		guardrails:   deps.Guardrails,
		tracer:       deps.Tracer,
		defaults:     deps.Options,
		logger:       deps.Logger.With().Str("component", "engine").Logger(),
	}
}

// Generate produces a fresh artifact from input.
func (e *GenerationEngine) Generate(ctx context.Context, input string, opts ...CallOption) (*TurnResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, ErrEmptyInput
	}
	return e.runTurn(ctx, ModeGenerate, input, input, opts)
}

// Modify revises the current artifact according to instruction.
func (e *GenerationEngine) Modify(ctx context.Context, instruction string, opts ...CallOption) (*TurnResult, error) {
	instruction = strings.TrimSpace(instruction)
	if instruction == "" {
		return nil, ErrEmptyInput
	}

	current, ok := e.store.Current()
	if !ok {
		return nil, ErrNoArtifactToModify
	}

	prompt := e.builder.ModifyInput(current.Content, instruction)
	return e.runTurn(ctx, ModeModify, instruction, prompt, opts)
}

// runTurn is all-or-nothing: memory and store change only after the
// completion succeeded and the artifact was persisted.
func (e *GenerationEngine) runTurn(ctx context.Context, mode TurnMode, recorded, promptText string, opts []CallOption) (result *TurnResult, err error) {
	ctx, finish := e.tracer.StartSpan(ctx, "turn."+string(mode), map[string]any{
		"history_len": e.memory.Len(),
	})
	defer func() { finish(err) }()

	req := CompletionRequest{
		History:  e.window.Apply(e.memory.HistoryExcludingSystem(), promptText),
		NewInput: promptText,
		Mode:     mode,
	}
	in := e.builder.Build(e.memory.System().Content, req, nil)

	callOpts := e.defaults
	for _, opt := range opts {
		opt(&callOpts)
	}

	completion, err := e.complete(ctx, in, callOpts)
	if err != nil {
		return nil, err
	}

	extracted := e.extractor.Extract(completion.Text)
	e.tracer.Event(ctx, "extracted", map[string]any{"strategy": extracted.Strategy.String()})

	pending, err := e.memory.Stage(
		DialogueTurn{Role: RoleUser, Content: recorded},
		DialogueTurn{Role: RoleAssistant, Content: completion.Text},
	)
	if err != nil {
		return nil, err
	}

	artifact, err := e.replace(ctx, extracted, pending)
	if err != nil {
		return nil, err
	}

	if err := e.memory.Commit(pending); err != nil {
		if rbErr := e.store.rollback(ctx, artifact); rbErr != nil {
			e.logger.Error().Err(rbErr).Uint64("revision", artifact.Revision).Msg("rollback after failed memory commit")
		}
		return nil, err
	}

	result = &TurnResult{
		Artifact:      artifact,
		RawCompletion: completion.Text,
		Strategy:      extracted.Strategy,
		Usage:         completion.Usage,
	}
	if extracted.Degraded() {
		result.Warning = ErrExtractionDegraded
		e.logger.Warn().Uint64("revision", artifact.Revision).Msg("no structured html in completion, using raw text")
	}

	e.logger.Info().
		Str("mode", string(mode)).
		Uint64("revision", artifact.Revision).
		Str("strategy", extracted.Strategy.String()).
		Int("turns", e.memory.Len()).
		Msg("turn committed")

	return result, nil
}

func (e *GenerationEngine) complete(ctx context.Context, in ports.PromptInput, opts ports.Options) (c ports.Completion, err error) {
	ctx, finish := e.tracer.StartSpan(ctx, "provider.complete", map[string]any{
		"collaborator": e.collaborator,
		"model":        opts.Model,
		"messages":     len(in.Messages),
	})
	defer func() { finish(err) }()

	if opts.TimeoutMs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMs)*time.Millisecond)
		defer cancel()
	}

	c, err = e.provider.Complete(ctx, in, opts)
	if err != nil {
		return ports.Completion{}, ClassifyProviderError(e.collaborator, err)
	}

	if strings.TrimSpace(c.Text) == "" {
		return ports.Completion{}, ClassifyProviderError(e.collaborator, ports.ErrEmptyCompletion)
	}

	if err := e.guardrails.ValidateOutputSize(c.Text); err != nil {
		return ports.Completion{}, &GenerationError{Cause: CauseRejected, Collaborator: e.collaborator, Err: err}
	}

	if c.Usage != nil {
		e.tracer.Event(ctx, "usage", map[string]any{
			"prompt_tokens":     c.Usage.PromptTokens,
			"completion_tokens": c.Usage.CompletionTokens,
		})
	}

	return c, nil
}

func (e *GenerationEngine) replace(ctx context.Context, extracted ExtractionResult, pending *PendingTurns) (a Artifact, err error) {
	ctx, finish := e.tracer.StartSpan(ctx, "artifact.replace", map[string]any{
		"strategy": extracted.Strategy.String(),
		"bytes":    len(extracted.HTML),
	})
	defer func() { finish(err) }()

	a, err = e.store.Replace(ctx, extracted.HTML, WithStrategy(extracted.Strategy), WithTurns(pending.Turns()...))
	if err != nil {
		var perr *PersistenceError
		if !errors.As(err, &perr) {
			err = &PersistenceError{Op: "replace", Err: err}
		}
		return Artifact{}, err
	}
	return a, nil
}
