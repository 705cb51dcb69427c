package harness

import (
	"context"
	"sync"
	"time"

	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	"github.com/rs/zerolog"
)

const cleanupTimeout = 5 * time.Second

// Artifact is the single current HTML document of a session.
type Artifact struct {
	Content   string
	Revision  uint64
	CreatedAt time.Time
	Strategy  ExtractionStrategy
}

// ArtifactStore owns the current artifact and its prior revisions. Every
// replacement is written to the output slot and the journal before it becomes
// visible through Current.
type ArtifactStore struct {
	mu        sync.RWMutex
	sessionID string
	current   *Artifact
	history   []Artifact

	slot    ports.SlotWriter
	journal ports.RevisionJournal
	now     func() time.Time
	logger  zerolog.Logger
}

type replaceOptions struct {
	strategy ExtractionStrategy
	turns    []DialogueTurn
}

// ReplaceOption customizes a single Replace call.
type ReplaceOption func(*replaceOptions)

// WithStrategy records which extraction strategy produced the content.
func WithStrategy(s ExtractionStrategy) ReplaceOption {
	return func(o *replaceOptions) { o.strategy = s }
}

// WithTurns journals the dialogue turns that produced the content in the same commit.
func WithTurns(turns ...DialogueTurn) ReplaceOption {
	return func(o *replaceOptions) { o.turns = append(o.turns, turns...) }
}

// NewArtifactStore creates a store that writes through slot and, when non-nil, journal.
func NewArtifactStore(sessionID string, slot ports.SlotWriter, journal ports.RevisionJournal, logger zerolog.Logger) *ArtifactStore {
	if journal == nil {
		journal = noOpJournal{}
	}
	return &ArtifactStore{
		sessionID: sessionID,
		slot:      slot,
		journal:   journal,
		now:       time.Now,
		logger:    logger.With().Str("component", "artifact_store").Str("session_id", sessionID).Logger(),
	}
}

// Current returns the current artifact, if any.
func (s *ArtifactStore) Current() (Artifact, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return Artifact{}, false
	}
	return *s.current, true
}

// Revisions returns every committed revision, oldest first.
func (s *ArtifactStore) Revisions() []Artifact {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Artifact, 0, len(s.history)+1)
	out = append(out, s.history...)
	if s.current != nil {
		out = append(out, *s.current)
	}
	return out
}

// SlotLocation is where out-of-process viewers read the current artifact.
func (s *ArtifactStore) SlotLocation() string {
	return s.slot.Location()
}

// Replace persists content as the next revision. Callers must hold the
// session's exclusive turn; Replace itself only guards readers.
func (s *ArtifactStore) Replace(ctx context.Context, content string, opts ...ReplaceOption) (Artifact, error) {
	o := replaceOptions{strategy: StrategyRawFallback}
	for _, opt := range opts {
		opt(&o)
	}

	prev, hadPrev := s.Current()

	next := Artifact{
		Content:   content,
		Revision:  prev.Revision + 1,
		CreatedAt: s.now(),
		Strategy:  o.strategy,
	}

	if err := s.slot.Write(ctx, []byte(content)); err != nil {
		return Artifact{}, &PersistenceError{Op: "slot_write", Err: err}
	}

	entry := ports.JournalEntry{
		Revision: ports.Revision{
			Number:    next.Revision,
			Content:   next.Content,
			Strategy:  next.Strategy.String(),
			CreatedAt: next.CreatedAt,
		},
		Turns: toJournalTurns(o.turns),
	}

	if err := s.journal.Commit(ctx, s.sessionID, entry); err != nil {
		s.restoreSlot(ctx, prev, hadPrev)
		return Artifact{}, &PersistenceError{Op: "journal_commit", Err: err}
	}

	s.mu.Lock()
	if s.current != nil {
		s.history = append(s.history, *s.current)
	}
	s.current = &next
	s.mu.Unlock()

	s.logger.Debug().Uint64("revision", next.Revision).Str("strategy", next.Strategy.String()).Msg("artifact replaced")
	return next, nil
}

// rollback undoes the latest Replace. It is used when a later step of the
// same turn fails.
func (s *ArtifactStore) rollback(ctx context.Context, committed Artifact) error {
	s.mu.Lock()
	if s.current == nil || s.current.Revision != committed.Revision {
		s.mu.Unlock()
		return nil
	}
	var prev Artifact
	hadPrev := len(s.history) > 0
	if hadPrev {
		prev = s.history[len(s.history)-1]
		s.history = s.history[:len(s.history)-1]
		s.current = &prev
	} else {
		s.current = nil
	}
	s.mu.Unlock()

	ctx, cancel := cleanupContext(ctx)
	defer cancel()

	s.restoreSlot(ctx, prev, hadPrev)

	if err := s.journal.Revert(ctx, s.sessionID, committed.Revision); err != nil {
		return &PersistenceError{Op: "journal_revert", Err: err}
	}
	return nil
}

// Restore loads journaled revisions into an empty store and refreshes the slot.
func (s *ArtifactStore) Restore(ctx context.Context, revisions []Artifact) error {
	if len(revisions) == 0 {
		return nil
	}

	latest := revisions[len(revisions)-1]
	if err := s.slot.Write(ctx, []byte(latest.Content)); err != nil {
		return &PersistenceError{Op: "slot_write", Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append([]Artifact(nil), revisions[:len(revisions)-1]...)
	s.current = &latest
	return nil
}

// cleanupContext keeps rollback running after the turn's context is done;
// a canceled request is the usual reason a journal commit fails.
func cleanupContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

// restoreSlot puts the previous content back so the slot never shows an
// uncommitted revision.
func (s *ArtifactStore) restoreSlot(ctx context.Context, prev Artifact, hadPrev bool) {
	ctx, cancel := cleanupContext(ctx)
	defer cancel()

	var err error
	if hadPrev {
		err = s.slot.Write(ctx, []byte(prev.Content))
	} else {
		err = s.slot.Remove(ctx)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("slot", s.slot.Location()).Msg("failed to restore output slot")
	}
}

func toJournalTurns(turns []DialogueTurn) []ports.Turn {
	out := make([]ports.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, ports.Turn{
			Role:      string(t.Role),
			Content:   t.Content,
			Sequence:  t.Sequence,
			CreatedAt: t.CreatedAt,
		})
	}
	return out
}

func fromJournalTurns(turns []ports.Turn) []DialogueTurn {
	out := make([]DialogueTurn, 0, len(turns))
	for _, t := range turns {
		out = append(out, DialogueTurn{
			Role:      Role(t.Role),
			Content:   t.Content,
			Sequence:  t.Sequence,
			CreatedAt: t.CreatedAt,
		})
	}
	return out
}

func fromJournalRevisions(revs []ports.Revision) []Artifact {
	out := make([]Artifact, 0, len(revs))
	for _, r := range revs {
		out = append(out, Artifact{
			Content:   r.Content,
			Revision:  r.Number,
			CreatedAt: r.CreatedAt,
			Strategy:  ParseExtractionStrategy(r.Strategy),
		})
	}
	return out
}

// noOpJournal keeps sessions in memory only.
type noOpJournal struct{}

func (noOpJournal) Commit(ctx context.Context, sessionID string, entry ports.JournalEntry) error {
	return nil
}

func (noOpJournal) Revert(ctx context.Context, sessionID string, revision uint64) error { return nil }

func (noOpJournal) Load(ctx context.Context, sessionID string) (ports.SessionRecord, error) {
	return ports.SessionRecord{ID: sessionID}, nil
}

func (noOpJournal) Sessions(ctx context.Context) ([]ports.SessionSummary, error) { return nil, nil }

var _ ports.RevisionJournal = noOpJournal{}
