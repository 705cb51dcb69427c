package harness

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/armon/go-radix"
	"github.com/google/uuid"
)

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrAmbiguousSession = errors.New("session prefix is ambiguous")
	ErrInvalidSessionID = errors.New("invalid session id")
)

// Session IDs name directories under the output dir and journal keys.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// ValidSessionID reports whether id is safe to use as a session ID.
func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// CommitListener is notified after a turn has been fully committed.
type CommitListener func(sessionID string, artifact Artifact)

// Session bundles one conversation with its artifact store, engine and turn slot.
type Session struct {
	ID        string
	CreatedAt time.Time

	Memory *ConversationMemory
	Store  *ArtifactStore

	engine     *GenerationEngine
	serializer *RequestSerializer

	mu        sync.RWMutex
	listeners []CommitListener
}

// NewSession wires a session around an engine built over memory and store.
func NewSession(id string, memory *ConversationMemory, store *ArtifactStore, engine *GenerationEngine) *Session {
	return &Session{
		ID:         id,
		CreatedAt:  time.Now(),
		Memory:     memory,
		Store:      store,
		engine:     engine,
		serializer: NewRequestSerializer(),
	}
}

// OnCommit registers a listener invoked after every committed turn.
func (s *Session) OnCommit(l CommitListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

// Generate runs a generate turn exclusively.
func (s *Session) Generate(ctx context.Context, input string, opts ...CallOption) (*TurnResult, error) {
	res, err := WithExclusiveTurn(ctx, s.serializer, func(ctx context.Context) (*TurnResult, error) {
		return s.engine.Generate(ctx, input, opts...)
	})
	if err != nil {
		return nil, err
	}
	// Listeners run after the turn slot is released so slow ones never hold up queued turns.
	s.notify(res.Artifact)
	return res, nil
}

// Modify runs a modify turn exclusively.
func (s *Session) Modify(ctx context.Context, instruction string, opts ...CallOption) (*TurnResult, error) {
	res, err := WithExclusiveTurn(ctx, s.serializer, func(ctx context.Context) (*TurnResult, error) {
		return s.engine.Modify(ctx, instruction, opts...)
	})
	if err != nil {
		return nil, err
	}
	s.notify(res.Artifact)
	return res, nil
}

func (s *Session) notify(a Artifact) {
	s.mu.RLock()
	listeners := append([]CommitListener(nil), s.listeners...)
	s.mu.RUnlock()

	for _, l := range listeners {
		l(s.ID, a)
	}
}

// SessionBuilder constructs (and rehydrates) the session with the given ID.
type SessionBuilder func(ctx context.Context, id string) (*Session, error)

// SessionRegistry indexes sessions by ID and resolves unique ID prefixes.
type SessionRegistry struct {
	mu       sync.RWMutex
	tree     *radix.Tree
	build    SessionBuilder
	onCommit []CommitListener
}

func NewSessionRegistry(build SessionBuilder) *SessionRegistry {
	return &SessionRegistry{
		tree:  radix.New(),
		build: build,
	}
}

// OnCommit registers a listener on every current and future session.
func (r *SessionRegistry) OnCommit(l CommitListener) {
	r.mu.Lock()
	r.onCommit = append(r.onCommit, l)
	sessions := r.listLocked()
	r.mu.Unlock()

	for _, s := range sessions {
		s.OnCommit(l)
	}
}

// Create builds a session with a fresh random ID.
func (r *SessionRegistry) Create(ctx context.Context) (*Session, error) {
	return r.Open(ctx, uuid.NewString())
}

// Open returns the session with exactly this ID, building it on first use.
func (r *SessionRegistry) Open(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrSessionNotFound)
	}
	if !ValidSessionID(id) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}

	if s, ok := r.Get(id); ok {
		return s, nil
	}

	s, err := r.build(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to build session %s: %w", id, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have opened it while we were building.
	if existing, ok := r.tree.Get(id); ok {
		return existing.(*Session), nil
	}

	for _, l := range r.onCommit {
		s.OnCommit(l)
	}
	r.tree.Insert(id, s)
	return s, nil
}

// Get returns the session with exactly this ID.
func (r *SessionRegistry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.tree.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*Session), true
}

// Resolve finds the single open session whose ID starts with prefix.
func (r *SessionRegistry) Resolve(prefix string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if v, ok := r.tree.Get(prefix); ok {
		return v.(*Session), nil
	}

	var matches []*Session
	r.tree.WalkPrefix(prefix, func(_ string, v interface{}) bool {
		matches = append(matches, v.(*Session))
		return len(matches) > 1
	})

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %q", ErrSessionNotFound, prefix)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrAmbiguousSession, prefix)
	}
}

// List returns open sessions ordered by ID.
func (r *SessionRegistry) List() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listLocked()
}

func (r *SessionRegistry) listLocked() []*Session {
	out := make([]*Session, 0, r.tree.Len())
	r.tree.Walk(func(_ string, v interface{}) bool {
		out = append(out, v.(*Session))
		return false
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
