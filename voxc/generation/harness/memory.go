package harness

import (
	"fmt"
	"sync"
	"time"
)

// Role identifies who authored a dialogue turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DialogueTurn is one immutable entry of the conversation.
type DialogueTurn struct {
	Role      Role
	Content   string
	Sequence  uint64
	CreatedAt time.Time
}

// ConversationMemory is an append-only dialogue log whose first turn is
// always the pinned system preamble.
type ConversationMemory struct {
	mu    sync.RWMutex
	turns []DialogueTurn
	now   func() time.Time
}

// PendingTurns are validated, sequenced turns not yet visible to readers.
type PendingTurns struct {
	base  int
	turns []DialogueTurn
}

// Turns returns the staged turns with their assigned sequence numbers.
func (p *PendingTurns) Turns() []DialogueTurn {
	out := make([]DialogueTurn, len(p.turns))
	copy(out, p.turns)
	return out
}

func NewConversationMemory(systemPrompt string) *ConversationMemory {
	m := &ConversationMemory{now: time.Now}
	m.turns = []DialogueTurn{{
		Role:      RoleSystem,
		Content:   systemPrompt,
		Sequence:  1,
		CreatedAt: m.now(),
	}}
	return m
}

// System returns the pinned preamble.
func (m *ConversationMemory) System() DialogueTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.turns[0]
}

// Len returns the number of turns including the system turn.
func (m *ConversationMemory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.turns)
}

// Append validates and appends turns as one batch.
func (m *ConversationMemory) Append(turns ...DialogueTurn) error {
	pending, err := m.Stage(turns...)
	if err != nil {
		return err
	}
	return m.Commit(pending)
}

// Stage validates turns and assigns their sequence numbers without publishing them.
func (m *ConversationMemory) Stage(turns ...DialogueTurn) (*PendingTurns, error) {
	for i, t := range turns {
		if err := validateRole(t.Role); err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
	}

	m.mu.RLock()
	base := len(m.turns)
	next := m.turns[base-1].Sequence + 1
	m.mu.RUnlock()

	now := m.now()
	staged := make([]DialogueTurn, len(turns))
	for i, t := range turns {
		t.Sequence = next + uint64(i)
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		staged[i] = t
	}

	return &PendingTurns{base: base, turns: staged}, nil
}

// Commit publishes staged turns. It fails if other turns were appended since staging.
func (m *ConversationMemory) Commit(p *PendingTurns) error {
	if p == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.turns) != p.base {
		return fmt.Errorf("%w: memory changed since staging (had %d turns, now %d)", ErrInvalidTurn, p.base, len(m.turns))
	}

	m.turns = append(m.turns, p.turns...)
	return nil
}

// Snapshot returns an ordered copy of every turn.
func (m *ConversationMemory) Snapshot() []DialogueTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DialogueTurn, len(m.turns))
	copy(out, m.turns)
	return out
}

// HistoryExcludingSystem returns every turn after the system preamble.
func (m *ConversationMemory) HistoryExcludingSystem() []DialogueTurn {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]DialogueTurn, len(m.turns)-1)
	copy(out, m.turns[1:])
	return out
}

// Restore loads journaled turns into a fresh memory.
func (m *ConversationMemory) Restore(turns []DialogueTurn) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.turns) != 1 {
		return fmt.Errorf("%w: restore requires an empty conversation", ErrInvalidTurn)
	}

	last := m.turns[0].Sequence
	for i, t := range turns {
		if err := validateRole(t.Role); err != nil {
			return fmt.Errorf("turn %d: %w", i, err)
		}
		if t.Sequence <= last {
			return fmt.Errorf("%w: sequence %d does not follow %d", ErrInvalidTurn, t.Sequence, last)
		}
		last = t.Sequence
	}

	m.turns = append(m.turns, turns...)
	return nil
}

func validateRole(r Role) error {
	switch r {
	case RoleUser, RoleAssistant:
		return nil
	case RoleSystem:
		return fmt.Errorf("%w: system turn is pinned at index 0", ErrInvalidTurn)
	default:
		return fmt.Errorf("%w: unknown role %q", ErrInvalidTurn, r)
	}
}
