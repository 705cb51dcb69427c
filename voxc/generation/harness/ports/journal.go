package harnessports

import (
	"context"
	"time"
)

// Turn is a persisted dialogue turn. The pinned system turn is never journaled.
type Turn struct {
	Role      string    `json:"role"` // "user" | "assistant"
	Content   string    `json:"content"`
	Sequence  uint64    `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

// Revision is a persisted artifact revision.
type Revision struct {
	Number    uint64    `json:"number"`
	Content   string    `json:"content"`
	Strategy  string    `json:"strategy"`
	CreatedAt time.Time `json:"created_at"`
}

// JournalEntry is everything one committed turn leaves behind.
type JournalEntry struct {
	Revision Revision `json:"revision"`
	Turns    []Turn   `json:"turns"`
}

// SessionRecord is the persisted state of a session, oldest first.
type SessionRecord struct {
	ID        string
	CreatedAt time.Time
	UpdatedAt time.Time
	Revisions []Revision
	Turns     []Turn
}

// SessionSummary describes a journaled session without its content.
type SessionSummary struct {
	ID        string
	Revision  uint64
	UpdatedAt time.Time
}

// RevisionJournal durably records committed turns so sessions survive restarts.
type RevisionJournal interface {
	// Commit records the revision and its turns atomically.
	Commit(ctx context.Context, sessionID string, entry JournalEntry) error
	// Revert removes a revision and the turns recorded with it.
	Revert(ctx context.Context, sessionID string, revision uint64) error
	// Load returns the session's record; unknown sessions yield an empty record.
	Load(ctx context.Context, sessionID string) (SessionRecord, error)
	Sessions(ctx context.Context) ([]SessionSummary, error)
}

// SlotWriter persists the current artifact to a stable location read by out-of-process viewers.
type SlotWriter interface {
	Write(ctx context.Context, content []byte) error
	Remove(ctx context.Context) error
	Location() string
}
