package adapters

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/db"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
)

// LibSQLJournal implements RevisionJournal on the embedded libsql database.
// The schema is created by db.Migrate.
type LibSQLJournal struct {
	db *sql.DB
}

// NewLibSQLJournal creates a new LibSQL revision journal.
func NewLibSQLJournal(conn *sql.DB) *LibSQLJournal {
	return &LibSQLJournal{db: conn}
}

// Commit records a revision and its turns in one transaction.
func (j *LibSQLJournal) Commit(ctx context.Context, sessionID string, entry ports.JournalEntry) error {
	now := time.Now().UnixNano()

	return db.WithTx(ctx, j.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sessions (id, created_at, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at
		`, sessionID, now, now)
		if err != nil {
			return fmt.Errorf("failed to upsert session: %w", err)
		}

		rev := entry.Revision
		_, err = tx.ExecContext(ctx, `
			INSERT INTO artifact_revisions (session_id, revision, content, strategy, created_at)
			VALUES (?, ?, ?, ?, ?)
		`, sessionID, int64(rev.Number), rev.Content, rev.Strategy, rev.CreatedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to save revision %d: %w", rev.Number, err)
		}

		for _, t := range entry.Turns {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO conversation_turns (session_id, sequence, role, content, revision, created_at)
				VALUES (?, ?, ?, ?, ?, ?)
			`, sessionID, int64(t.Sequence), t.Role, t.Content, int64(rev.Number), t.CreatedAt.UnixNano())
			if err != nil {
				return fmt.Errorf("failed to save turn %d: %w", t.Sequence, err)
			}
		}

		return nil
	})
}

// Revert removes a revision and the turns recorded with it.
func (j *LibSQLJournal) Revert(ctx context.Context, sessionID string, revision uint64) error {
	return db.WithTx(ctx, j.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM conversation_turns WHERE session_id = ? AND revision = ?`,
			sessionID, int64(revision)); err != nil {
			return fmt.Errorf("failed to delete turns of revision %d: %w", revision, err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM artifact_revisions WHERE session_id = ? AND revision = ?`,
			sessionID, int64(revision)); err != nil {
			return fmt.Errorf("failed to delete revision %d: %w", revision, err)
		}
		return nil
	})
}

// Load returns every revision and turn of a session in chronological order.
func (j *LibSQLJournal) Load(ctx context.Context, sessionID string) (ports.SessionRecord, error) {
	rec := ports.SessionRecord{ID: sessionID}

	var created, updated int64
	err := j.db.QueryRowContext(ctx,
		`SELECT created_at, updated_at FROM sessions WHERE id = ?`, sessionID).Scan(&created, &updated)
	switch {
	case err == sql.ErrNoRows:
		return rec, nil
	case err != nil:
		return rec, fmt.Errorf("failed to query session: %w", err)
	}
	rec.CreatedAt = time.Unix(0, created)
	rec.UpdatedAt = time.Unix(0, updated)

	revRows, err := j.db.QueryContext(ctx, `
		SELECT revision, content, strategy, created_at FROM artifact_revisions
		WHERE session_id = ?
		ORDER BY revision ASC
	`, sessionID)
	if err != nil {
		return rec, fmt.Errorf("failed to query revisions: %w", err)
	}
	defer revRows.Close()

	for revRows.Next() {
		var (
			r  ports.Revision
			n  int64
			at int64
		)
		if err := revRows.Scan(&n, &r.Content, &r.Strategy, &at); err != nil {
			return rec, fmt.Errorf("failed to scan revision: %w", err)
		}
		r.Number = uint64(n)
		r.CreatedAt = time.Unix(0, at)
		rec.Revisions = append(rec.Revisions, r)
	}
	if err := revRows.Err(); err != nil {
		return rec, fmt.Errorf("error iterating revisions: %w", err)
	}

	turnRows, err := j.db.QueryContext(ctx, `
		SELECT sequence, role, content, created_at FROM conversation_turns
		WHERE session_id = ?
		ORDER BY sequence ASC
	`, sessionID)
	if err != nil {
		return rec, fmt.Errorf("failed to query turns: %w", err)
	}
	defer turnRows.Close()

	for turnRows.Next() {
		var (
			t   ports.Turn
			seq int64
			at  int64
		)
		if err := turnRows.Scan(&seq, &t.Role, &t.Content, &at); err != nil {
			return rec, fmt.Errorf("failed to scan turn: %w", err)
		}
		t.Sequence = uint64(seq)
		t.CreatedAt = time.Unix(0, at)
		rec.Turns = append(rec.Turns, t)
	}
	if err := turnRows.Err(); err != nil {
		return rec, fmt.Errorf("error iterating turns: %w", err)
	}

	return rec, nil
}

// Sessions lists journaled sessions, most recently updated first.
func (j *LibSQLJournal) Sessions(ctx context.Context) ([]ports.SessionSummary, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT s.id, s.updated_at, COALESCE(MAX(r.revision), 0)
		FROM sessions s
		LEFT JOIN artifact_revisions r ON r.session_id = s.id
		GROUP BY s.id, s.updated_at
		ORDER BY s.updated_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []ports.SessionSummary
	for rows.Next() {
		var (
			s       ports.SessionSummary
			updated int64
			rev     int64
		)
		if err := rows.Scan(&s.ID, &updated, &rev); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.UpdatedAt = time.Unix(0, updated)
		s.Revision = uint64(rev)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return out, nil
}

// Ensure LibSQLJournal implements the RevisionJournal interface.
var _ ports.RevisionJournal = (*LibSQLJournal)(nil)
