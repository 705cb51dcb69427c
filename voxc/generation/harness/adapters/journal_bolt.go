package adapters

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	"github.com/bytedance/sonic"
	bolt "go.etcd.io/bbolt"
)

var (
	boltSessionsBucket  = []byte("sessions")
	boltRevisionsBucket = []byte("revisions")
	boltTurnsBucket     = []byte("turns")
)

// BoltJournal implements RevisionJournal in a single BoltDB file. Each session
// gets its own bucket holding "revisions" and "turns" sub-buckets keyed by
// big-endian numbers so cursors iterate in order.
type BoltJournal struct {
	db *bolt.DB
}

type boltSessionMeta struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	Revision  uint64    `json:"revision"`
}

type boltTurn struct {
	ports.Turn
	Revision uint64 `json:"revision"`
}

// OpenBoltJournal opens (or creates) the journal file at path.
func OpenBoltJournal(path string) (*BoltJournal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt journal %s: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltSessionsBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialise bolt journal: %w", err)
	}

	return &BoltJournal{db: db}, nil
}

func (j *BoltJournal) Close() error {
	return j.db.Close()
}

func (j *BoltJournal) Commit(ctx context.Context, sessionID string, entry ports.JournalEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		sessions := tx.Bucket(boltSessionsBucket)

		var meta boltSessionMeta
		if raw := sessions.Get([]byte(sessionID)); raw != nil {
			if err := sonic.Unmarshal(raw, &meta); err != nil {
				return fmt.Errorf("corrupt session meta for %s: %w", sessionID, err)
			}
		} else {
			meta.CreatedAt = time.Now()
		}
		meta.UpdatedAt = time.Now()
		if entry.Revision.Number > meta.Revision {
			meta.Revision = entry.Revision.Number
		}

		b, err := tx.CreateBucketIfNotExists(sessionBucketName(sessionID))
		if err != nil {
			return err
		}
		revs, err := b.CreateBucketIfNotExists(boltRevisionsBucket)
		if err != nil {
			return err
		}
		turns, err := b.CreateBucketIfNotExists(boltTurnsBucket)
		if err != nil {
			return err
		}

		key := itob(entry.Revision.Number)
		if revs.Get(key) != nil {
			return fmt.Errorf("revision %d already journaled for session %s", entry.Revision.Number, sessionID)
		}
		enc, err := sonic.Marshal(entry.Revision)
		if err != nil {
			return err
		}
		if err := revs.Put(key, enc); err != nil {
			return err
		}

		for _, t := range entry.Turns {
			enc, err := sonic.Marshal(boltTurn{Turn: t, Revision: entry.Revision.Number})
			if err != nil {
				return err
			}
			if err := turns.Put(itob(t.Sequence), enc); err != nil {
				return err
			}
		}

		encMeta, err := sonic.Marshal(meta)
		if err != nil {
			return err
		}
		return sessions.Put([]byte(sessionID), encMeta)
	})
}

func (j *BoltJournal) Revert(ctx context.Context, sessionID string, revision uint64) error {
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionBucketName(sessionID))
		if b == nil {
			return nil
		}

		if revs := b.Bucket(boltRevisionsBucket); revs != nil {
			if err := revs.Delete(itob(revision)); err != nil {
				return err
			}
			if err := j.resetLatest(tx, sessionID, revs); err != nil {
				return err
			}
		}

		turns := b.Bucket(boltTurnsBucket)
		if turns == nil {
			return nil
		}
		var doomed [][]byte
		if err := turns.ForEach(func(k, v []byte) error {
			var t boltTurn
			if err := sonic.Unmarshal(v, &t); err != nil {
				return err
			}
			if t.Revision == revision {
				doomed = append(doomed, append([]byte(nil), k...))
			}
			return nil
		}); err != nil {
			return err
		}
		for _, k := range doomed {
			if err := turns.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (j *BoltJournal) Load(ctx context.Context, sessionID string) (ports.SessionRecord, error) {
	rec := ports.SessionRecord{ID: sessionID}

	err := j.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(boltSessionsBucket).Get([]byte(sessionID))
		if raw == nil {
			return nil
		}
		var meta boltSessionMeta
		if err := sonic.Unmarshal(raw, &meta); err != nil {
			return fmt.Errorf("corrupt session meta for %s: %w", sessionID, err)
		}
		rec.CreatedAt = meta.CreatedAt
		rec.UpdatedAt = meta.UpdatedAt

		b := tx.Bucket(sessionBucketName(sessionID))
		if b == nil {
			return nil
		}

		if revs := b.Bucket(boltRevisionsBucket); revs != nil {
			if err := revs.ForEach(func(_, v []byte) error {
				var r ports.Revision
				if err := sonic.Unmarshal(v, &r); err != nil {
					return err
				}
				rec.Revisions = append(rec.Revisions, r)
				return nil
			}); err != nil {
				return err
			}
		}

		if turns := b.Bucket(boltTurnsBucket); turns != nil {
			if err := turns.ForEach(func(_, v []byte) error {
				var t boltTurn
				if err := sonic.Unmarshal(v, &t); err != nil {
					return err
				}
				rec.Turns = append(rec.Turns, t.Turn)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return rec, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	return rec, nil
}

func (j *BoltJournal) Sessions(ctx context.Context) ([]ports.SessionSummary, error) {
	var out []ports.SessionSummary

	err := j.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(boltSessionsBucket).ForEach(func(k, v []byte) error {
			var meta boltSessionMeta
			if err := sonic.Unmarshal(v, &meta); err != nil {
				// Skip malformed entries instead of failing the whole listing
				return nil
			}
			out = append(out, ports.SessionSummary{
				ID:        string(k),
				Revision:  meta.Revision,
				UpdatedAt: meta.UpdatedAt,
			})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(out, func(i, k int) bool { return out[i].UpdatedAt.After(out[k].UpdatedAt) })
	return out, nil
}

// resetLatest points the session meta at the highest remaining revision.
func (j *BoltJournal) resetLatest(tx *bolt.Tx, sessionID string, revs *bolt.Bucket) error {
	sessions := tx.Bucket(boltSessionsBucket)
	raw := sessions.Get([]byte(sessionID))
	if raw == nil {
		return nil
	}

	var meta boltSessionMeta
	if err := sonic.Unmarshal(raw, &meta); err != nil {
		return err
	}

	meta.Revision = 0
	if k, _ := revs.Cursor().Last(); k != nil {
		meta.Revision = binary.BigEndian.Uint64(k)
	}

	enc, err := sonic.Marshal(meta)
	if err != nil {
		return err
	}
	return sessions.Put([]byte(sessionID), enc)
}

func sessionBucketName(sessionID string) []byte {
	return []byte("session:" + sessionID)
}

func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

// Ensure BoltJournal implements the RevisionJournal interface.
var _ ports.RevisionJournal = (*BoltJournal)(nil)
