//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/db"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeLibSQL checks the embedded driver and the revision journal end to end.
func RunSmokeLibSQL() {
	fmt.Println("Smoke test: LibSQL revision journal")
	tmp := "./smoke.db"
	defer os.Remove(tmp)

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	dbconn, err := db.Open(tmp, logger)
	must(err, "open and migrate")
	defer dbconn.Close()

	// Basic
	var v int
	err = dbconn.QueryRow("SELECT 1").Scan(&v)
	must(err, "basic SELECT")
	if v != 1 {
		log.Fatalf("basic SELECT returned %v", v)
	}
	fmt.Println("OK: basic SQL")

	// JSON1
	var jsonRes string
	err = dbconn.QueryRow("SELECT json_extract('{\"html\":\"<p>x</p>\"}', '$.html')").Scan(&jsonRes)
	must(err, "JSON1 query")
	if jsonRes != "<p>x</p>" {
		log.Fatalf("JSON1 returned unexpected: %v", jsonRes)
	}
	fmt.Println("OK: JSON1")

	ctx := context.Background()
	journal := adapters.NewLibSQLJournal(dbconn)
	now := time.Now().UTC()

	for rev := uint64(1); rev <= 2; rev++ {
		entry := ports.JournalEntry{
			Revision: ports.Revision{Number: rev, Content: fmt.Sprintf("<p>%d</p>", rev), Strategy: "structured_json", CreatedAt: now},
			Turns: []ports.Turn{
				{Role: "user", Content: "request", Sequence: rev*2 - 1, CreatedAt: now},
				{Role: "assistant", Content: "reply", Sequence: rev * 2, CreatedAt: now},
			},
		}
		must(journal.Commit(ctx, "smoke", entry), "journal commit")
	}
	fmt.Println("OK: journal commit")

	if err := journal.Commit(ctx, "smoke", ports.JournalEntry{Revision: ports.Revision{Number: 2}}); err == nil {
		log.Fatalf("duplicate revision was accepted")
	}
	fmt.Println("OK: duplicate revision refused")

	must(journal.Revert(ctx, "smoke", 2), "journal revert")
	rec, err := journal.Load(ctx, "smoke")
	must(err, "journal load")
	if len(rec.Revisions) != 1 || len(rec.Turns) != 2 {
		log.Fatalf("after revert: %d revisions, %d turns", len(rec.Revisions), len(rec.Turns))
	}
	fmt.Println("OK: journal revert")

	sessions, err := journal.Sessions(ctx)
	must(err, "journal sessions")
	if len(sessions) != 1 || sessions[0].Revision != 1 {
		log.Fatalf("unexpected sessions: %+v", sessions)
	}
	fmt.Println("OK: journal sessions")

	fmt.Println("Smoke checks completed.")
}
