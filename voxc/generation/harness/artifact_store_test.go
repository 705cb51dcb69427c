package harness

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/adapters"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
)

func TestArtifactStore_ReplaceIncrementsRevision(t *testing.T) {
	slot := &stubSlot{}
	store := NewArtifactStore("s", slot, nil, zerolog.Nop())
	ctx := context.Background()

	_, ok := store.Current()
	assert.False(t, ok)

	a1, err := store.Replace(ctx, "<p>1</p>", WithStrategy(StrategyFencedCodeBlock))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a1.Revision)
	assert.Equal(t, StrategyFencedCodeBlock, a1.Strategy)

	a2, err := store.Replace(ctx, "<p>2</p>")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), a2.Revision)
	assert.Equal(t, StrategyRawFallback, a2.Strategy)

	cur, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, a2, cur)

	revs := store.Revisions()
	require.Len(t, revs, 2)
	assert.Equal(t, "<p>1</p>", revs[0].Content)

	content, _ := slot.Content()
	assert.Equal(t, "<p>2</p>", content)
	assert.Equal(t, "mem://output.html", store.SlotLocation())
}

func TestArtifactStore_SlotFailureCommitsNothing(t *testing.T) {
	slot := &stubSlot{}
	journal := &stubJournal{}
	store := NewArtifactStore("s", slot, journal, zerolog.Nop())
	ctx := context.Background()

	_, err := store.Replace(ctx, "<p>1</p>")
	require.NoError(t, err)

	slot.writeErr = errors.New("read-only file system")
	_, err = store.Replace(ctx, "<p>2</p>")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistenceFailed)

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "slot_write", perr.Op)

	cur, _ := store.Current()
	assert.Equal(t, uint64(1), cur.Revision)
	rec, _ := journal.Load(ctx, "s")
	assert.Len(t, rec.Revisions, 1)
}

func TestArtifactStore_JournalFailureRestoresSlot(t *testing.T) {
	slot := &stubSlot{}
	journal := &stubJournal{commitErr: errors.New("database is locked")}
	store := NewArtifactStore("s", slot, journal, zerolog.Nop())

	_, err := store.Replace(context.Background(), "<p>1</p>")

	var perr *PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "journal_commit", perr.Op)

	_, ok := store.Current()
	assert.False(t, ok)
	_, exists := slot.Content()
	assert.False(t, exists)
}

func TestArtifactStore_JournalsTurnsWithRevision(t *testing.T) {
	journal := &stubJournal{}
	store := NewArtifactStore("s", &stubSlot{}, journal, zerolog.Nop())

	turns := []DialogueTurn{
		{Role: RoleUser, Content: "q", Sequence: 2},
		{Role: RoleAssistant, Content: "a", Sequence: 3},
	}
	_, err := store.Replace(context.Background(), "<p>1</p>", WithStrategy(StrategyStructuredJSON), WithTurns(turns...))
	require.NoError(t, err)

	rec, _ := journal.Load(context.Background(), "s")
	require.Len(t, rec.Revisions, 1)
	assert.Equal(t, "structured_json", rec.Revisions[0].Strategy)
	require.Len(t, rec.Turns, 2)
	assert.Equal(t, "assistant", rec.Turns[1].Role)
	assert.Equal(t, uint64(3), rec.Turns[1].Sequence)
}

func TestArtifactStore_Restore(t *testing.T) {
	slot := &stubSlot{}
	store := NewArtifactStore("s", slot, nil, zerolog.Nop())
	ctx := context.Background()

	require.NoError(t, store.Restore(ctx, nil))
	_, ok := store.Current()
	assert.False(t, ok)

	require.NoError(t, store.Restore(ctx, []Artifact{
		{Content: "<p>1</p>", Revision: 1},
		{Content: "<p>2</p>", Revision: 2},
	}))

	cur, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(2), cur.Revision)
	content, _ := slot.Content()
	assert.Equal(t, "<p>2</p>", content)

	next, err := store.Replace(ctx, "<p>3</p>")
	require.NoError(t, err)
	assert.Equal(t, uint64(3), next.Revision)
	assert.Len(t, store.Revisions(), 3)
}

func TestRequestSerializer_Exclusive(t *testing.T) {
	s := NewRequestSerializer()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := WithExclusiveTurn(ctx, s, func(context.Context) (struct{}, error) {
				n := atomic.AddInt32(&active, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&active, -1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive))
}

func TestRequestSerializer_CanceledWhileWaiting(t *testing.T) {
	s := NewRequestSerializer()

	release, err := s.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	called := false
	_, err = WithExclusiveTurn(ctx, s, func(context.Context) (int, error) {
		called = true
		return 0, nil
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)

	release()
	release2, err := s.Acquire(context.Background())
	require.NoError(t, err)
	release2()
}

func TestHistoryWindow_Apply(t *testing.T) {
	history := []DialogueTurn{
		{Role: RoleUser, Content: "aaaa"},
		{Role: RoleAssistant, Content: "bbbb"},
		{Role: RoleUser, Content: "cccc"},
		{Role: RoleAssistant, Content: "dddd"},
	}

	unbounded := NewHistoryWindow(Budget{}, nil)
	assert.Len(t, unbounded.Apply(history, "new"), 4)

	// Cutting at three turns would start on an assistant turn; it is skipped
	byTurns := NewHistoryWindow(Budget{MaxTurns: 3}, nil)
	out := byTurns.Apply(history, "new")
	require.Len(t, out, 2)
	assert.Equal(t, "cccc", out[0].Content)

	// One token per character: input 3 + history 16 > 12
	byTokens := NewHistoryWindow(Budget{MaxContextTokens: 12}, func(s string) int { return len(s) })
	out = byTokens.Apply(history, "new")
	require.Len(t, out, 2)
	assert.Equal(t, RoleUser, out[0].Role)

	tiny := NewHistoryWindow(Budget{MaxContextTokens: 1}, func(s string) int { return len(s) })
	assert.Empty(t, tiny.Apply(history, "new"))

	// The window works on a copy
	assert.Len(t, history, 4)
}

func TestPromptBuilder_Build(t *testing.T) {
	b := NewPromptBuilder()

	in := b.Build("  system\r\n", CompletionRequest{
		History: []DialogueTurn{
			{Role: RoleSystem, Content: "ignored"},
			{Role: RoleUser, Content: " q\r\n"},
			{Role: RoleAssistant, Content: "a"},
		},
		NewInput: "next",
		Mode:     ModeGenerate,
	}, map[string]string{"session": "s"})

	// Contents reach the provider exactly as memory recorded them
	assert.Equal(t, "  system\r\n", in.System)
	assert.Equal(t, []ports.PromptMessage{
		{Role: "user", Content: " q\r\n"},
		{Role: "assistant", Content: "a"},
		{Role: "user", Content: "next"},
	}, in.Messages)
	assert.Equal(t, "generate", in.Meta["mode"])
	assert.Equal(t, "s", in.Meta["session"])
}

func TestPromptBuilder_ModifyInput(t *testing.T) {
	b := NewPromptBuilder()
	prompt := b.ModifyInput("<p>old</p>", "  make it bold ")

	assert.True(t, strings.HasPrefix(prompt, "Here's the existing HTML: ```html\n<p>old</p>\n```"))
	assert.True(t, strings.HasSuffix(prompt, "instruction: make it bold"))
}

func TestGuardrails_SanitizeOutput(t *testing.T) {
	g, err := NewGuardrails(0, `internal-\d+`)
	require.NoError(t, err)

	out := g.SanitizeOutput("key sk-abcdefghijkl and api_key=xyz host internal-42")
	assert.NotContains(t, out, "sk-abcdefghijkl")
	assert.NotContains(t, out, "xyz")
	assert.NotContains(t, out, "internal-42")
	assert.Contains(t, out, "[REDACTED]")

	long := g.SanitizeOutput(strings.Repeat("a", 2000))
	assert.LessOrEqual(t, len(long), maxSanitizedLength+len("…"))

	_, err = NewGuardrails(0, "(")
	assert.Error(t, err)
}

func TestGuardrails_ValidateOutputSize(t *testing.T) {
	g, err := NewGuardrails(10)
	require.NoError(t, err)
	assert.NoError(t, g.ValidateOutputSize("short"))
	assert.Error(t, g.ValidateOutputSize("this is far too long"))

	unlimited := DefaultGuardrails(0)
	assert.NoError(t, unlimited.ValidateOutputSize(strings.Repeat("x", 1<<16)))
}

func TestGenerationEngine_DefaultGuardrailsRedact(t *testing.T) {
	engine := NewGenerationEngine(EngineDeps{Provider: &StubProvider{}, Logger: zerolog.Nop()})
	require.NotNil(t, engine.guardrails)
	assert.NotContains(t, engine.guardrails.SanitizeOutput("password=hunter2"), "hunter2")
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

var _ net.Error = timeoutErr{}

func TestClassifyProviderError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		cause        FailureCause
		collaborator string
	}{
		{"deadline", fmt.Errorf("post: %w", context.DeadlineExceeded), CauseTimeout, "llm"},
		{"net timeout", &net.OpError{Op: "dial", Err: timeoutErr{}}, CauseTimeout, "llm"},
		{"empty", ports.ErrEmptyCompletion, CauseRejected, "llm"},
		{"4xx", &ports.ProviderError{Collaborator: "groq", StatusCode: 429}, CauseRejected, "groq"},
		{"5xx", &ports.ProviderError{Collaborator: "groq", StatusCode: 502}, CauseTransport, "groq"},
		{"canceled", context.Canceled, CauseTransport, "llm"},
		{"other", errors.New("connection refused"), CauseTransport, "llm"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyProviderError("llm", tt.err)
			assert.Equal(t, tt.cause, got.Cause)
			assert.Equal(t, tt.collaborator, got.Collaborator)
			assert.ErrorIs(t, got, ErrGenerationFailed)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	already := &GenerationError{Cause: CauseTimeout, Collaborator: "x", Err: errors.New("slow")}
	assert.Same(t, already, ClassifyProviderError("llm", fmt.Errorf("wrapped: %w", already)))
}

// cancelingJournal fails the way a disconnected client does: the request
// context is canceled and the commit reports it.
type cancelingJournal struct {
	*stubJournal
	cancel context.CancelFunc
	fail   bool
}

func (j *cancelingJournal) Commit(ctx context.Context, sessionID string, entry ports.JournalEntry) error {
	if j.fail {
		j.cancel()
		return ctx.Err()
	}
	return j.stubJournal.Commit(ctx, sessionID, entry)
}

func TestArtifactStore_CanceledCommitRestoresFileSlot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.html")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	journal := &cancelingJournal{stubJournal: &stubJournal{}, cancel: cancel}
	store := NewArtifactStore("s", adapters.NewFileSlot(path), journal, zerolog.Nop())

	_, err := store.Replace(ctx, "<p>1</p>")
	require.NoError(t, err)

	journal.fail = true
	_, err = store.Replace(ctx, "<p>2</p>")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrPersistenceFailed)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<p>1</p>", string(data))

	cur, ok := store.Current()
	require.True(t, ok)
	assert.Equal(t, uint64(1), cur.Revision)
}

func TestArtifactStore_RollbackWithCanceledContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "output.html")
	journal := &stubJournal{}
	store := NewArtifactStore("s", adapters.NewFileSlot(path), journal, zerolog.Nop())

	_, err := store.Replace(context.Background(), "<p>1</p>")
	require.NoError(t, err)
	a2, err := store.Replace(context.Background(), "<p>2</p>")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, store.rollback(ctx, a2))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<p>1</p>", string(data))
	assert.Equal(t, []uint64{2}, journal.reverted)
}
