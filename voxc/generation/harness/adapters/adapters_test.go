package adapters

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/db"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
)

func TestLRUCache_BasicOperations(t *testing.T) {
	cache := NewLRUCache(2)

	ctx := context.Background()

	err := cache.Set(ctx, "key1", []byte("value1"), 3600)
	assert.NoError(t, err)

	value, ok := cache.Get(ctx, "key1")
	assert.True(t, ok)
	assert.Equal(t, []byte("value1"), value)

	// Touch key1 so key2 becomes the eviction candidate
	require.NoError(t, cache.Set(ctx, "key2", []byte("value2"), 3600))
	_, _ = cache.Get(ctx, "key1")
	require.NoError(t, cache.Set(ctx, "key3", []byte("value3"), 3600))

	_, ok = cache.Get(ctx, "key2")
	assert.False(t, ok)
	_, ok = cache.Get(ctx, "key1")
	assert.True(t, ok)
	_, ok = cache.Get(ctx, "key3")
	assert.True(t, ok)
	assert.Equal(t, 2, cache.Len())

	require.NoError(t, cache.Delete(ctx, "key1"))
	_, ok = cache.Get(ctx, "key1")
	assert.False(t, ok)
}

func TestLRUCache_Expiry(t *testing.T) {
	cache := NewLRUCache(4)
	now := time.Unix(1_700_000_000, 0)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	require.NoError(t, cache.Set(ctx, "short", []byte("a"), 10))
	require.NoError(t, cache.Set(ctx, "forever", []byte("b"), 0))

	now = now.Add(11 * time.Second)

	_, ok := cache.Get(ctx, "short")
	assert.False(t, ok)
	v, ok := cache.Get(ctx, "forever")
	assert.True(t, ok)
	assert.Equal(t, []byte("b"), v)
}

func TestTokenBucket_BasicRateLimiting(t *testing.T) {
	limiter := NewTokenBucket(2, time.Second)
	now := time.Unix(1_700_000_000, 0)
	limiter.now = func() time.Time { return now }

	ctx := context.Background()

	release1, err := limiter.Acquire(ctx, "test")
	assert.NoError(t, err)
	assert.NotNil(t, release1)

	release2, err := limiter.Acquire(ctx, "test")
	assert.NoError(t, err)
	assert.NotNil(t, release2)

	_, err = limiter.Acquire(ctx, "test")
	assert.ErrorIs(t, err, ErrRateLimitExceeded)
	assert.Contains(t, err.Error(), "rate limit exceeded")

	// Releasing does not hand tokens back
	release1()
	release2()
	_, err = limiter.Acquire(ctx, "test")
	assert.Error(t, err)

	// Other keys have their own bucket
	_, err = limiter.Acquire(ctx, "other")
	assert.NoError(t, err)

	now = now.Add(time.Second)
	release3, err := limiter.Acquire(ctx, "test")
	assert.NoError(t, err)
	release3()
}

func TestTokenBucket_CanceledContext(t *testing.T) {
	limiter := NewTokenBucket(1, time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := limiter.Acquire(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileSlot_WriteReplaceRemove(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "output.html")
	slot := NewFileSlot(path)
	ctx := context.Background()

	require.NoError(t, slot.Write(ctx, []byte("<p>one</p>")))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<p>one</p>", string(data))

	require.NoError(t, slot.Write(ctx, []byte("<p>two</p>")))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<p>two</p>", string(data))

	// No temp files left behind
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	assert.Equal(t, path, slot.Location())

	require.NoError(t, slot.Remove(ctx))
	_, err = os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	// Removing twice is fine
	assert.NoError(t, slot.Remove(ctx))
}

func sampleEntry(rev uint64, firstSeq uint64) ports.JournalEntry {
	at := time.Unix(1_700_000_000, 0).Add(time.Duration(rev) * time.Minute)
	return ports.JournalEntry{
		Revision: ports.Revision{
			Number:    rev,
			Content:   "<p>rev</p>",
			Strategy:  "structured_json",
			CreatedAt: at,
		},
		Turns: []ports.Turn{
			{Role: "user", Content: "make a page", Sequence: firstSeq, CreatedAt: at},
			{Role: "assistant", Content: `{"html":"<p>rev</p>"}`, Sequence: firstSeq + 1, CreatedAt: at},
		},
	}
}

// exerciseJournal runs the same commit/revert/load contract against any backend.
func exerciseJournal(t *testing.T, j ports.RevisionJournal) {
	t.Helper()
	ctx := context.Background()

	rec, err := j.Load(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, rec.Revisions)
	assert.Empty(t, rec.Turns)

	require.NoError(t, j.Commit(ctx, "s1", sampleEntry(1, 2)))
	require.NoError(t, j.Commit(ctx, "s1", sampleEntry(2, 4)))
	require.NoError(t, j.Commit(ctx, "s2", sampleEntry(1, 2)))

	rec, err = j.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.Revisions, 2)
	assert.Equal(t, uint64(1), rec.Revisions[0].Number)
	assert.Equal(t, uint64(2), rec.Revisions[1].Number)
	assert.Equal(t, "structured_json", rec.Revisions[1].Strategy)
	require.Len(t, rec.Turns, 4)
	assert.Equal(t, uint64(2), rec.Turns[0].Sequence)
	assert.Equal(t, "user", rec.Turns[0].Role)
	assert.Equal(t, uint64(5), rec.Turns[3].Sequence)
	assert.Equal(t, "assistant", rec.Turns[3].Role)

	// Duplicate revisions are refused
	assert.Error(t, j.Commit(ctx, "s1", sampleEntry(2, 6)))

	require.NoError(t, j.Revert(ctx, "s1", 2))
	rec, err = j.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.Revisions, 1)
	assert.Len(t, rec.Turns, 2)

	sessions, err := j.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	byID := map[string]ports.SessionSummary{}
	for _, s := range sessions {
		byID[s.ID] = s
	}
	assert.Equal(t, uint64(1), byID["s1"].Revision)
	assert.Equal(t, uint64(1), byID["s2"].Revision)
}

func TestBoltJournal_Contract(t *testing.T) {
	j, err := OpenBoltJournal(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	exerciseJournal(t, j)
}

func TestBoltJournal_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	ctx := context.Background()

	j, err := OpenBoltJournal(path)
	require.NoError(t, err)
	require.NoError(t, j.Commit(ctx, "s1", sampleEntry(1, 2)))
	require.NoError(t, j.Close())

	j, err = OpenBoltJournal(path)
	require.NoError(t, err)
	defer j.Close()

	rec, err := j.Load(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, rec.Revisions, 1)
	assert.Equal(t, "<p>rev</p>", rec.Revisions[0].Content)
}

func TestLibSQLJournal_Contract(t *testing.T) {
	conn, err := db.Open(filepath.Join(t.TempDir(), "voxc.db"), zerolog.Nop())
	if err != nil {
		t.Skipf("embedded libsql unavailable: %v", err)
	}
	defer conn.Close()

	exerciseJournal(t, NewLibSQLJournal(conn))
}

func newChatServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.NotFound(w, r)
			return
		}
		raw, _ := io.ReadAll(r.Body)
		var body map[string]any
		_ = sonic.Unmarshal(raw, &body)
		w.Header().Set("Content-Type", "application/json")
		handler(w, body)
	}))
}

const chatOK = `{"id":"c1","object":"chat.completion","created":1,"model":"test-model",
"choices":[{"index":0,"message":{"role":"assistant","content":"{\"html\":\"<p>hi</p>\"}"},"finish_reason":"stop"}],
"usage":{"prompt_tokens":7,"completion_tokens":3,"total_tokens":10}}`

func TestOpenAIProvider_Complete(t *testing.T) {
	var seen map[string]any
	srv := newChatServer(t, func(w http.ResponseWriter, body map[string]any) {
		seen = body
		_, _ = io.WriteString(w, chatOK)
	})
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	out, err := p.Complete(context.Background(), ports.PromptInput{
		System:   "be html",
		Messages: []ports.PromptMessage{{Role: "user", Content: "a page"}},
	}, ports.Options{Model: "test-model", MaxNewTokens: 64, JSONResponse: true})
	require.NoError(t, err)

	assert.Equal(t, `{"html":"<p>hi</p>"}`, out.Text)
	require.NotNil(t, out.Usage)
	assert.Equal(t, 10, out.Usage.TotalTokens)

	msgs, _ := seen["messages"].([]any)
	require.Len(t, msgs, 2)
	first, _ := msgs[0].(map[string]any)
	assert.Equal(t, "system", first["role"])
	format, _ := seen["response_format"].(map[string]any)
	assert.Equal(t, "json_object", format["type"])
}

func TestOpenAIProvider_Rejected(t *testing.T) {
	srv := newChatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":{"message":"bad prompt","type":"invalid_request_error"}}`)
	})
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	_, err := p.Complete(context.Background(), ports.PromptInput{
		Messages: []ports.PromptMessage{{Role: "user", Content: "x"}},
	}, ports.Options{Model: "m"})
	require.Error(t, err)

	var perr *ports.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusBadRequest, perr.StatusCode)
	assert.True(t, perr.Rejected())
	assert.Equal(t, "openai", perr.Collaborator)
}

func TestOpenAIProvider_EmptyChoices(t *testing.T) {
	srv := newChatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		_, _ = io.WriteString(w, `{"id":"c1","object":"chat.completion","model":"m","choices":[]}`)
	})
	defer srv.Close()

	p := NewOpenAIProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1"})
	_, err := p.Complete(context.Background(), ports.PromptInput{
		Messages: []ports.PromptMessage{{Role: "user", Content: "x"}},
	}, ports.Options{Model: "m"})
	assert.ErrorIs(t, err, ports.ErrEmptyCompletion)
}

func TestOpenAIGoProvider_Complete(t *testing.T) {
	srv := newChatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		_, _ = io.WriteString(w, chatOK)
	})
	defer srv.Close()

	p := NewOpenAIGoProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1/"})
	out, err := p.Complete(context.Background(), ports.PromptInput{
		System:   "be html",
		Messages: []ports.PromptMessage{{Role: "user", Content: "a page"}},
	}, ports.Options{Model: "test-model", MaxNewTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, `{"html":"<p>hi</p>"}`, out.Text)
}

func TestOpenAIGoProvider_Rejected(t *testing.T) {
	srv := newChatServer(t, func(w http.ResponseWriter, _ map[string]any) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"no key","type":"auth"}}`)
	})
	defer srv.Close()

	p := NewOpenAIGoProvider(ProviderConfig{APIKey: "k", BaseURL: srv.URL + "/v1/"})
	_, err := p.Complete(context.Background(), ports.PromptInput{
		Messages: []ports.PromptMessage{{Role: "user", Content: "x"}},
	}, ports.Options{Model: "m"})

	var perr *ports.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusUnauthorized, perr.StatusCode)
	assert.Equal(t, "openai-go", perr.Collaborator)
}
