package main

import (
	"bytes"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/config"
)

// completionServer answers chat completions with a page that counts calls.
func completionServer(t *testing.T) *httptest.Server {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c%d","object":"chat.completion","model":"m","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"{\"html\":\"<p>call %d</p>\"}"}}]}`, n, n)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeConfig(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`app:
  output_dir: %[1]s/out
  upload_dir: %[1]s/uploads
  journal_backend: bolt
  bolt_path: %[1]s/journal.bolt
llm:
  provider: openai
  base_url: %[2]s
  api_key: test-key
log:
  level: error
`, dir, baseURL)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCLI_GenerateModifyHistory(t *testing.T) {
	srv := completionServer(t)
	cfgPath := writeConfig(t, srv.URL)

	out, err := run(t, "--config", cfgPath, "generate", "make", "a", "page")
	require.NoError(t, err)
	assert.Contains(t, out, "revision 1 (structured_json)")
	assert.Contains(t, out, "<p>call 1</p>")

	// A new process sees the journaled session
	out, err = run(t, "--config", cfgPath, "modify", "change it")
	require.NoError(t, err)
	assert.Contains(t, out, "revision 2")

	out, err = run(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 5)
	assert.Contains(t, lines[1], "user: make a page")
	assert.Contains(t, lines[3], "user: change it")

	out, err = run(t, "--config", cfgPath, "sessions")
	require.NoError(t, err)
	assert.Contains(t, out, "default\trevision 2\tturns 5")
}

func TestCLI_ModifyWithoutPage(t *testing.T) {
	srv := completionServer(t)
	cfgPath := writeConfig(t, srv.URL)

	_, err := run(t, "--config", cfgPath, "modify", "change it")
	assert.Error(t, err)
}

func TestCLI_TranscribeRejectsUnsupportedFormat(t *testing.T) {
	srv := completionServer(t)
	cfgPath := writeConfig(t, srv.URL)

	notes := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("hello"), 0o644))

	_, err := run(t, "--config", cfgPath, "transcribe", notes)
	assert.ErrorContains(t, err, "unsupported")
}

func TestNewLogger_Levels(t *testing.T) {
	logger, err := newLogger(config.LogConfig{Level: "warn"})
	require.NoError(t, err)
	assert.Equal(t, zerolog.WarnLevel, logger.GetLevel())

	logger, err = newLogger(config.LogConfig{})
	require.NoError(t, err)
	assert.Equal(t, zerolog.InfoLevel, logger.GetLevel())

	_, err = newLogger(config.LogConfig{Level: "loud"})
	assert.Error(t, err)
}
