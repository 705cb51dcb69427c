package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/audio"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/transcription"
	"github.com/bytedance/sonic"
	"github.com/gorilla/mux"
)

const maxJSONBody = 1 << 20

// ─────────────────────────────────────────────
// DTOs (request/response)
// ─────────────────────────────────────────────

type generateRequest struct {
	Text string `json:"text"`
}

type modifyRequest struct {
	Instruction string `json:"instruction"`
}

type turnResponse struct {
	Message       string `json:"message"`
	SessionID     string `json:"session_id"`
	Transcription string `json:"transcription,omitempty"`
	HTMLContent   string `json:"html_content"`
	Revision      uint64 `json:"revision"`
	Strategy      string `json:"strategy"`
	Warning       string `json:"warning,omitempty"`
	RawCompletion string `json:"raw_completion,omitempty"`
}

type artifactResponse struct {
	SessionID string    `json:"session_id"`
	Revision  uint64    `json:"revision"`
	Strategy  string    `json:"strategy"`
	CreatedAt time.Time `json:"created_at"`
	HTML      string    `json:"html"`
}

type sessionResponse struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Revision  uint64    `json:"revision"`
	Turns     int       `json:"turns"`
}

type turnEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Sequence  uint64    `json:"sequence"`
	CreatedAt time.Time `json:"created_at"`
}

type historyResponse struct {
	SessionID string      `json:"session_id"`
	Revision  uint64      `json:"revision"`
	Turns     []turnEntry `json:"turns"`
}

// ─────────────────────────────────────────────
// Handlers
// ─────────────────────────────────────────────

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	session, err := s.sessionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := session.Generate(r.Context(), req.Text)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.turnResponse("HTML generated successfully", session.ID, res))
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	var req modifyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeError(w, err)
		return
	}

	session, err := s.sessionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	res, err := session.Modify(r.Context(), req.Instruction)
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.turnResponse("HTML modified successfully", session.ID, res))
}

// handleUpload transcribes a recording and generates a page from the transcript.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: no file provided", errBadRequest))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	clip := audio.Clip{Filename: filepath.Base(header.Filename), Data: data}
	if err := s.policy.Check(clip); err != nil {
		s.writeError(w, err)
		return
	}

	session, err := s.sessionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.saveUpload("recording"+clip.Ext(), clip.Data); err != nil {
		s.writeError(w, err)
		return
	}

	normalized, err := audio.Normalize(clip)
	if err != nil {
		s.writeError(w, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	if s.transcriber == nil {
		s.writeError(w, transcription.ErrNotConfigured)
		return
	}
	text, err := s.transcriber.Transcribe(r.Context(), normalized)
	if err != nil {
		s.writeError(w, s.classifyTranscription(err))
		return
	}

	if err := s.saveUpload("transcription.txt", []byte(text)); err != nil {
		s.writeError(w, err)
		return
	}

	res, err := session.Generate(r.Context(), text)
	if err != nil {
		s.writeError(w, err)
		return
	}

	out := s.turnResponse("File uploaded, transcribed, and HTML generated successfully", session.ID, res)
	out.Transcription = text
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleArtifact(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	current, ok := session.Store.Current()
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no artifact yet", Cause: "no_artifact"})
		return
	}

	writeJSON(w, http.StatusOK, toArtifactResponse(session.ID, current))
}

func (s *Server) handleRevisions(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	revs := session.Store.Revisions()
	out := make([]artifactResponse, 0, len(revs))
	for _, a := range revs {
		out = append(out, toArtifactResponse(session.ID, a))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleOutput serves the session's slot file as written by the store.
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessionFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	data, err := os.ReadFile(session.Store.SlotLocation())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		s.writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.registry.Create(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.registry.List()
	out := make([]sessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toSessionResponse(session))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	session, err := s.resolveSession(r, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	resp := historyResponse{SessionID: session.ID}
	if current, ok := session.Store.Current(); ok {
		resp.Revision = current.Revision
	}
	for _, t := range session.Memory.Snapshot() {
		resp.Turns = append(resp.Turns, turnEntry{
			Role:      string(t.Role),
			Content:   t.Content,
			Sequence:  t.Sequence,
			CreatedAt: t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request) {
	session, err := s.resolveSession(r, mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}

	md := TranscriptMarkdown(session.ID, session.Memory.Snapshot())
	if r.URL.Query().Get("format") == "md" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, md)
		return
	}

	page, err := RenderTranscript(session.ID, md)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(page)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("session")
	if id == "" {
		id = r.Header.Get(SessionHeader)
	}
	session, err := s.resolveSession(r, id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var initial *PreviewMessage
	if current, ok := session.Store.Current(); ok {
		initial = &PreviewMessage{
			Type:      "artifact",
			SessionID: session.ID,
			Revision:  current.Revision,
			HTML:      current.Content,
		}
	}

	s.hub.ServeWS(w, r, session.ID, initial)
}

// ─────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────

// sessionFor picks the session named by the X-Session-ID header, or the default one.
func (s *Server) sessionFor(r *http.Request) (*harness.Session, error) {
	return s.resolveSession(r, r.Header.Get(SessionHeader))
}

// resolveSession accepts a unique prefix of an open session; unknown IDs are
// opened, which rehydrates them from the journal.
func (s *Server) resolveSession(r *http.Request, id string) (*harness.Session, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = internal.DefaultSessionID
	}

	session, err := s.registry.Resolve(id)
	if errors.Is(err, harness.ErrSessionNotFound) {
		return s.registry.Open(r.Context(), id)
	}
	return session, err
}

func (s *Server) classifyTranscription(err error) error {
	if errors.Is(err, audio.ErrUnsupportedFormat) || errors.Is(err, transcription.ErrNotConfigured) {
		return err
	}
	return harness.ClassifyProviderError(s.transcriber.Name(), err)
}

func (s *Server) saveUpload(name string, data []byte) error {
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}
	path := filepath.Join(s.uploadDir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to save %s: %w", name, err)
	}
	s.logger.Debug().Str("path", path).Int("bytes", len(data)).Msg("upload saved")
	return nil
}

func (s *Server) turnResponse(message, sessionID string, res *harness.TurnResult) turnResponse {
	out := turnResponse{
		Message:     message,
		SessionID:   sessionID,
		HTMLContent: res.Artifact.Content,
		Revision:    res.Artifact.Revision,
		Strategy:    res.Strategy.String(),
	}
	if res.Warning != nil {
		out.Warning = res.Warning.Error()
	}
	if s.cfg.ExposeRaw {
		out.RawCompletion = res.RawCompletion
	}
	return out
}

func toArtifactResponse(sessionID string, a harness.Artifact) artifactResponse {
	return artifactResponse{
		SessionID: sessionID,
		Revision:  a.Revision,
		Strategy:  a.Strategy.String(),
		CreatedAt: a.CreatedAt,
		HTML:      a.Content,
	}
}

func toSessionResponse(session *harness.Session) sessionResponse {
	out := sessionResponse{
		ID:        session.ID,
		CreatedAt: session.CreatedAt,
		Turns:     session.Memory.Len(),
	}
	if current, ok := session.Store.Current(); ok {
		out.Revision = current.Revision
	}
	return out
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := sonic.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
