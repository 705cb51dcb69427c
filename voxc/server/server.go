// Package server exposes sessions over HTTP: text and voice turns, artifact
// reads, session history and a live preview websocket.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	internal "github.com/ZanzyTHEbar/vox-canvas/voxc"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/audio"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/config"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness"
	ports "github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/ports"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/transcription"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// SessionHeader selects the session a request operates on.
const SessionHeader = "X-Session-ID"

// Deps are the collaborators of the HTTP server.
type Deps struct {
	Registry    *harness.SessionRegistry
	Transcriber transcription.Transcriber
	Limiter     ports.RateLimiter
	Guardrails  *harness.Guardrails
	Config      config.ServerConfig
	UploadDir   string
	Logger      zerolog.Logger
}

// Server routes HTTP requests onto sessions.
type Server struct {
	registry    *harness.SessionRegistry
	transcriber transcription.Transcriber
	limiter     ports.RateLimiter
	guardrails  *harness.Guardrails
	policy      *audio.Policy
	hub         *PreviewHub
	cfg         config.ServerConfig
	uploadDir   string
	logger      zerolog.Logger
}

func New(deps Deps) *Server {
	if deps.Guardrails == nil {
		deps.Guardrails = harness.DefaultGuardrails(0)
	}
	if len(deps.Config.AllowedExtensions) == 0 {
		deps.Config.AllowedExtensions = internal.DefaultAllowedExtensions
	}
	if deps.Config.MaxUploadBytes <= 0 {
		deps.Config.MaxUploadBytes = 25 << 20
	}
	if deps.UploadDir == "" {
		deps.UploadDir = internal.DefaultUploadDir
	}

	logger := deps.Logger.With().Str("component", "server").Logger()
	s := &Server{
		registry:    deps.Registry,
		transcriber: deps.Transcriber,
		limiter:     deps.Limiter,
		guardrails:  deps.Guardrails,
		policy:      audio.NewPolicy(deps.Config.AllowedExtensions),
		hub:         NewPreviewHub(deps.Config.AllowedOrigins, logger),
		cfg:         deps.Config,
		uploadDir:   deps.UploadDir,
		logger:      logger,
	}

	deps.Registry.OnCommit(func(sessionID string, a harness.Artifact) {
		s.hub.Broadcast(sessionID, PreviewMessage{
			Type:      "artifact",
			SessionID: sessionID,
			Revision:  a.Revision,
			HTML:      a.Content,
		})
	})

	return s
}

// Hub returns the preview hub so other producers (the slot watcher) can publish.
func (s *Server) Hub() *PreviewHub { return s.hub }

// Handler builds the router with its middleware chain.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/output.html", s.handleOutput).Methods(http.MethodGet)
	r.HandleFunc("/ws/preview", s.handlePreview).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/artifact", s.handleArtifact).Methods(http.MethodGet)
	api.HandleFunc("/artifact/revisions", s.handleRevisions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleCreateSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{id}/transcript", s.handleTranscript).Methods(http.MethodGet)

	turns := api.NewRoute().Subrouter()
	turns.Use(s.withRateLimit)
	turns.HandleFunc("/upload", s.handleUpload).Methods(http.MethodPost)
	turns.HandleFunc("/generate", s.handleGenerate).Methods(http.MethodPost)
	turns.HandleFunc("/modify", s.handleModify).Methods(http.MethodPost)

	// Preflight requests are answered by withCORS before routing.
	return chainMiddlewares(r,
		withLogging(s.logger),
		withCORS(s.cfg.AllowedOrigins),
	)
}

// ListenAndServe serves until ctx is canceled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info().Msg("http server stopped")
	return nil
}
