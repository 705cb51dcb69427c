package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/ZanzyTHEbar/vox-canvas/voxc/audio"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/generation/harness/adapters"
	"github.com/ZanzyTHEbar/vox-canvas/voxc/transcription"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error        string `json:"error"`
	Cause        string `json:"cause,omitempty"`
	Collaborator string `json:"collaborator,omitempty"`
	Retryable    bool   `json:"retryable"`
}

// statusFor maps domain errors onto HTTP statuses.
func statusFor(err error) (int, errorResponse) {
	resp := errorResponse{}

	var genErr *harness.GenerationError
	var perErr *harness.PersistenceError
	switch {
	case errors.As(err, &genErr):
		resp.Cause = string(genErr.Cause)
		resp.Collaborator = genErr.Collaborator
		resp.Retryable = genErr.Retryable()
		if genErr.Cause == harness.CauseTimeout {
			return http.StatusGatewayTimeout, resp
		}
		return http.StatusBadGateway, resp
	case errors.As(err, &perErr):
		resp.Cause = "persistence_failed"
		resp.Retryable = perErr.Retryable()
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, harness.ErrNoArtifactToModify):
		resp.Cause = "no_artifact_to_modify"
		return http.StatusConflict, resp
	case errors.Is(err, harness.ErrInvalidTurn):
		resp.Cause = "invalid_turn"
		return http.StatusInternalServerError, resp
	case errors.Is(err, adapters.ErrRateLimitExceeded):
		resp.Cause = "rate_limited"
		resp.Retryable = true
		return http.StatusTooManyRequests, resp
	case errors.Is(err, harness.ErrSessionNotFound):
		return http.StatusNotFound, resp
	case errors.Is(err, transcription.ErrNotConfigured):
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, harness.ErrEmptyInput),
		errors.Is(err, harness.ErrAmbiguousSession),
		errors.Is(err, harness.ErrInvalidSessionID),
		errors.Is(err, audio.ErrUnsupportedFormat),
		errors.Is(err, audio.ErrEmptyRecording),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, resp
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, resp
	default:
		return http.StatusInternalServerError, resp
	}
}

// writeError logs the full error and sends a sanitized summary.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status, resp := statusFor(err)
	resp.Error = s.guardrails.SanitizeOutput(err.Error())

	event := s.logger.Warn()
	if status >= http.StatusInternalServerError {
		event = s.logger.Error()
	}
	event.Err(err).Int("status", status).Str("cause", resp.Cause).Msg("request failed")

	writeJSON(w, status, resp)
}
