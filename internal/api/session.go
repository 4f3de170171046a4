package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/novaops/nova/internal/assistant"
	"github.com/novaops/nova/internal/session"
)

type sessionHandler struct {
	assistant *assistant.Assistant
	logger    *slog.Logger
}

func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	sess, err := h.assistant.CreateSession(r.Context())
	if err != nil {
		h.logger.Error("create session", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "session_create_failed", "could not create session", h.logger)
		return
	}
	writeJSON(w, http.StatusCreated, sess, h.logger)
}

func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.assistant.Sessions(r.Context())
	if err != nil {
		h.logger.Error("list sessions", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "session_list_failed", "could not list sessions", h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions}, h.logger)
}

func (h *sessionHandler) get(w http.ResponseWriter, r *http.Request) {
	// metadata only; the transcript lives under /turns
	turns, err := h.assistant.History(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":         r.PathValue("id"),
		"turn_count": len(turns),
	}, h.logger)
}

func (h *sessionHandler) turns(w http.ResponseWriter, r *http.Request) {
	turns, err := h.assistant.History(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeSessionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": turns}, h.logger)
}

func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.assistant.DeleteSession(r.Context(), r.PathValue("id")); err != nil {
		h.writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *sessionHandler) writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
	case errors.Is(err, session.ErrEmptySessionID):
		writeError(w, http.StatusBadRequest, "invalid_session_id", "session id is required", h.logger)
	default:
		h.logger.Error("session operation", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "session_error", "session operation failed", h.logger)
	}
}
