package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/novaops/nova/internal/assistant"
	"github.com/novaops/nova/internal/session"
)

// maxChatBodyBytes bounds the request body to keep utterances sane.
const maxChatBodyBytes = 64 << 10

type chatHandler struct {
	assistant *assistant.Assistant
	logger    *slog.Logger
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	// Confirm marks the turn as explicit approval for a destructive
	// operation announced in the previous reply.
	Confirm bool `json:"confirm,omitempty"`
}

func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body", h.logger)
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "invalid_session_id", "session_id is required", h.logger)
		return
	}

	resp, err := h.assistant.SubmitTurn(r.Context(), req.SessionID, req.Message, req.Confirm)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp, h.logger)
	case errors.Is(err, session.ErrSessionNotFound):
		writeError(w, http.StatusNotFound, "session_not_found", "session does not exist", h.logger)
	case errors.Is(err, assistant.ErrEmptyUtterance):
		writeError(w, http.StatusBadRequest, "empty_message", "message must not be empty", h.logger)
	default:
		h.logger.Error("submit turn",
			slog.Any("error", err),
			slog.String("session_id", req.SessionID))
		writeError(w, http.StatusInternalServerError, "turn_failed", "could not process the message", h.logger)
	}
}
