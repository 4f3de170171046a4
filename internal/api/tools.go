package api

import (
	"log/slog"
	"net/http"

	"github.com/novaops/nova/internal/assistant"
)

type toolsHandler struct {
	assistant *assistant.Assistant
	logger    *slog.Logger
}

type toolInfo struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Class        string   `json:"class"`
	Destructive  bool     `json:"destructive,omitempty"`
	Collaborator string   `json:"collaborator"`
	RequiredArgs []string `json:"required_args,omitempty"`
}

func (h *toolsHandler) list(w http.ResponseWriter, r *http.Request) {
	reg := h.assistant.Registry()

	descs := reg.All()
	tools := make([]toolInfo, 0, len(descs))
	for _, d := range descs {
		tools = append(tools, toolInfo{
			Name:         d.Name,
			Description:  d.Description,
			Class:        string(d.Class),
			Destructive:  d.Destructive,
			Collaborator: string(d.Collaborator),
			RequiredArgs: d.RequiredArgs(),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"catalog_version": reg.Version(),
		"tools":           tools,
	}, h.logger)
}
