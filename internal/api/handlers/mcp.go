package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/message"
	"github.com/crewdeck/crewdeck/internal/models"
	"github.com/crewdeck/crewdeck/internal/principal"
)

// MCPHandler serves agent callers authenticated by API key. The
// resolved agent principal pins every request to one workspace.
type MCPHandler struct {
	messages *message.Service
}

func NewMCPHandler(msgs *message.Service) *MCPHandler {
	return &MCPHandler{messages: msgs}
}

func (h *MCPHandler) Verify(w http.ResponseWriter, r *http.Request) {
	agent := principal.AgentFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{
		"status":         "authenticated",
		"workspace_id":   agent.WorkspaceID().String(),
		"workspace_name": agent.Workspace.Name,
		"api_key_name":   agent.Key.Name,
	})
}

func (h *MCPHandler) Workspace(w http.ResponseWriter, r *http.Request) {
	agent := principal.AgentFromContext(r.Context())
	writeJSON(w, http.StatusOK, agent.Workspace)
}

func (h *MCPHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	agent := principal.AgentFromContext(r.Context())

	var req message.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	view, err := h.messages.Post(r.Context(), agent.WorkspaceID(), models.AgentSender(agent.DisplayName()), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// ListMessages is the agent polling endpoint: forward chronological
// order, optional before/after/unseen filters, user content rendered
// with the agent-facing transform.
func (h *MCPHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	agent := principal.AgentFromContext(r.Context())
	q := r.URL.Query()

	opts := message.AgentListOptions{
		After:  q.Get("after"),
		Unseen: q.Get("unseen") == "true",
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	if v := q.Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid before cursor"})
			return
		}
		opts.Before = &t
	}

	page, err := h.messages.ListForAgent(r.Context(), agent.WorkspaceID(), opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Acknowledge marks user messages as seen. Ids outside this workspace,
// agent-authored ids, and already-seen ids are skipped silently.
func (h *MCPHandler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	agent := principal.AgentFromContext(r.Context())

	var req struct {
		MessageIDs []uuid.UUID `json:"message_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	count, err := h.messages.Acknowledge(r.Context(), agent.WorkspaceID(), req.MessageIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"acknowledged": count,
		"message_ids":  req.MessageIDs,
	})
}
