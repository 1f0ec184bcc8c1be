package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/apikeys"
	"github.com/crewdeck/crewdeck/internal/message"
	"github.com/crewdeck/crewdeck/internal/models"
	"github.com/crewdeck/crewdeck/internal/presence"
	"github.com/crewdeck/crewdeck/internal/principal"
	"github.com/crewdeck/crewdeck/internal/workspace"
)

// WorkspaceHandler serves the human web surface: workspace CRUD plus
// the owner-scoped message, key, and agent-status endpoints. Every
// route first resolves the workspace under the caller's ownership.
type WorkspaceHandler struct {
	workspaces *workspace.Service
	messages   *message.Service
	keys       *apikeys.Service
	presence   presence.Repository
}

func NewWorkspaceHandler(ws *workspace.Service, msgs *message.Service, keys *apikeys.Service, pres presence.Repository) *WorkspaceHandler {
	return &WorkspaceHandler{workspaces: ws, messages: msgs, keys: keys, presence: pres}
}

// owned parses the {id} param and loads the workspace if the caller
// owns it. Responds with the error itself when it fails.
func (h *WorkspaceHandler) owned(w http.ResponseWriter, r *http.Request) (*models.Workspace, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid workspace ID"})
		return nil, false
	}
	user := principal.UserFromContext(r.Context())
	ws, err := h.workspaces.GetOwned(r.Context(), id, user.ID)
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return ws, true
}

func (h *WorkspaceHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := principal.UserFromContext(r.Context())

	var req workspace.CreateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}

	ws, err := h.workspaces.Create(r.Context(), user.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ws)
}

func (h *WorkspaceHandler) List(w http.ResponseWriter, r *http.Request) {
	user := principal.UserFromContext(r.Context())

	var archived *bool
	if v := r.URL.Query().Get("archived"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid archived filter"})
			return
		}
		archived = &b
	}

	list, err := h.workspaces.List(r.Context(), user.ID, archived)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"workspaces": list, "count": len(list)})
}

func (h *WorkspaceHandler) Get(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.owned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *WorkspaceHandler) Update(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req workspace.UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user := principal.UserFromContext(r.Context())
	updated, err := h.workspaces.Update(r.Context(), ws.ID, user.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *WorkspaceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.owned(w, r)
	if !ok {
		return
	}

	user := principal.UserFromContext(r.Context())
	if err := h.workspaces.Delete(r.Context(), ws.ID, user.ID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *WorkspaceHandler) CreateKey(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req apikeys.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	created, err := h.keys.CreateForWorkspace(r.Context(), ws.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *WorkspaceHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.owned(w, r)
	if !ok {
		return
	}

	keys, err := h.keys.ListForWorkspace(r.Context(), ws.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"api_keys": keys, "count": len(keys)})
}

func (h *WorkspaceHandler) RevokeKey(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.owned(w, r)
	if !ok {
		return
	}

	keyID, err := uuid.Parse(chi.URLParam(r, "keyID"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid API key ID"})
		return
	}

	if err := h.keys.RevokeWorkspaceKey(r.Context(), ws.ID, keyID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// ListMessages pages backward from the newest message. The before
// cursor is an RFC 3339 timestamp; the page comes back in
// chronological order.
func (h *WorkspaceHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.owned(w, r)
	if !ok {
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	var before *time.Time
	if v := r.URL.Query().Get("before"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid before cursor"})
			return
		}
		before = &t
	}

	page, err := h.messages.ListForHuman(r.Context(), ws.ID, limit, before)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *WorkspaceHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.owned(w, r)
	if !ok {
		return
	}

	var req message.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	user := principal.UserFromContext(r.Context())
	view, err := h.messages.Post(r.Context(), ws.ID, models.HumanSender(user.ID), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// AgentStatus derives connected/idle/offline from the workspace's last
// recorded agent activity.
func (h *WorkspaceHandler) AgentStatus(w http.ResponseWriter, r *http.Request) {
	ws, ok := h.owned(w, r)
	if !ok {
		return
	}

	activity, err := h.presence.Get(r.Context(), ws.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, presence.BuildReport(activity, time.Now()))
}
