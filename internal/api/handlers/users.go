package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/crewdeck/crewdeck/internal/apikeys"
	"github.com/crewdeck/crewdeck/internal/principal"
)

// UserKeysHandler manages user-level API keys, valid across every
// workspace the caller owns.
type UserKeysHandler struct {
	keys *apikeys.Service
}

func NewUserKeysHandler(keys *apikeys.Service) *UserKeysHandler {
	return &UserKeysHandler{keys: keys}
}

func (h *UserKeysHandler) Create(w http.ResponseWriter, r *http.Request) {
	user := principal.UserFromContext(r.Context())

	var req apikeys.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	created, err := h.keys.CreateForUser(r.Context(), user.ID, req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *UserKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	user := principal.UserFromContext(r.Context())

	keys, err := h.keys.ListForUser(r.Context(), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"api_keys": keys, "count": len(keys)})
}

func (h *UserKeysHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	user := principal.UserFromContext(r.Context())

	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid API key ID"})
		return
	}

	if err := h.keys.RevokeUserKey(r.Context(), user.ID, keyID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// Regenerate rotates the key secret in place. The old raw key stops
// working immediately; the new one is returned once.
func (h *UserKeysHandler) Regenerate(w http.ResponseWriter, r *http.Request) {
	user := principal.UserFromContext(r.Context())

	keyID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid API key ID"})
		return
	}

	created, err := h.keys.Regenerate(r.Context(), user.ID, keyID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, created)
}
