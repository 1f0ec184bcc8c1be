package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/crewdeck/crewdeck/internal/apperr"
	"github.com/crewdeck/crewdeck/internal/auth"
	"github.com/crewdeck/crewdeck/internal/hub"
)

// Close codes surfaced to websocket clients. Browsers cannot read HTTP
// error bodies on a ws handshake, so auth failures arrive as close
// frames after the upgrade.
const (
	closeInvalidToken      = 4001
	closeAccessDenied      = 4003
	closeWorkspaceNotFound = 4004
)

const (
	// pingInterval is how often the keepalive ping frame goes out.
	pingInterval = 30 * time.Second
	// readWait is how long the connection may stay silent before we
	// treat it as dead. Clients answer pings, so a healthy connection
	// never gets near this.
	readWait = 90 * time.Second
	// writeWait bounds a single frame write.
	writeWait = 10 * time.Second
)

// WSHandler upgrades workspace connections and bridges them into the
// hub. The credential arrives as a token query parameter and may be
// either a JWT (human) or a raw API key (agent), decided by the key
// prefix.
type WSHandler struct {
	hub      *hub.Hub
	resolver *auth.Resolver
	store    auth.Store
	upgrader websocket.Upgrader
}

func NewWSHandler(h *hub.Hub, resolver *auth.Resolver, store auth.Store) *WSHandler {
	return &WSHandler{
		hub:      h,
		resolver: resolver,
		store:    store,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect cross-origin from the web UI.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *WSHandler) Serve(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}

	workspaceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		closeWith(conn, closeWorkspaceNotFound, "Workspace not found")
		return
	}

	if code, reason := h.authorize(r, workspaceID); code != 0 {
		closeWith(conn, code, reason)
		return
	}

	sub := h.hub.Subscribe(workspaceID, conn)
	defer h.hub.Unsubscribe(workspaceID, sub)

	if err := sub.SendJSON(map[string]string{
		"type":         "connected",
		"workspace_id": workspaceID.String(),
	}); err != nil {
		return
	}

	done := make(chan struct{})
	defer close(done)
	go h.pingLoop(sub, done)

	h.readLoop(conn, sub, workspaceID)
}

// pingLoop emits a keepalive frame on a fixed interval until the read
// loop ends. A failed write means the peer is gone; the read loop will
// notice on its own.
func (h *WSHandler) pingLoop(sub *hub.Subscription, done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := sub.SendJSON(map[string]string{"type": "ping"}); err != nil {
				return
			}
		}
	}
}

// authorize validates the token against the workspace in the URL.
// Returns a non-zero close code on failure.
func (h *WSHandler) authorize(r *http.Request, workspaceID uuid.UUID) (int, string) {
	token := r.URL.Query().Get("token")
	if token == "" {
		return closeInvalidToken, "Invalid token or API key"
	}

	if auth.HasKeyShape(token) {
		// The URL workspace doubles as the selector, so user-level
		// keys resolve against it directly.
		agent, err := h.resolver.ResolveAPIKey(r.Context(), token, workspaceID.String())
		switch {
		case err == nil:
			if agent.WorkspaceID() != workspaceID {
				return closeAccessDenied, "Access denied"
			}
			return 0, ""
		case apperr.CodeOf(err) == apperr.CodeNotFound:
			return closeWorkspaceNotFound, "Workspace not found"
		case apperr.CodeOf(err) == apperr.CodeForbidden:
			return closeAccessDenied, "Access denied"
		default:
			return closeInvalidToken, "Invalid token or API key"
		}
	}

	user, err := h.resolver.ResolveAccessToken(r.Context(), token)
	if err != nil {
		return closeInvalidToken, "Invalid token or API key"
	}
	ws, err := h.store.GetWorkspaceByID(r.Context(), workspaceID)
	if errors.Is(err, auth.ErrNotFound) {
		return closeWorkspaceNotFound, "Workspace not found"
	}
	if err != nil {
		return closeInvalidToken, "Invalid token or API key"
	}
	if ws.OwnerID != user.ID {
		return closeAccessDenied, "Access denied"
	}
	return 0, ""
}

// readLoop drains client frames. A literal "ping" text gets "pong"
// back; everything else is ignored. Any read error (including the
// silence deadline) ends the connection.
func (h *WSHandler) readLoop(conn *websocket.Conn, sub *hub.Subscription, workspaceID uuid.UUID) {
	for {
		conn.SetReadDeadline(time.Now().Add(readWait))
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("websocket read ended", "workspace_id", workspaceID, "error", err)
			}
			return
		}
		if msgType == websocket.TextMessage && string(data) == "ping" {
			if err := sub.Send([]byte("pong")); err != nil {
				return
			}
		}
	}
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	deadline := time.Now().Add(writeWait)
	conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
	conn.Close()
}
