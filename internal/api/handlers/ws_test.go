package handlers

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/crewdeck/crewdeck/internal/auth"
	"github.com/crewdeck/crewdeck/internal/hub"
	"github.com/crewdeck/crewdeck/internal/models"
)

const wsTestSecret = "ws-test-secret"

// wsStore is an in-memory auth.Store backing the websocket fixture.
type wsStore struct {
	users      map[uuid.UUID]*models.User
	keysByHash map[string]*models.APIKey
	workspaces map[uuid.UUID]*models.Workspace
}

func newWSStore() *wsStore {
	return &wsStore{
		users:      make(map[uuid.UUID]*models.User),
		keysByHash: make(map[string]*models.APIKey),
		workspaces: make(map[uuid.UUID]*models.Workspace),
	}
}

func (s *wsStore) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, auth.ErrNotFound
}

func (s *wsStore) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *wsStore) CreateUser(_ context.Context, email, name string) (*models.User, error) {
	u := &models.User{ID: uuid.New(), Email: email, Name: name}
	s.users[u.ID] = u
	return u, nil
}

func (s *wsStore) GetAPIKeyByHash(_ context.Context, hash string) (*models.APIKey, error) {
	if k, ok := s.keysByHash[hash]; ok {
		return k, nil
	}
	return nil, auth.ErrNotFound
}

func (s *wsStore) GetWorkspaceByID(_ context.Context, id uuid.UUID) (*models.Workspace, error) {
	if w, ok := s.workspaces[id]; ok {
		return w, nil
	}
	return nil, auth.ErrNotFound
}

// wsFixture wires a real hub and resolver behind an httptest server so
// tests dial the endpoint with gorilla's client.
type wsFixture struct {
	srv         *httptest.Server
	hub         *hub.Hub
	store       *wsStore
	owner       *models.User
	workspaceID uuid.UUID
	rawKey      string
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	store := newWSStore()
	owner := &models.User{ID: uuid.New(), Email: "owner@example.com", Name: "Owner"}
	store.users[owner.ID] = owner

	workspaceID := uuid.New()
	store.workspaces[workspaceID] = &models.Workspace{
		ID:      workspaceID,
		Name:    "Build",
		OwnerID: owner.ID,
	}

	raw, hash := auth.GenerateAPIKey()
	store.keysByHash[hash] = &models.APIKey{
		ID:          uuid.New(),
		WorkspaceID: &workspaceID,
		Name:        "builder",
		KeyHash:     hash,
	}

	h := hub.New()
	resolver := auth.NewResolver(store, wsTestSecret, nil)
	handler := NewWSHandler(h, resolver, store)

	r := chi.NewRouter()
	r.Get("/api/v1/ws/workspaces/{id}", handler.Serve)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &wsFixture{
		srv:         srv,
		hub:         h,
		store:       store,
		owner:       owner,
		workspaceID: workspaceID,
		rawKey:      raw,
	}
}

func (f *wsFixture) url(workspaceID, token string) string {
	return "ws" + strings.TrimPrefix(f.srv.URL, "http") +
		"/api/v1/ws/workspaces/" + workspaceID + "?token=" + token
}

func dialExpectClose(t *testing.T, url string) int {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	ce, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("read error = %v, want close frame", err)
	}
	return ce.Code
}

func TestServeConnectedFrameAndLiveness(t *testing.T) {
	f := newWSFixture(t)

	conn, _, err := websocket.DefaultDialer.Dial(f.url(f.workspaceID.String(), f.rawKey), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var frame map[string]string
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read connected frame: %v", err)
	}
	if frame["type"] != "connected" {
		t.Errorf("first frame type = %q, want connected", frame["type"])
	}
	if frame["workspace_id"] != f.workspaceID.String() {
		t.Errorf("workspace_id = %q, want %q", frame["workspace_id"], f.workspaceID)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("ping")); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read pong: %v", err)
	}
	if string(data) != "pong" {
		t.Errorf("liveness reply = %q, want pong", data)
	}

	// A broadcast into the workspace reaches the live socket.
	f.hub.Broadcast(f.workspaceID, map[string]string{"type": "new_message"})
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("read broadcast frame: %v", err)
	}
	if frame["type"] != "new_message" {
		t.Errorf("broadcast frame type = %q, want new_message", frame["type"])
	}
}

func TestServeClosesWithInvalidCredential(t *testing.T) {
	f := newWSFixture(t)

	t.Run("missing token", func(t *testing.T) {
		if code := dialExpectClose(t, f.url(f.workspaceID.String(), "")); code != 4001 {
			t.Errorf("close code = %d, want 4001", code)
		}
	})

	t.Run("unknown api key", func(t *testing.T) {
		unknown, _ := auth.GenerateAPIKey()
		if code := dialExpectClose(t, f.url(f.workspaceID.String(), unknown)); code != 4001 {
			t.Errorf("close code = %d, want 4001", code)
		}
	})

	t.Run("garbage bearer token", func(t *testing.T) {
		if code := dialExpectClose(t, f.url(f.workspaceID.String(), "not-a-jwt")); code != 4001 {
			t.Errorf("close code = %d, want 4001", code)
		}
	})
}

func TestServeClosesWithWorkspaceNotFound(t *testing.T) {
	f := newWSFixture(t)

	token, err := auth.CreateAccessToken([]byte(wsTestSecret), f.owner.ID)
	if err != nil {
		t.Fatal(err)
	}
	if code := dialExpectClose(t, f.url(uuid.NewString(), token)); code != 4004 {
		t.Errorf("close code = %d, want 4004", code)
	}
}

func TestServeClosesWithAccessDenied(t *testing.T) {
	f := newWSFixture(t)

	t.Run("non-owner token", func(t *testing.T) {
		other := &models.User{ID: uuid.New(), Email: "other@example.com", Name: "Other"}
		f.store.users[other.ID] = other

		token, err := auth.CreateAccessToken([]byte(wsTestSecret), other.ID)
		if err != nil {
			t.Fatal(err)
		}
		if code := dialExpectClose(t, f.url(f.workspaceID.String(), token)); code != 4003 {
			t.Errorf("close code = %d, want 4003", code)
		}
	})

	t.Run("key bound to another workspace", func(t *testing.T) {
		otherWS := uuid.New()
		f.store.workspaces[otherWS] = &models.Workspace{
			ID:      otherWS,
			Name:    "Other",
			OwnerID: f.owner.ID,
		}
		if code := dialExpectClose(t, f.url(otherWS.String(), f.rawKey)); code != 4003 {
			t.Errorf("close code = %d, want 4003", code)
		}
	})
}
