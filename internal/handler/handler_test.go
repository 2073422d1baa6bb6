package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"notes-backend/internal/domain"
	"notes-backend/internal/middleware"
	"notes-backend/internal/repository"
	"notes-backend/internal/service"
	"notes-backend/internal/websocket"
	"notes-backend/pkg/jwt"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Message string          `json:"message"`
}

type testEnv struct {
	router    http.Handler
	wsManager *websocket.Manager
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := zap.NewNop()

	tokens, err := jwt.NewManager(jwt.Options{
		Issuer:   "notes-backend",
		Audience: "notes-clients",
		Secret:   "0123456789abcdef0123456789abcdef",
		Lifetime: time.Hour,
	})
	require.NoError(t, err)

	userRepo := repository.NewMemoryUserRepository()
	noteRepo := repository.NewMemoryNoteRepository()

	wsManager := websocket.NewManager(websocket.Options{
		MaxConnPerUser: 2,
		WriteWait:      time.Second,
		PongWait:       time.Minute,
		PingPeriod:     30 * time.Second,
	}, logger)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go wsManager.Run(ctx)

	syncService := service.NewSyncService(noteRepo, wsManager, logger)
	wsManager.SetMessageHandler(syncService)

	identity := service.NewIdentityService(userRepo)
	gate := middleware.NewGate(tokens, logger)

	router := NewRouter(Handlers{
		Auth:      NewAuthHandler(service.NewAuthService(identity, tokens), logger),
		Users:     NewUserHandler(service.NewUserService(userRepo), logger),
		Notes:     NewNoteHandler(service.NewNoteService(noteRepo, syncService), logger),
		Sync:      NewSyncHandler(syncService, logger),
		WebSocket: NewWebSocketHandler(wsManager, gate, logger),
	}, gate, middleware.CORSOptions{
		AllowedOrigins: "*",
		AllowedMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowedHeaders: "Content-Type,Authorization",
	}, logger)

	return &testEnv{router: router, wsManager: wsManager}
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

func (e *testEnv) signup(t *testing.T, username, password string) string {
	t.Helper()
	rec, env := e.do(t, http.MethodPost, "/api/auth/signup", "",
		`{"username":"`+username+`","password":"`+password+`"}`)
	require.Equal(t, http.StatusOK, rec.Code, env.Error)

	var auth domain.AuthResponse
	require.NoError(t, json.Unmarshal(env.Data, &auth))
	return auth.Token
}

func (e *testEnv) createNote(t *testing.T, token, title, content string) domain.NoteResponse {
	t.Helper()
	body, err := json.Marshal(domain.CreateNoteRequest{Title: title, Content: content})
	require.NoError(t, err)

	rec, env := e.do(t, http.MethodPost, "/api/notes", token, string(body))
	require.Equal(t, http.StatusCreated, rec.Code, env.Error)

	var note domain.NoteResponse
	require.NoError(t, json.Unmarshal(env.Data, &note))
	return note
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Healthy", body.Message)

	rec, _ = env.do(t, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthHandler_Signup(t *testing.T) {
	env := newTestEnv(t)

	rec, body := env.do(t, http.MethodPost, "/api/auth/signup", "", `{"username":"alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var auth domain.AuthResponse
	require.NoError(t, json.Unmarshal(body.Data, &auth))
	assert.NotEmpty(t, auth.Token)
	assert.Equal(t, "Bearer", auth.TokenType)
	assert.WithinDuration(t, time.Now().Add(time.Hour), auth.ExpiresAtUTC, 5*time.Second)

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "duplicate username", body: `{"username":"alice","password":"secret2"}`, wantStatus: http.StatusConflict, wantError: "username exists"},
		{name: "duplicate username other case", body: `{"username":"ALICE","password":"secret2"}`, wantStatus: http.StatusConflict, wantError: "username exists"},
		{name: "missing password", body: `{"username":"bob"}`, wantStatus: http.StatusBadRequest, wantError: "password is required"},
		{name: "short password", body: `{"username":"bob","password":"12345"}`, wantStatus: http.StatusBadRequest, wantError: "password must be at least 6 characters"},
		{name: "long username", body: `{"username":"` + strings.Repeat("b", 101) + `","password":"secret1"}`, wantStatus: http.StatusBadRequest, wantError: "username must be at most 100 characters"},
		{name: "blank username", body: `{"username":"   ","password":"secret1"}`, wantStatus: http.StatusBadRequest},
		{name: "malformed json", body: `{"username":`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, http.MethodPost, "/api/auth/signup", "", tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.False(t, body.Success)
			if tt.wantError != "" {
				assert.Equal(t, tt.wantError, body.Error)
			}
		})
	}
}

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice", "secret1")

	rec, body := env.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"Alice","password":"secret1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var auth domain.AuthResponse
	require.NoError(t, json.Unmarshal(body.Data, &auth))
	assert.NotEmpty(t, auth.Token)

	wrongRec, wrongBody := env.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"alice","password":"secret2"}`)
	unknownRec, unknownBody := env.do(t, http.MethodPost, "/api/auth/login", "", `{"username":"bob","password":"secret1"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongRec.Code)
	assert.Equal(t, http.StatusUnauthorized, unknownRec.Code)
	assert.Equal(t, wrongBody, unknownBody)
}

func TestNoteHandler_RequiresToken(t *testing.T) {
	env := newTestEnv(t)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/api/notes"},
		{http.MethodPost, "/api/notes"},
		{http.MethodGet, "/api/notes/4b0e1d9e-8a43-4f7a-9f4e-3a0c51e0c3a1"},
		{http.MethodPut, "/api/notes/4b0e1d9e-8a43-4f7a-9f4e-3a0c51e0c3a1"},
		{http.MethodDelete, "/api/notes/4b0e1d9e-8a43-4f7a-9f4e-3a0c51e0c3a1"},
		{http.MethodGet, "/api/users/me"},
		{http.MethodGet, "/api/sync/changes"},
	} {
		rec, body := env.do(t, tc.method, tc.path, "not-a-token", `{"title":"t","content":"c"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, tc.method+" "+tc.path)
		assert.Equal(t, "unauthorized", body.Error)
	}
}

func TestWebSocketHandler_RejectionMatchesGate(t *testing.T) {
	env := newTestEnv(t)

	gateRec, _ := env.do(t, http.MethodGet, "/api/notes", "not-a-token", "")
	wsRec, _ := env.do(t, http.MethodGet, "/ws?token=not-a-token", "", "")

	assert.Equal(t, http.StatusUnauthorized, wsRec.Code)
	assert.Equal(t, gateRec.Body.String(), wsRec.Body.String())
}

func TestNoteHandler_Lifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice", "secret1")

	created := env.createNote(t, token, "T", "C")
	assert.Equal(t, created.CreatedAtUTC, created.UpdatedAtUTC)

	rec, _ := env.do(t, http.MethodPost, "/api/notes", token, `{"title":"Location","content":"x"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Location"), "/api/notes/"))

	rec, body := env.do(t, http.MethodGet, "/api/notes/"+created.ID, token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.NoteResponse
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, created.ID, got.ID)

	rec, body = env.do(t, http.MethodPut, "/api/notes/"+created.ID, token, `{"title":"T2","content":"C2"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var updated domain.NoteResponse
	require.NoError(t, json.Unmarshal(body.Data, &updated))
	assert.Equal(t, "T2", updated.Title)
	assert.True(t, updated.UpdatedAtUTC.After(updated.CreatedAtUTC))

	rec, body = env.do(t, http.MethodGet, "/api/notes", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.NoteResponse
	require.NoError(t, json.Unmarshal(body.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, created.ID, list[0].ID)

	rec, _ = env.do(t, http.MethodDelete, "/api/notes/"+created.ID, token, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())

	rec, body = env.do(t, http.MethodDelete, "/api/notes/"+created.ID, token, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "note not found", body.Error)
}

func TestNoteHandler_OwnershipIsolation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice", "secret1")
	bob := env.signup(t, "bob", "secret1")

	note := env.createNote(t, alice, "private", "shh")

	for _, tc := range []struct{ method, body string }{
		{http.MethodGet, ""},
		{http.MethodPut, `{"title":"pwned","content":"pwned"}`},
		{http.MethodDelete, ""},
	} {
		rec, body := env.do(t, tc.method, "/api/notes/"+note.ID, bob, tc.body)
		assert.Equal(t, http.StatusNotFound, rec.Code, tc.method)
		assert.Equal(t, "note not found", body.Error)
	}

	rec, body := env.do(t, http.MethodGet, "/api/notes", bob, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, string(body.Data))

	rec, body = env.do(t, http.MethodGet, "/api/notes/"+note.ID, alice, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got domain.NoteResponse
	require.NoError(t, json.Unmarshal(body.Data, &got))
	assert.Equal(t, "private", got.Title)
}

func TestNoteHandler_Validation(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice", "secret1")
	note := env.createNote(t, token, "T", "C")

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantError  string
	}{
		{name: "missing title", method: http.MethodPost, path: "/api/notes", body: `{"content":"c"}`, wantStatus: http.StatusBadRequest, wantError: "title is required"},
		{name: "title too long", method: http.MethodPost, path: "/api/notes", body: `{"title":"` + strings.Repeat("t", 201) + `","content":"c"}`, wantStatus: http.StatusBadRequest, wantError: "title must be at most 200 characters"},
		{name: "missing content on update", method: http.MethodPut, path: "/api/notes/" + note.ID, body: `{"title":"t"}`, wantStatus: http.StatusBadRequest, wantError: "content is required"},
		{name: "malformed json", method: http.MethodPut, path: "/api/notes/" + note.ID, body: `[`, wantStatus: http.StatusBadRequest, wantError: "invalid request body"},
		{name: "non-uuid id", method: http.MethodGet, path: "/api/notes/123", wantStatus: http.StatusNotFound, wantError: "note not found"},
		{name: "unknown id", method: http.MethodGet, path: "/api/notes/4b0e1d9e-8a43-4f7a-9f4e-3a0c51e0c3a1", wantStatus: http.StatusNotFound, wantError: "note not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := env.do(t, tt.method, tt.path, token, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantError, body.Error)
		})
	}
}

func TestUserHandler_GetMe(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "Alice", "secret1")

	rec, body := env.do(t, http.MethodGet, "/api/users/me", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var user domain.UserResponse
	require.NoError(t, json.Unmarshal(body.Data, &user))
	assert.Equal(t, "Alice", user.Username)
	assert.NotContains(t, string(body.Data), "digest")
	assert.NotContains(t, string(body.Data), "argon2")
}

func TestSyncHandler_GetChanges(t *testing.T) {
	env := newTestEnv(t)
	token := env.signup(t, "alice", "secret1")
	env.createNote(t, token, "T", "C")

	rec, body := env.do(t, http.MethodGet, "/api/sync/changes", token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var changes struct {
		Notes []domain.NoteResponse `json:"notes"`
	}
	require.NoError(t, json.Unmarshal(body.Data, &changes))
	assert.Len(t, changes.Notes, 1)

	future := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
	rec, body = env.do(t, http.MethodGet, "/api/sync/changes?since="+future, token, "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(body.Data, &changes))
	assert.Empty(t, changes.Notes)

	rec, _ = env.do(t, http.MethodGet, "/api/sync/changes?since=yesterday", token, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebSocketHandler(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.router)
	defer server.Close()

	alice := env.signup(t, "alice", "secret1")
	bob := env.signup(t, "bob", "secret1")
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"

	_, resp, err := ws.DefaultDialer.Dial(wsURL, nil)
	require.ErrorIs(t, err, ws.ErrBadHandshake)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	aliceConn, _, err := ws.DefaultDialer.Dial(wsURL+"?token="+alice, nil)
	require.NoError(t, err)
	defer aliceConn.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+bob)
	bobConn, _, err := ws.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer bobConn.Close()

	aliceID := env.userID(t, alice)
	require.Eventually(t, func() bool {
		return env.wsManager.GetUserConnections(aliceID) == 1
	}, time.Second, 10*time.Millisecond)

	note := env.createNote(t, alice, "T", "C")

	aliceConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := aliceConn.ReadMessage()
	require.NoError(t, err)

	var msg websocket.Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, websocket.TypeNoteCreated, msg.Type)
	assert.True(t, bytes.Contains(msg.Payload, []byte(note.ID)))

	// bob only gets an answer to his own ping
	require.NoError(t, bobConn.WriteJSON(map[string]string{"type": "ping"}))
	bobConn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err = bobConn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, websocket.TypePong, msg.Type)
}

func (e *testEnv) userID(t *testing.T, token string) string {
	t.Helper()
	_, body := e.do(t, http.MethodGet, "/api/users/me", token, "")
	var user domain.UserResponse
	require.NoError(t, json.Unmarshal(body.Data, &user))
	return user.ID
}

func TestWriteError_Unexpected(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/notes", nil)

	writeError(rec, req, zap.New(core), errors.New("couchdb: connection refused at 10.0.0.5"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "couchdb")
	assert.Contains(t, rec.Body.String(), "internal server error")
	assert.Equal(t, 1, logs.Len())
}
