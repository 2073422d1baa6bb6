package handler

import (
	"net/http"

	"notes-backend/internal/middleware"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type Handlers struct {
	Auth      *AuthHandler
	Users     *UserHandler
	Notes     *NoteHandler
	Sync      *SyncHandler
	WebSocket *WebSocketHandler
}

func NewRouter(h Handlers, gate *middleware.Gate, cors middleware.CORSOptions, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(logger))
	r.Use(middleware.CORSMiddleware(cors))

	r.HandleFunc("/", Root).Methods(http.MethodGet)
	r.HandleFunc("/health", Health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/auth/signup", h.Auth.Signup).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/auth/login", h.Auth.Login).Methods(http.MethodPost, http.MethodOptions)

	api.HandleFunc("/users/me", gate.Require(h.Users.GetMe)).Methods(http.MethodGet, http.MethodOptions)

	api.HandleFunc("/notes", gate.Require(h.Notes.List)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/notes", gate.Require(h.Notes.Create)).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/notes/{id}", gate.Require(h.Notes.Get)).Methods(http.MethodGet, http.MethodOptions)
	api.HandleFunc("/notes/{id}", gate.Require(h.Notes.Update)).Methods(http.MethodPut, http.MethodOptions)
	api.HandleFunc("/notes/{id}", gate.Require(h.Notes.Delete)).Methods(http.MethodDelete, http.MethodOptions)

	api.HandleFunc("/sync/changes", gate.Require(h.Sync.GetChanges)).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/ws", h.WebSocket.HandleConnection).Methods(http.MethodGet)

	return r
}
