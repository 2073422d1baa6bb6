package handler

import (
	"net/http"

	"notes-backend/internal/domain"
	"notes-backend/internal/service"
	"notes-backend/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NoteHandler methods are AuthenticatedHandlerFuncs: userID always comes
// from the gate, never from the request.
type NoteHandler struct {
	service  *service.NoteService
	validate *validator.Validate
	logger   *zap.Logger
}

func NewNoteHandler(service *service.NoteService, logger *zap.Logger) *NoteHandler {
	return &NoteHandler{
		service:  service,
		validate: newValidator(),
		logger:   logger,
	}
}

func (h *NoteHandler) Create(w http.ResponseWriter, r *http.Request, userID string) {
	var req domain.CreateNoteRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Create(r.Context(), userID, &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Created(w, "/api/notes/"+note.ID, note)
}

func (h *NoteHandler) List(w http.ResponseWriter, r *http.Request, userID string) {
	notes, err := h.service.List(r.Context(), userID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, notes)
}

func (h *NoteHandler) Get(w http.ResponseWriter, r *http.Request, userID string) {
	note, err := h.service.Get(r.Context(), userID, mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Update(w http.ResponseWriter, r *http.Request, userID string) {
	var req domain.UpdateNoteRequest
	if err := decodeAndValidate(w, r, h.validate, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	note, err := h.service.Update(r.Context(), userID, mux.Vars(r)["id"], &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, note)
}

func (h *NoteHandler) Delete(w http.ResponseWriter, r *http.Request, userID string) {
	if err := h.service.Delete(r.Context(), userID, mux.Vars(r)["id"]); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.NoContent(w)
}
