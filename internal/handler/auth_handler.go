package handler

import (
	"net/http"

	"notes-backend/internal/domain"
	"notes-backend/internal/service"
	"notes-backend/pkg/response"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService *service.AuthService
	validator   *validator.Validate
	logger      *zap.Logger
}

func NewAuthHandler(authService *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		authService: authService,
		validator:   newValidator(),
		logger:      logger,
	}
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	authResp, err := h.authService.Signup(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, authResp)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeAndValidate(w, r, h.validator, &req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	authResp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	response.Success(w, authResp)
}
