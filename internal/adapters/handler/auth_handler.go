package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/adapters/middleware"
	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/services"
)

type AuthHandler struct {
	authService *services.AuthService
	log         *zap.Logger
}

func NewAuthHandler(auth *services.AuthService, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{authService: auth, log: log.Named("auth_handler")}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    *domain.User `json:"user"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, "solicitud no válida")
		return
	}

	token, user, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err, "Error al iniciar sesión")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Message: "Inicio de sesión exitoso",
		Token:   token,
		User:    user,
	})
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	info, ok := middleware.TokenFromContext(r.Context())
	if !ok || info.ID == "" {
		writeError(w, domain.NewAuthError(""), "")
		return
	}
	if err := h.authService.Logout(r.Context(), info.ID, info.ExpiresAt); err != nil {
		h.log.Error("logout failed", zap.Error(err))
		writeError(w, err, "Error al cerrar sesión")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Sesión cerrada"})
}
