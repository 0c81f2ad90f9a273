package handler

import (
	"net/http"

	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/services"
)

type RegistrationHandler struct {
	registrationService *services.RegistrationService
}

func NewRegistrationHandler(registration *services.RegistrationService) *RegistrationHandler {
	return &RegistrationHandler{registrationService: registration}
}

type RegistrationResponse struct {
	Message string      `json:"message"`
	User    domain.User `json:"user"`
}

func (h *RegistrationHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegistrationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, "solicitud no válida")
		return
	}

	user, err := h.registrationService.Register(r.Context(), req)
	if err != nil {
		writeError(w, err, "Error al registrar usuario")
		return
	}

	writeJSON(w, http.StatusCreated, RegistrationResponse{
		Message: "Usuario registrado",
		User:    *user,
	})
}

// Careers lists the careers accepted at registration and on activities.
func (h *RegistrationHandler) Careers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"registration": domain.Careers,
		"activity":     domain.ActivityCareers(),
	})
}
