package handler

import (
	"net/http"

	"github.com/mashoras/activity-service/internal/adapters/middleware"
	"github.com/mashoras/activity-service/internal/core/services"
)

type ProfileHandler struct {
	profiles *services.ProfileService
}

func NewProfileHandler(profiles *services.ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type GoalRequest struct {
	HourGoal int `json:"hour_goal"`
}

func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.profiles.Load(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		writeError(w, err, "Error al cargar el perfil")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProfileHandler) UpdateGoal(w http.ResponseWriter, r *http.Request) {
	var req GoalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, "Error al actualizar la meta")
		return
	}
	if err := h.profiles.UpdateHourGoal(r.Context(), middleware.UserIDFromContext(r.Context()), req.HourGoal); err != nil {
		writeError(w, err, "Error al actualizar la meta")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Meta actualizada"})
}
