package handler

import (
	"encoding/json"
	"net/http"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/core/domain"
)

type ErrorResponse struct {
	Error  string              `json:"error"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("failed to write response", zap.Error(err))
	}
}

// conflictErrors are business-rule rejections of the enroll checks.
var conflictErrors = []error{
	domain.ErrActivityFinalized,
	domain.ErrActivityFull,
	domain.ErrAlreadyEnrolled,
	domain.ErrNotEnrolled,
}

// writeError maps an error kind to a status and a user-facing message.
func writeError(w http.ResponseWriter, err error, fallback string) {
	msg := domain.ErrorMessage(err, fallback)
	switch {
	case domain.IsAuth(err):
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: msg})
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: msg, Fields: domain.ValidationFields(err)})
	case domain.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: "recurso no encontrado"})
	case errors.Is(err, domain.ErrNotEligible), errors.Is(err, domain.ErrTeacherEnroll):
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: msg})
	case isConflict(err):
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: msg})
	case domain.IsRemote(err):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: msg})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: fallback})
	}
}

func isConflict(err error) bool {
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return domain.NewValidationError(errors.Wrap(err, "cuerpo de la solicitud no válido"))
	}
	return nil
}
