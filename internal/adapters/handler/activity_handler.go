package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mashoras/activity-service/internal/adapters/middleware"
	"github.com/mashoras/activity-service/internal/core/domain"
	"github.com/mashoras/activity-service/internal/core/ports"
	"github.com/mashoras/activity-service/internal/core/services"
)

// ActivityHandler serves the activity endpoints. Reads come from the shared
// live controller; each mutation runs through a controller bound to the
// caller's session.
type ActivityHandler struct {
	repo  ports.ActivityRepository
	users ports.UserRepository
	live  *services.ActivitiesController
	log   *zap.Logger
}

func NewActivityHandler(
	repo ports.ActivityRepository,
	users ports.UserRepository,
	live *services.ActivitiesController,
	log *zap.Logger,
) *ActivityHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &ActivityHandler{repo: repo, users: users, live: live, log: log.Named("activity_handler")}
}

type ListResponse struct {
	Role       domain.Role             `json:"role"`
	Activities []domain.ListedActivity `json:"activities"`
}

type CreateResponse struct {
	ID string `json:"id"`
}

// StreamEvent is one server-sent event of the stream endpoint.
type StreamEvent struct {
	Status     services.Status         `json:"status"`
	Role       domain.Role             `json:"role,omitempty"`
	Message    string                  `json:"message,omitempty"`
	Activities []domain.ListedActivity `json:"activities,omitempty"`
}

// controller takes the caller's role from the verified token.
func (h *ActivityHandler) controller(ctx context.Context) *services.ActivitiesController {
	c := services.NewActivitiesController(h.repo, h.users, middleware.SessionFromContext(ctx), h.log)
	if role := middleware.RoleFromContext(ctx); role != "" {
		c.SetUserRole(role)
	}
	return c
}

// viewer resolves the caller's role and career from the stored profile.
func (h *ActivityHandler) viewer(ctx context.Context) (domain.Viewer, error) {
	uid := middleware.UserIDFromContext(ctx)
	if uid == "" {
		return domain.Viewer{}, domain.NewAuthError("")
	}
	user, err := h.users.GetUser(ctx, uid)
	if err != nil {
		return domain.Viewer{}, err
	}
	return domain.Viewer{UserID: uid, Role: user.Role, Career: user.Career}, nil
}

// snapshot prefers the live state and falls back to a direct read while the
// live subscription is loading or failed.
func (h *ActivityHandler) snapshot(ctx context.Context) ([]domain.Activity, error) {
	if h.live != nil {
		if s := h.live.State(); s.Status == services.StatusSuccess {
			return s.Activities, nil
		}
	}
	return h.repo.ListActivities(ctx)
}

func (h *ActivityHandler) List(w http.ResponseWriter, r *http.Request) {
	v, err := h.viewer(r.Context())
	if err != nil {
		writeError(w, err, domain.MsgLoadActivities)
		return
	}
	list, err := h.snapshot(r.Context())
	if err != nil {
		writeError(w, err, domain.MsgLoadActivities)
		return
	}
	q := r.URL.Query()
	items := domain.Query(list, v, domain.ListingQuery{
		Search: q.Get("q"),
		Filter: domain.ParseFilter(q.Get("filter")),
		Sort:   domain.ParseSort(q.Get("sort")),
	})
	writeJSON(w, http.StatusOK, ListResponse{Role: v.Role, Activities: items})
}

func (h *ActivityHandler) History(w http.ResponseWriter, r *http.Request) {
	v, err := h.viewer(r.Context())
	if err != nil {
		writeError(w, err, domain.MsgLoadActivities)
		return
	}
	list, err := h.snapshot(r.Context())
	if err != nil {
		writeError(w, err, domain.MsgLoadActivities)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]domain.Activity{"activities": domain.History(list, v)})
}

// Stream pushes the caller's listing every time the live state changes.
func (h *ActivityHandler) Stream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok || h.live == nil {
		writeJSON(w, http.StatusNotImplemented, ErrorResponse{Error: "streaming no disponible"})
		return
	}
	v, err := h.viewer(r.Context())
	if err != nil {
		writeError(w, err, domain.MsgLoadActivities)
		return
	}

	states, cancel := h.live.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case s, ok := <-states:
			if !ok {
				return
			}
			ev := StreamEvent{Status: s.Status, Message: s.Message}
			if s.Status == services.StatusSuccess {
				ev.Role = v.Role
				ev.Activities = domain.Listing(s.Activities, v)
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("encode stream event", zap.Error(err))
				return
			}
			if _, err := fmt.Fprintf(w, "event: state\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *ActivityHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft domain.ActivityDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, err, domain.MsgCreateActivity)
		return
	}
	id, err := h.controller(r.Context()).CreateActivity(r.Context(), draft)
	if err != nil {
		writeError(w, err, domain.MsgCreateActivity)
		return
	}
	writeJSON(w, http.StatusCreated, CreateResponse{ID: id})
}

func (h *ActivityHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.requireOwner(w, r, id, domain.MsgUpdateActivity) {
		return
	}
	var draft domain.ActivityDraft
	if err := decodeJSON(r, &draft); err != nil {
		writeError(w, err, domain.MsgUpdateActivity)
		return
	}
	if err := h.controller(r.Context()).UpdateActivity(r.Context(), id, draft); err != nil {
		writeError(w, err, domain.MsgUpdateActivity)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Actividad actualizada"})
}

// Enroll runs the capacity and eligibility check against the current state
// before forwarding. Two concurrent requests may still both pass it.
func (h *ActivityHandler) Enroll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	uid := middleware.UserIDFromContext(r.Context())
	user, err := h.users.GetUser(r.Context(), uid)
	if err != nil {
		writeError(w, err, domain.MsgEnroll)
		return
	}
	activity, err := h.repo.GetActivity(r.Context(), id)
	if err != nil {
		writeError(w, err, domain.MsgEnroll)
		return
	}
	if err := domain.CanEnroll(*activity, *user); err != nil {
		writeError(w, err, domain.MsgEnroll)
		return
	}
	if err := h.controller(r.Context()).EnrollInActivity(r.Context(), id); err != nil {
		writeError(w, err, domain.MsgEnroll)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Inscripción exitosa"})
}

func (h *ActivityHandler) Unenroll(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	uid := middleware.UserIDFromContext(r.Context())
	activity, err := h.repo.GetActivity(r.Context(), id)
	if err != nil {
		writeError(w, err, domain.MsgUnenroll)
		return
	}
	if err := domain.CanUnenroll(*activity, uid); err != nil {
		writeError(w, err, domain.MsgUnenroll)
		return
	}
	if err := h.controller(r.Context()).UnenrollFromActivity(r.Context(), id); err != nil {
		writeError(w, err, domain.MsgUnenroll)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Inscripción cancelada"})
}

func (h *ActivityHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.requireOwner(w, r, id, domain.MsgFinalize) {
		return
	}
	if err := h.controller(r.Context()).MarkActivityAsCompleted(r.Context(), id); err != nil {
		writeError(w, err, domain.MsgFinalize)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Actividad finalizada"})
}

func (h *ActivityHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.requireOwner(w, r, id, domain.MsgDelete) {
		return
	}
	if err := h.controller(r.Context()).DeleteActivity(r.Context(), id); err != nil {
		writeError(w, err, domain.MsgDelete)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// requireOwner allows only the teacher who created the activity.
func (h *ActivityHandler) requireOwner(w http.ResponseWriter, r *http.Request, id, fallback string) bool {
	activity, err := h.repo.GetActivity(r.Context(), id)
	if err != nil {
		writeError(w, err, fallback)
		return false
	}
	uid := middleware.UserIDFromContext(r.Context())
	if !middleware.RoleFromContext(r.Context()).IsTeacher() || activity.CreatedBy != uid {
		writeJSON(w, http.StatusForbidden, ErrorResponse{Error: "No tienes permisos para realizar esta acción"})
		return false
	}
	return true
}
