package handler

import (
	"net/http"
	"strconv"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/Shivanand-hulikatti/community-events/internal/service"
	"github.com/go-chi/chi/v5"
)

// UserHandler holds the HTTP handlers for resident accounts.
type UserHandler struct {
	svc *service.UserService
}

// NewUserHandler constructs a UserHandler.
func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

// CreateUser handles POST /users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req model.CreateUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	user, err := h.svc.CreateUser(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// GetUser handles GET /users/{id}
// The response includes the user's current registration eligibility.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	status, err := h.svc.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, status)
}

// ListNotifications handles GET /users/{id}/notifications?limit=N
func (h *UserHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, service.KindValidationFailed, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	items, err := h.svc.ListNotifications(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if items == nil {
		items = []model.Notification{}
	}

	writeJSON(w, http.StatusOK, items)
}
