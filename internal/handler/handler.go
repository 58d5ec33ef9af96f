// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Shivanand-hulikatti/community-events/internal/model"
	"github.com/Shivanand-hulikatti/community-events/internal/repository"
	"github.com/Shivanand-hulikatti/community-events/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// EventHandler holds the HTTP handlers for events and registrations.
type EventHandler struct {
	events        *service.EventService
	registrations *service.RegistrationService
}

// NewEventHandler constructs an EventHandler.
func NewEventHandler(events *service.EventService, registrations *service.RegistrationService) *EventHandler {
	return &EventHandler{events: events, registrations: registrations}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, kind, msg string) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Kind: kind})
}

// writeServiceError maps a service error onto the JSON error envelope.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	kind := service.Kind(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"path":       r.URL.Path,
		}).Errorf("request failed: %v", err)
		writeError(w, status, kind, "internal server error")
		return
	}

	resp := model.ErrorResponse{Error: err.Error(), Kind: kind}
	var closed *service.RegistrationClosedError
	if errors.As(err, &closed) {
		resp.Details = closed.Details()
	}
	writeJSON(w, status, resp)
}

func statusFor(kind string) int {
	switch kind {
	case service.KindValidationFailed:
		return http.StatusBadRequest
	case service.KindNotFound:
		return http.StatusNotFound
	case service.KindAlreadyRegistered, service.KindAlreadyExists, service.KindEventFull:
		return http.StatusConflict
	case service.KindRegistrationClosed:
		return http.StatusForbidden
	case service.KindEventEnded:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeBadBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, service.KindValidationFailed, "invalid request body: "+err.Error())
}

// ─── Events ───────────────────────────────────────────────────────────────────

// CreateEvent handles POST /events
func (h *EventHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req model.CreateEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	event, err := h.events.CreateEvent(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, event)
}

// ListEvents handles GET /events
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.events.ListEvents(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	// Return an empty array rather than null for better client compatibility.
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, events)
}

// GetEvent handles GET /events/{id}
func (h *EventHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.events.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, event)
}

// ListRegistrations handles GET /events/{id}/registrations
func (h *EventHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs, err := h.events.ListRegistrations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	if regs == nil {
		regs = []model.Registration{}
	}

	writeJSON(w, http.StatusOK, regs)
}

// ─── Registrations ────────────────────────────────────────────────────────────

// Register handles POST /events/{id}/register
// A user with a cancelled registration gets it reactivated.
func (h *EventHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req model.RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	reg, err := h.registrations.Register(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, reg)
}

// Unregister handles POST /events/{id}/unregister
func (h *EventHandler) Unregister(w http.ResponseWriter, r *http.Request) {
	var req model.UnregisterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	reg, err := h.registrations.Unregister(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// UpdateAttendance handles PATCH /registrations/{id}/attendance
func (h *EventHandler) UpdateAttendance(w http.ResponseWriter, r *http.Request) {
	var req model.AttendanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeBadBody(w, err)
		return
	}

	reg, err := h.registrations.UpdateAttendance(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, reg)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck returns GET /health, reporting 503 while the store is unreachable.
func HealthCheck(store repository.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			logrus.WithField("component", "health").Warnf("store ping failed: %v", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
