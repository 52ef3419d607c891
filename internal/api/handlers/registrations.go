package handlers

import (
	"net/http"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/validation"
)

type RegistrationsHandler struct {
	Service *registrations.Service
	Env     string
}

func NewRegistrationsHandler(service *registrations.Service, env string) *RegistrationsHandler {
	return &RegistrationsHandler{Service: service, Env: env}
}

type registerRequest struct {
	EventID string `json:"eventId"`
}

type registrationResponse struct {
	Message      string                      `json:"message"`
	Registration *registrations.Registration `json:"registration"`
}

// Create registers the caller for an event.
func (h *RegistrationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.Env)
	if !ok {
		return
	}

	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	if strings.TrimSpace(req.EventID) == "" {
		writeError(w, r, validation.New("eventId", "is required"), h.Env)
		return
	}

	registration, err := h.Service.Register(r.Context(), actor, req.EventID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	metrics.RegistrationsCreated.Inc()
	writeJSON(w, http.StatusCreated, registrationResponse{Message: "Registration successful", Registration: registration})
}

// ListForEvent returns the event's registrations with the registrant expanded.
func (h *RegistrationsHandler) ListForEvent(w http.ResponseWriter, r *http.Request) {
	if _, ok := requireActor(w, r, h.Env); !ok {
		return
	}

	items, err := h.Service.ListForEvent(r.Context(), pathParam(r, "eventId"))
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	if items == nil {
		items = []registrations.Registration{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (h *RegistrationsHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.Env)
	if !ok {
		return
	}

	if err := h.Service.Cancel(r.Context(), actor, pathParam(r, "registrationId")); err != nil {
		writeError(w, r, err, h.Env)
		return
	}

	metrics.RegistrationsCancelled.Inc()
	writeJSON(w, http.StatusOK, messageResponse{Message: "Registration cancelled successfully"})
}

// Status reports whether the caller is registered for the event.
func (h *RegistrationsHandler) Status(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireActor(w, r, h.Env)
	if !ok {
		return
	}

	status, err := h.Service.Status(r.Context(), pathParam(r, "eventId"), actor.UserID)
	if err != nil {
		writeError(w, r, err, h.Env)
		return
	}
	writeJSON(w, http.StatusOK, status)
}
