package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/stretchr/testify/require"
)

func TestRegistrationsHandler_Lifecycle(t *testing.T) {
	f := newFixture(t)
	organizer := f.account(t, "Olga", auth.RoleOrganizer)
	attendee := f.account(t, "Ada", auth.RoleAttendee)
	event := f.event(t, organizer, "Go Meetup")
	h := NewRegistrationsHandler(f.registrations, testEnv)

	status := func() registrations.Status {
		req := httptest.NewRequest(http.MethodGet, "/api/registrations/status/"+event.ID, nil)
		req.SetPathValue("eventId", event.ID)
		rec := httptest.NewRecorder()
		h.Status(rec, asActor(req, attendee))
		require.Equal(t, http.StatusOK, rec.Code)
		return decodeBody[registrations.Status](t, rec)
	}
	require.False(t, status().IsRegistered)

	rec := httptest.NewRecorder()
	h.Create(rec, asActor(jsonRequest(t, http.MethodPost, "/api/registrations", map[string]string{"eventId": event.ID}), attendee))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody[registrationResponse](t, rec)
	require.Equal(t, "Registration successful", created.Message)
	require.Equal(t, "Ada", created.Registration.User.Name)

	rec = httptest.NewRecorder()
	h.Create(rec, asActor(jsonRequest(t, http.MethodPost, "/api/registrations", map[string]string{"eventId": event.ID}), attendee))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, "Already registered for this event", decodeBody[problemBody](t, rec).Detail)

	current := status()
	require.True(t, current.IsRegistered)
	require.Equal(t, created.Registration.ID, current.RegistrationID)

	list := httptest.NewRequest(http.MethodGet, "/api/registrations/"+event.ID, nil)
	list.SetPathValue("eventId", event.ID)
	rec = httptest.NewRecorder()
	h.ListForEvent(rec, asActor(list, organizer))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeBody[[]registrations.Registration](t, rec), 1)

	cancel := httptest.NewRequest(http.MethodDelete, "/api/registrations/"+created.Registration.ID, nil)
	cancel.SetPathValue("registrationId", created.Registration.ID)
	rec = httptest.NewRecorder()
	h.Cancel(rec, asActor(cancel, attendee))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "Registration cancelled successfully", decodeBody[messageResponse](t, rec).Message)
	require.False(t, status().IsRegistered)

	rec = httptest.NewRecorder()
	h.Cancel(rec, asActor(cancel, attendee))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRegistrationsHandler_CreateValidation(t *testing.T) {
	f := newFixture(t)
	attendee := f.account(t, "Ada", auth.RoleAttendee)
	h := NewRegistrationsHandler(f.registrations, testEnv)

	tests := []struct {
		name       string
		body       map[string]string
		wantStatus int
	}{
		{name: "missing event id", body: map[string]string{}, wantStatus: http.StatusBadRequest},
		{name: "malformed event id", body: map[string]string{"eventId": "not-an-id"}, wantStatus: http.StatusNotFound},
		{name: "unknown event", body: map[string]string{"eventId": "01HYX3KQW7ERTV9XNBM2P8QJZF"}, wantStatus: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.Create(rec, asActor(jsonRequest(t, http.MethodPost, "/api/registrations", tt.body), attendee))
			require.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
		})
	}
}

func TestRegistrationsHandler_CancelAuthorization(t *testing.T) {
	f := newFixture(t)
	organizer := f.account(t, "Olga", auth.RoleOrganizer)
	attendee := f.account(t, "Ada", auth.RoleAttendee)
	stranger := f.account(t, "Sam", auth.RoleAttendee)
	event := f.event(t, organizer, "Go Meetup")
	h := NewRegistrationsHandler(f.registrations, testEnv)

	rec := httptest.NewRecorder()
	h.Create(rec, asActor(jsonRequest(t, http.MethodPost, "/api/registrations", map[string]string{"eventId": event.ID}), attendee))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decodeBody[registrationResponse](t, rec).Registration.ID

	cancel := httptest.NewRequest(http.MethodDelete, "/api/registrations/"+id, nil)
	cancel.SetPathValue("registrationId", id)

	rec = httptest.NewRecorder()
	h.Cancel(rec, asActor(cancel, stranger))
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = httptest.NewRecorder()
	h.Cancel(rec, asActor(cancel, organizer))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRegistrationsHandler_RequiresActor(t *testing.T) {
	f := newFixture(t)
	h := NewRegistrationsHandler(f.registrations, testEnv)

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/api/registrations/status/x", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}
