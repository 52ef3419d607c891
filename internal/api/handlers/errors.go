package handlers

import (
	"errors"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/registrations"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/validation"
)

// writeError maps domain errors to problem responses. Anything unrecognised is
// a sanitized 500.
func writeError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		problem.Write(w, r, http.StatusRequestEntityTooLarge, problem.TypeTooLarge, "Payload too large", err, env,
			problem.WithDetail("Request body is too large"))
		return
	}

	if verr, ok := validation.As(err); ok {
		problem.Write(w, r, http.StatusBadRequest, problem.TypeValidation, "Invalid request", err, env,
			problem.WithDetail(verr.Error()), problem.WithFieldError(verr.Field, verr.Message))
		return
	}

	switch {
	case errors.Is(err, users.ErrEmailTaken):
		clientError(w, r, http.StatusBadRequest, problem.TypeConflict, "Conflict", "User already exists", err, env)
	case errors.Is(err, registrations.ErrAlreadyRegistered):
		clientError(w, r, http.StatusBadRequest, problem.TypeConflict, "Conflict", "Already registered for this event", err, env)
	case errors.Is(err, users.ErrInvalidCredentials):
		clientError(w, r, http.StatusBadRequest, problem.TypeCredentials, "Invalid credentials", "Invalid credentials", err, env)
	case errors.Is(err, users.ErrNotFound):
		clientError(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", "User not found", err, env)
	case errors.Is(err, events.ErrNotFound):
		clientError(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", "Event not found", err, env)
	case errors.Is(err, registrations.ErrNotFound):
		clientError(w, r, http.StatusNotFound, problem.TypeNotFound, "Not found", "Registration not found", err, env)
	case errors.Is(err, events.ErrForbidden), errors.Is(err, registrations.ErrForbidden):
		clientError(w, r, http.StatusForbidden, problem.TypeForbidden, "Forbidden", "Not authorized", err, env)
	default:
		problem.ServerError(w, r, err, env)
	}
}

func clientError(w http.ResponseWriter, r *http.Request, status int, typ, title, detail string, err error, env string) {
	problem.Write(w, r, status, typ, title, err, env, problem.WithDetail(detail))
}
